package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"
)

var (
	// ErrNoImageGenerated - 응답에 이미지가 없음 (모델이 거부한 경우 포함)
	ErrNoImageGenerated = errors.New("no image was generated, the model may have refused the request")
	// ErrEmptyResponse - 응답에 텍스트가 없음
	ErrEmptyResponse = errors.New("empty response from model")
)

// Image - 생성된 이미지 바이너리
type Image struct {
	Data     []byte
	MIMEType string
}

// Client - 여러 API 키를 순환하는 genai 클라이언트 (circuit breaker 포함)
type Client struct {
	clients   []*genai.Client
	breaker   *gobreaker.CircuitBreaker
	retryWait time.Duration
}

// NewClient - API 키마다 genai 클라이언트 생성
func NewClient(ctx context.Context, apiKeys []string) (*Client, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	clients := make([]*genai.Client, 0, len(apiKeys))
	for i, key := range apiKeys {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client for key #%d: %w", i+1, err)
		}
		clients = append(clients, client)
	}

	log.Info().Msgf("✅ Genai clients initialized (%d keys)", len(clients))
	return &Client{
		clients:   clients,
		breaker:   newBreaker("gemini-api"),
		retryWait: 2 * time.Second,
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,                // Half-open 상태에서 허용할 요청 수
		Interval:    60 * time.Second, // Closed 상태에서 카운터 리셋 간격
		Timeout:     30 * time.Second, // Open 상태 유지 시간 (이후 Half-open)
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 연속 5회 실패 또는 60% 이상 실패율 (최소 10회 요청)
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			// 모델의 거부/빈 응답이나 취소는 서비스 장애로 보지 않음
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Msgf("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// GenerateContent - circuit breaker + 429 재시도로 감싼 GenerateContent
func (c *Client) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return generateWithRetry(ctx, len(c.clients), c.retryWait, func(ctx context.Context, keyIndex int) (*genai.GenerateContentResponse, error) {
			return c.clients[keyIndex].Models.GenerateContent(ctx, model, contents, config)
		})
	})
	if err != nil {
		return nil, err
	}
	return result.(*genai.GenerateContentResponse), nil
}

// GenerateImage - 이미지 + 프롬프트로 이미지 생성
func (c *Client) GenerateImage(ctx context.Context, model string, parts []*genai.Part, aspectRatio string) (*Image, error) {
	log.Info().Msgf("🎨 Calling Gemini API (model: %s, parts: %d, aspect-ratio: %s)", model, len(parts), aspectRatio)

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if aspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: aspectRatio}
	}

	result, err := c.GenerateContent(ctx, model, []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, config)
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	img, err := ExtractImage(result)
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("✅ Received image from Gemini: %d bytes (%s)", len(img.Data), img.MIMEType)
	return img, nil
}

// GenerateJSON - 스키마 기반 JSON 응답을 out에 디코딩
func (c *Client) GenerateJSON(ctx context.Context, model string, parts []*genai.Part, schema *genai.Schema, out any) error {
	log.Info().Msgf("💬 Calling Gemini API for JSON (model: %s, parts: %d)", model, len(parts))

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	result, err := c.GenerateContent(ctx, model, []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, config)
	if err != nil {
		return fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := ExtractText(result)
	if text == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

// ExtractImage - 응답에서 첫 번째 InlineData 이미지 추출
func ExtractImage(result *genai.GenerateContentResponse) (*Image, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, ErrNoImageGenerated
	}

	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			// InlineData 확인 (이미지는 InlineData로 반환됨)
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return &Image{Data: part.InlineData.Data, MIMEType: mimeType}, nil
			}
		}
	}

	return nil, ErrNoImageGenerated
}

// ExtractText - 응답의 텍스트 파트를 이어붙임
func ExtractText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}
