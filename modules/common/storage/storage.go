package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client - Supabase Storage 업로드 클라이언트
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient(supabaseURL, serviceKey, bucket string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(supabaseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ObjectPath - 세션별 저장 경로 생성
func ObjectPath(sessionID, kind, mimeType string) string {
	return fmt.Sprintf("sessions/%s/%s_%d_%s.%s",
		sessionID, kind, time.Now().UnixMilli(), uuid.NewString()[:8], extension(mimeType))
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/webp":
		return "webp"
	case "image/jpeg":
		return "jpg"
	default:
		return "png"
	}
}

// UploadImage - Supabase Storage에 이미지 업로드
func (c *Client) UploadImage(ctx context.Context, filePath string, data []byte, mimeType string) (int64, error) {
	log.Info().Msgf("📤 Uploading image to storage: %s/%s", c.bucket, filePath)

	// Supabase Storage API URL
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	size := int64(len(data))
	log.Info().Msgf("✅ Image uploaded successfully: %s (%d bytes)", filePath, size)
	return size, nil
}

// PublicURL - 공개 버킷 객체 URL
func (c *Client) PublicURL(filePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, filePath)
}
