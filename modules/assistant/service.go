package assistant

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"portrait-studio-server/modules/common/model"
	generateimage "portrait-studio-server/modules/generate-image"
	"portrait-studio-server/modules/options"
)

// ErrEmptySuggestion - 모델이 유효한 값을 주지 않음
var ErrEmptySuggestion = errors.New("the assistant returned no usable options")

// JSONGenerator - 스키마 기반 JSON 응답 (gemini.Client)
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, model string, parts []*genai.Part, schema *genai.Schema, out any) error
}

type Service struct {
	generator JSONGenerator
	model     string
	pick      func(n int) int
}

// NewService - AI 어시스턴트 서비스 생성
func NewService(generator JSONGenerator, textModel string) *Service {
	return &Service{
		generator: generator,
		model:     textModel,
		pick:      rand.IntN,
	}
}

type suggestion struct {
	Style   string `json:"style"`
	Context string `json:"context"`
}

type surprise struct {
	Style       string `json:"style"`
	Context     string `json:"context"`
	CameraAngle string `json:"cameraAngle"`
	Lighting    string `json:"lighting"`
}

var suggestSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"style":   {Type: genai.TypeString},
		"context": {Type: genai.TypeString},
	},
	Required: []string{"style", "context"},
}

var surpriseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"style":       {Type: genai.TypeString},
		"context":     {Type: genai.TypeString},
		"cameraAngle": {Type: genai.TypeString},
		"lighting":    {Type: genai.TypeString},
	},
	Required: []string{"style", "context", "cameraAngle", "lighting"},
}

// Suggest - 사진을 분석해 스타일/배경 추천 (patch로 반환)
func (s *Service) Suggest(ctx context.Context, img *model.UploadedImage) (model.OptionsPatch, error) {
	if img == nil || len(img.Data) == 0 {
		return model.OptionsPatch{}, generateimage.ErrImageRequired
	}

	log.Info().Msg("💡 [Assistant] Requesting style suggestion")

	parts := []*genai.Part{
		genai.NewPartFromBytes(img.Data, img.MimeType),
		genai.NewPartFromText(options.BuildSuggestPrompt()),
	}

	var out suggestion
	if err := s.generator.GenerateJSON(ctx, s.model, parts, suggestSchema, &out); err != nil {
		return model.OptionsPatch{}, fmt.Errorf("failed to get suggestion: %w", err)
	}

	style, sceneContext := strings.TrimSpace(out.Style), strings.TrimSpace(out.Context)
	if style == "" && sceneContext == "" {
		return model.OptionsPatch{}, ErrEmptySuggestion
	}

	var patch model.OptionsPatch
	if style != "" {
		patch.Style = &style
	}
	if sceneContext != "" {
		patch.Context = &sceneContext
	}

	log.Info().Msgf("✅ [Assistant] Suggested style=%q context=%q", style, sceneContext)
	return patch, nil
}

// Surprise - 랜덤 테마로 전체 옵션 세트 생성 (비율은 호출자가 유지)
func (s *Service) Surprise(ctx context.Context) (model.Options, error) {
	theme := options.SurpriseThemes[s.pick(len(options.SurpriseThemes))]
	log.Info().Msgf("🎲 [Assistant] Surprise theme: %s", theme)

	parts := []*genai.Part{genai.NewPartFromText(options.BuildSurprisePrompt(theme))}

	var out surprise
	if err := s.generator.GenerateJSON(ctx, s.model, parts, surpriseSchema, &out); err != nil {
		return model.Options{}, fmt.Errorf("failed to get surprise options: %w", err)
	}

	opts := model.Options{
		Style:       strings.TrimSpace(out.Style),
		Context:     strings.TrimSpace(out.Context),
		CameraAngle: strings.TrimSpace(out.CameraAngle),
		Lighting:    strings.TrimSpace(out.Lighting),
	}
	if !opts.ReadyForPreview() {
		return model.Options{}, ErrEmptySuggestion
	}
	return opts, nil
}
