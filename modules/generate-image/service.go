package generateimage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"portrait-studio-server/modules/common/database"
	"portrait-studio-server/modules/common/gemini"
	"portrait-studio-server/modules/common/metrics"
	"portrait-studio-server/modules/common/model"
	"portrait-studio-server/modules/common/storage"
	"portrait-studio-server/modules/common/utils"
	"portrait-studio-server/modules/options"
)

const (
	KindGenerate = "generate"
	KindPreview  = "preview"
)

var (
	// ErrPreviewNotReady - 스타일과 배경이 모두 비어 있음
	ErrPreviewNotReady = errors.New("preview requires a style or a context")
	// ErrImageRequired - 업로드된 인물 사진 없음
	ErrImageRequired = errors.New("an uploaded portrait is required")
)

// ImageGenerator - 이미지 생성 백엔드 (gemini.Client)
type ImageGenerator interface {
	GenerateImage(ctx context.Context, model string, parts []*genai.Part, aspectRatio string) (*gemini.Image, error)
}

// Uploader - 생성 결과 업로드 (storage.Client)
type Uploader interface {
	UploadImage(ctx context.Context, filePath string, data []byte, mimeType string) (int64, error)
	PublicURL(filePath string) string
}

// Recorder - 생성 이력 기록 (database.Client)
type Recorder interface {
	InsertGeneration(g *database.Generation) error
}

// Result - 생성 결과
type Result struct {
	MimeType string `json:"mimeType"`
	DataURL  string `json:"dataUrl"`
	ImageURL string `json:"imageUrl,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// Request - 생성 요청 단위 (세션 또는 job)
type Request struct {
	SessionID string
	JobID     string
	Image     *model.UploadedImage
	Options   model.Options
}

type Service struct {
	generator   ImageGenerator
	model       string
	uploader    Uploader
	recorder    Recorder
	webp        bool
	webpQuality float32
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStorage - 결과를 Supabase에 업로드하고 이력 기록 (recorder는 nil 가능)
func WithStorage(uploader Uploader, recorder Recorder) ServiceOption {
	return func(s *Service) {
		s.uploader = uploader
		s.recorder = recorder
	}
}

// WithWebP - 업로드 전 WebP 변환
func WithWebP(quality float32) ServiceOption {
	return func(s *Service) {
		s.webp = true
		s.webpQuality = quality
	}
}

// NewService - 생성 서비스 생성
func NewService(generator ImageGenerator, imageModel string, opts ...ServiceOption) *Service {
	s := &Service{generator: generator, model: imageModel}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate - 전체 옵션으로 최종 이미지 생성
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Image == nil || len(req.Image.Data) == 0 {
		return nil, ErrImageRequired
	}

	prompt := options.BuildPrompt(req.Options)
	aspect := req.Options.AspectRatio
	if !aspect.Valid() {
		aspect = model.AspectSquare
	}

	result, err := s.run(ctx, KindGenerate, req, prompt, aspect)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	return result, nil
}

// Preview - 스타일과 배경만으로 빠른 미리보기 생성
func (s *Service) Preview(ctx context.Context, req Request) (*Result, error) {
	if req.Image == nil || len(req.Image.Data) == 0 {
		return nil, ErrImageRequired
	}
	if !req.Options.ReadyForPreview() {
		return nil, ErrPreviewNotReady
	}

	prompt := options.BuildPreviewPrompt(req.Options.Style, req.Options.Context)
	result, err := s.run(ctx, KindPreview, req, prompt, model.AspectSquare)
	if err != nil {
		return nil, fmt.Errorf("failed to generate preview: %w", err)
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, kind string, req Request, prompt string, aspect model.AspectRatio) (result *Result, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordGeneration(kind, time.Since(start).Seconds(), err)
	}()

	log.Info().Msgf("🎨 [%s] session=%s aspect=%s", kind, req.SessionID, aspect)
	log.Debug().Msgf("📝 Prompt: %s", prompt)

	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Image.Data, req.Image.MimeType),
		genai.NewPartFromText(prompt),
	}

	img, err := s.generator.GenerateImage(ctx, s.model, parts, string(aspect))
	if err != nil {
		return nil, err
	}

	result = &Result{
		MimeType: img.MIMEType,
		DataURL:  utils.ToDataURL(img.MIMEType, img.Data),
	}

	if s.uploader != nil {
		s.store(ctx, kind, req, img, result)
	}

	log.Info().Msgf("✅ [%s] done in %s (session=%s)", kind, time.Since(start).Round(time.Millisecond), req.SessionID)
	return result, nil
}

// store - 업로드/기록 실패는 생성 결과를 막지 않음 (data URL은 항상 반환)
func (s *Service) store(ctx context.Context, kind string, req Request, img *gemini.Image, result *Result) {
	data, mimeType := img.Data, img.MIMEType
	if s.webp {
		converted, err := utils.ConvertToWebP(data, s.webpQuality)
		if err != nil {
			log.Warn().Msgf("⚠️  WebP conversion failed, uploading original: %v", err)
		} else {
			data, mimeType = converted, "image/webp"
		}
	}

	filePath := storage.ObjectPath(req.SessionID, kind, mimeType)
	size, err := s.uploader.UploadImage(ctx, filePath, data, mimeType)
	if err != nil {
		log.Error().Msgf("❌ Failed to upload %s result: %v", kind, err)
		return
	}
	result.FilePath = filePath
	result.ImageURL = s.uploader.PublicURL(filePath)

	if s.recorder == nil {
		return
	}
	o := req.Options
	if err := s.recorder.InsertGeneration(&database.Generation{
		SessionID:   req.SessionID,
		JobID:       req.JobID,
		Kind:        kind,
		Style:       o.Style,
		Context:     o.Context,
		CameraAngle: o.CameraAngle,
		Lighting:    o.Lighting,
		AspectRatio: string(o.AspectRatio),
		FilePath:    filePath,
		FileSize:    size,
	}); err != nil {
		log.Warn().Msgf("⚠️  Failed to record generation: %v", err)
	}
}
