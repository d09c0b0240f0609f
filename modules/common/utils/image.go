package utils

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG 디코더 등록
	"image/png"
	"math"
	"strings"

	_ "github.com/kolesa-team/go-webp/decoder" // WebP 디코더 등록
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/model"
)

// MaxUploadSide - 업로드 이미지의 긴 변 최대 픽셀
const MaxUploadSide = 2048

var (
	ErrUnsupportedMimeType = errors.New("only PNG, JPG or WEBP images are supported")
	ErrInvalidDataURL      = errors.New("invalid data URL")
	ErrEmptyImage          = errors.New("image is empty")
)

var formatMimeTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// ValidateMimeType - 지원 포맷 확인 (PNG, JPEG, WEBP)
func ValidateMimeType(mimeType string) error {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png", "image/jpeg", "image/jpg", "image/webp":
		return nil
	}
	return ErrUnsupportedMimeType
}

// DecodeUpload - 업로드 바이너리 검증 후 UploadedImage 생성
// 선언된 mime 대신 실제 디코딩된 포맷을 기준으로 함
func DecodeUpload(data []byte, declaredMime string) (*model.UploadedImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if declaredMime != "" {
		if err := ValidateMimeType(declaredMime); err != nil {
			return nil, err
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	mimeType, ok := formatMimeTypes[format]
	if !ok {
		return nil, ErrUnsupportedMimeType
	}

	upload := &model.UploadedImage{
		Data:     data,
		MimeType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}

	if cfg.Width > MaxUploadSide || cfg.Height > MaxUploadSide {
		if err := downscale(upload); err != nil {
			return nil, err
		}
	}

	log.Debug().Msgf("🔍 Upload decoded: %s %dx%d (%d bytes)", upload.MimeType, upload.Width, upload.Height, len(upload.Data))
	return upload, nil
}

// downscale - 긴 변을 MaxUploadSide로 줄이고 PNG로 재인코딩
func downscale(upload *model.UploadedImage) error {
	img, _, err := image.Decode(bytes.NewReader(upload.Data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	scale := math.Min(float64(MaxUploadSide)/float64(bounds.Dx()), float64(MaxUploadSide)/float64(bounds.Dy()))
	targetWidth := int(float64(bounds.Dx()) * scale)
	targetHeight := int(float64(bounds.Dy()) * scale)

	resized := ResizeImage(img, targetWidth, targetHeight)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return fmt.Errorf("failed to encode resized image: %w", err)
	}

	log.Info().Msgf("📐 Downscaled upload %dx%d → %dx%d", bounds.Dx(), bounds.Dy(), targetWidth, targetHeight)
	upload.Data = buf.Bytes()
	upload.MimeType = "image/png"
	upload.Width = targetWidth
	upload.Height = targetHeight
	return nil
}

// ParseDataURL - "data:<mime>;base64,<data>" 파싱
func ParseDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(dataURL), "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || mimeType == "" {
		return "", nil, ErrInvalidDataURL
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return mimeType, data, nil
}

// ToDataURL - 바이너리를 data URL로 변환
func ToDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, ConvertImageToBase64(data))
}

// ConvertImageToBase64 - 이미지 바이너리를 base64로 변환
func ConvertImageToBase64(imageData []byte) string {
	return base64.StdEncoding.EncodeToString(imageData)
}

// ConvertToWebP - PNG/JPEG/WebP 바이너리를 WebP로 변환
func ConvertToWebP(data []byte, quality float32) ([]byte, error) {
	log.Debug().Msgf("🔄 Converting image to WebP (quality: %.1f)", quality)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// WebP 인코딩
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Info().Msgf("✅ Image converted to WebP: %d bytes → %d bytes", len(data), len(webpData))
	return webpData, nil
}

// ResizeImage - 비율 그대로 지정 크기로 리사이즈 (Nearest Neighbor)
func ResizeImage(src image.Image, targetWidth, targetHeight int) image.Image {
	srcBounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))

	scaleX := float64(srcBounds.Dx()) / float64(targetWidth)
	scaleY := float64(srcBounds.Dy()) / float64(targetHeight)

	for y := 0; y < targetHeight; y++ {
		for x := 0; x < targetWidth; x++ {
			srcX := srcBounds.Min.X + int(float64(x)*scaleX)
			srcY := srcBounds.Min.Y + int(float64(y)*scaleY)
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}

	return dst
}
