package options

import (
	"fmt"
	"strings"

	"portrait-studio-server/modules/common/model"
)

const (
	defaultStyle        = "photorealistic"
	defaultContext      = "a simple, elegant background"
	defaultPreviewScene = "a simple background"
	defaultCameraAngle  = "eye-level portrait shot"
	defaultLighting     = "soft, flattering studio light"
)

// BuildPrompt - 전체 이미지 생성 프롬프트
// 비어있는 옵션은 기본값으로 채움
func BuildPrompt(o model.Options) string {
	var sb strings.Builder
	sb.WriteString("Re-imagine the person in the provided photo with the following creative direction. ")
	sb.WriteString("IMPORTANT: Faithfully preserve the person's distinct facial features, identity, and all their characteristics.\n")
	sb.WriteString(fmt.Sprintf("- Style: %s.\n", orDefault(o.Style, defaultStyle)))
	sb.WriteString(fmt.Sprintf("- Scene/Context: %s.\n", orDefault(o.Context, defaultContext)))
	sb.WriteString(fmt.Sprintf("- Camera Angle: %s.\n", orDefault(o.CameraAngle, defaultCameraAngle)))
	sb.WriteString(fmt.Sprintf("- Lighting: %s.\n", orDefault(o.Lighting, defaultLighting)))
	sb.WriteString("The final image should be a high-quality, artistic interpretation based on these elements.")
	return sb.String()
}

// BuildPreviewPrompt - 빠른 미리보기 프롬프트 (스타일 + 배경만 사용)
func BuildPreviewPrompt(style, context string) string {
	var sb strings.Builder
	sb.WriteString("Generate a quick, conceptual preview of the person in the provided photo. ")
	sb.WriteString("IMPORTANT: Faithfully preserve the person's distinct facial features and identity.\n")
	sb.WriteString(fmt.Sprintf("- Style: %s.\n", orDefault(style, defaultStyle)))
	sb.WriteString(fmt.Sprintf("- Scene/Context: %s.\n", orDefault(context, defaultPreviewScene)))
	sb.WriteString("Focus on the face and how the style is applied. This is a fast preview, not a final, detailed image.")
	return sb.String()
}

// BuildSuggestPrompt - 업로드된 사진 분석 후 스타일/배경 추천 요청
func BuildSuggestPrompt() string {
	return "Analyze the person in the provided portrait photo: their expression, clothing, mood and features. " +
		"Suggest one creative art style and one scene/context that would make a striking re-imagined portrait of them. " +
		"Keep each value short (under 8 words), in the same register as these examples.\n" +
		"Style examples: " + strings.Join(StyleOptions[:4], "; ") + ".\n" +
		"Context examples: " + strings.Join(ContextOptions[:4], "; ") + ".\n" +
		"Answer only with JSON containing \"style\" and \"context\"."
}

// BuildSurprisePrompt - 테마 기반 랜덤 옵션 세트 요청
func BuildSurprisePrompt(theme string) string {
	return fmt.Sprintf("Invent a cohesive, imaginative portrait concept around the theme: %s. ", theme) +
		"Return a style, a scene/context, a camera angle and a lighting setup that fit together. " +
		"Keep each value short (under 8 words).\n" +
		"Answer only with JSON containing \"style\", \"context\", \"cameraAngle\" and \"lighting\"."
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
