package options

import "portrait-studio-server/modules/common/model"

// StyleOptions - 스타일 버튼 목록
var StyleOptions = []string{
	"Digital painting, fantasy",
	"Neon cyberpunk city",
	"Ancient warrior, detailed armor",
	"Astronaut in space, cosmic background",
	"Impressionist portrait",
	"Vivid watercolor illustration",
	"Gothic and mysterious",
	"Steampunk inventor",
	"Superhero, cinematic lighting",
	"Anime character style",
	"Oil painting masterpiece",
	"Pixar animated character",
}

// ContextOptions - 배경/장면 버튼 목록
var ContextOptions = []string{
	"Misty forest",
	"Futuristic cityscape",
	"Enchanted castle",
	"Sunny beach",
	"Post-apocalyptic ruins",
	"Cozy library",
	"Alien planet landscape",
	"Abstract geometric patterns",
}

// CameraAngleOptions - 카메라 앵글 버튼 목록
var CameraAngleOptions = []string{
	"Close-up",
	"Full body",
	"Low angle",
	"High angle",
	"Dutch angle",
	"Wide shot",
	"Profile view",
	"Over-the-shoulder",
}

// LightingOptions - 조명 버튼 목록
var LightingOptions = []string{
	"Cinematic lighting",
	"Soft, diffused light",
	"Dramatic backlight",
	"Golden hour sunlight",
	"Neon glow",
	"Studio lighting",
	"Mystic moonlight",
	"Smoky haze",
}

// AspectRatioOption - 비율 라벨
type AspectRatioOption struct {
	Label string            `json:"label"`
	Value model.AspectRatio `json:"value"`
}

// AspectRatioOptions - 비율 선택 목록
var AspectRatioOptions = []AspectRatioOption{
	{Label: "Square (1:1)", Value: model.AspectSquare},
	{Label: "Portrait (3:4)", Value: model.AspectPortrait},
	{Label: "Portrait (9:16)", Value: model.AspectTallPortrait},
	{Label: "Landscape (4:3)", Value: model.AspectLandscape},
	{Label: "Landscape (16:9)", Value: model.AspectWideLandscape},
}

// SurpriseThemes - "Surprise me" 랜덤 테마
var SurpriseThemes = []string{
	"a forgotten silent-film star",
	"a deep-sea explorer",
	"a desert nomad caravan leader",
	"a royal court painter in the Renaissance",
	"a retro 80s synthwave DJ",
	"a mountain monk at dawn",
	"a noir detective on a rainy night",
	"a botanical witch in a greenhouse",
	"a samurai in a cherry blossom storm",
	"a space pirate captain",
}

// Catalog - 클라이언트에 내려주는 전체 옵션 목록
type Catalog struct {
	Styles       []string            `json:"styles"`
	Contexts     []string            `json:"contexts"`
	CameraAngles []string            `json:"cameraAngles"`
	Lightings    []string            `json:"lightings"`
	AspectRatios []AspectRatioOption `json:"aspectRatios"`
}

// GetCatalog returns the option lists shown by the editor.
func GetCatalog() Catalog {
	return Catalog{
		Styles:       StyleOptions,
		Contexts:     ContextOptions,
		CameraAngles: CameraAngleOptions,
		Lightings:    LightingOptions,
		AspectRatios: AspectRatioOptions,
	}
}
