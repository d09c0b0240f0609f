package model

import (
	"errors"
	"strings"
	"time"
)

// AspectRatio - 출력 이미지 비율
type AspectRatio string

const (
	AspectSquare        AspectRatio = "1:1"
	AspectPortrait      AspectRatio = "3:4"
	AspectLandscape     AspectRatio = "4:3"
	AspectTallPortrait  AspectRatio = "9:16"
	AspectWideLandscape AspectRatio = "16:9"
)

// AspectRatios lists every supported ratio in display order.
var AspectRatios = []AspectRatio{
	AspectSquare,
	AspectPortrait,
	AspectTallPortrait,
	AspectLandscape,
	AspectWideLandscape,
}

// Valid reports whether r is a supported ratio.
func (r AspectRatio) Valid() bool {
	for _, v := range AspectRatios {
		if r == v {
			return true
		}
	}
	return false
}

// ErrInvalidAspectRatio - 지원하지 않는 비율
var ErrInvalidAspectRatio = errors.New("invalid aspect ratio")

// Options - 생성 옵션 (undo/redo 대상)
//
// Options is a plain comparable value; Equal is the equality contract used by
// the option history.
type Options struct {
	Style       string      `json:"style"`
	Context     string      `json:"context"`
	CameraAngle string      `json:"cameraAngle"`
	Lighting    string      `json:"lighting"`
	AspectRatio AspectRatio `json:"aspectRatio"`
}

// DefaultOptions - 세션 시작 시 기본 옵션
func DefaultOptions() Options {
	return Options{AspectRatio: AspectSquare}
}

// Equal compares every field.
func (o Options) Equal(other Options) bool {
	return o == other
}

// ReadyForPreview - 스타일 또는 배경이 지정되어 있으면 미리보기 가능
func (o Options) ReadyForPreview() bool {
	return strings.TrimSpace(o.Style) != "" || strings.TrimSpace(o.Context) != ""
}

// OptionsPatch - 부분 업데이트 (nil 필드는 유지)
type OptionsPatch struct {
	Style       *string      `json:"style,omitempty"`
	Context     *string      `json:"context,omitempty"`
	CameraAngle *string      `json:"cameraAngle,omitempty"`
	Lighting    *string      `json:"lighting,omitempty"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// Validate checks the patch before it is applied.
func (p OptionsPatch) Validate() error {
	if p.AspectRatio != nil && !p.AspectRatio.Valid() {
		return ErrInvalidAspectRatio
	}
	return nil
}

// Empty reports whether the patch sets no field.
func (p OptionsPatch) Empty() bool {
	return p.Style == nil && p.Context == nil && p.CameraAngle == nil &&
		p.Lighting == nil && p.AspectRatio == nil
}

// Apply returns o with the patch's non-nil fields replaced.
func (p OptionsPatch) Apply(o Options) Options {
	if p.Style != nil {
		o.Style = strings.TrimSpace(*p.Style)
	}
	if p.Context != nil {
		o.Context = strings.TrimSpace(*p.Context)
	}
	if p.CameraAngle != nil {
		o.CameraAngle = strings.TrimSpace(*p.CameraAngle)
	}
	if p.Lighting != nil {
		o.Lighting = strings.TrimSpace(*p.Lighting)
	}
	if p.AspectRatio != nil {
		o.AspectRatio = *p.AspectRatio
	}
	return o
}

// UploadedImage - 업로드된 인물 사진
type UploadedImage struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// GenerationJob - 큐에 등록된 전체 이미지 생성 작업
type GenerationJob struct {
	JobID       string     `json:"job_id"`
	SessionID   string     `json:"session_id"`
	Status      string     `json:"status"`
	Options     Options    `json:"options"`
	ImageURL    string     `json:"image_url,omitempty"`
	DataURL     string     `json:"data_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Finished reports whether the job reached a terminal status.
func (j *GenerationJob) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}
