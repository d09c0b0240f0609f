package studio

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"portrait-studio-server/modules/common/model"
	generateimage "portrait-studio-server/modules/generate-image"
)

// fakeGenerator records calls; when block is set Preview waits for ctx.
type fakeGenerator struct {
	mu       sync.Mutex
	previews []model.Options
	generals []model.Options
	block    bool
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, req generateimage.Request) (*generateimage.Result, error) {
	if req.Image == nil {
		return nil, generateimage.ErrImageRequired
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generals = append(f.generals, req.Options)
	if f.err != nil {
		return nil, f.err
	}
	return &generateimage.Result{MimeType: "image/png", DataURL: "data:image/png;base64,Zg=="}, nil
}

func (f *fakeGenerator) Preview(ctx context.Context, req generateimage.Request) (*generateimage.Result, error) {
	if req.Image == nil {
		return nil, generateimage.ErrImageRequired
	}
	if !req.Options.ReadyForPreview() {
		return nil, generateimage.ErrPreviewNotReady
	}
	f.mu.Lock()
	f.previews = append(f.previews, req.Options)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &generateimage.Result{MimeType: "image/png", DataURL: "data:image/png;base64,cA=="}, nil
}

func (f *fakeGenerator) previewCalls() []model.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Options(nil), f.previews...)
}

type fakeAssistant struct {
	patch    model.OptionsPatch
	surprise model.Options
	err      error
}

func (f *fakeAssistant) Suggest(context.Context, *model.UploadedImage) (model.OptionsPatch, error) {
	return f.patch, f.err
}

func (f *fakeAssistant) Surprise(context.Context) (model.Options, error) {
	return f.surprise, f.err
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*model.GenerationJob
}

func (f *fakeQueue) Enqueue(_ context.Context, job *model.GenerationJob, _ *model.UploadedImage) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return int64(len(f.jobs)), nil
}

func strPtr(s string) *string { return &s }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

var portrait = &model.UploadedImage{Data: []byte{1, 2, 3}, MimeType: "image/png", Width: 4, Height: 4}
