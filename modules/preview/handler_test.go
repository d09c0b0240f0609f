package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"portrait-studio-server/modules/common/gemini"
	"portrait-studio-server/modules/common/utils"
	generateimage "portrait-studio-server/modules/generate-image"
)

type stubGenerator struct{ calls int }

func (s *stubGenerator) GenerateImage(context.Context, string, []*genai.Part, string) (*gemini.Image, error) {
	s.calls++
	return &gemini.Image{Data: []byte("p"), MIMEType: "image/png"}, nil
}

func post(t *testing.T, gen *stubGenerator, body PreviewRequest) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	NewPreviewHandler(generateimage.NewService(gen, "m")).RegisterRoutes(r)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/preview", bytes.NewReader(raw)))
	return rec
}

func dataURL(t *testing.T) string {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))
	return utils.ToDataURL("image/png", buf.Bytes())
}

func TestPreview(t *testing.T) {
	gen := &stubGenerator{}
	rec := post(t, gen, PreviewRequest{DataURL: dataURL(t), Style: "Watercolor"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"dataUrl":"data:image/png;base64,cA=="`)
	assert.Equal(t, 1, gen.calls)
}

func TestPreviewNotReady(t *testing.T) {
	gen := &stubGenerator{}
	rec := post(t, gen, PreviewRequest{DataURL: dataURL(t)})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, gen.calls)
}
