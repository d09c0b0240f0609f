package preview

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/model"
	"portrait-studio-server/modules/common/utils"
	generateimage "portrait-studio-server/modules/generate-image"
)

// PreviewHandler handles one-off previews without a session.
type PreviewHandler struct {
	service *generateimage.Service
}

type PreviewRequest struct {
	DataURL string `json:"dataUrl"`
	Style   string `json:"style,omitempty"`
	Context string `json:"context,omitempty"`
}

// NewPreviewHandler creates a handler instance.
func NewPreviewHandler(service *generateimage.Service) *PreviewHandler {
	return &PreviewHandler{service: service}
}

// RegisterRoutes wires preview endpoints.
func (h *PreviewHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/preview", h.handlePreview).Methods("POST", "OPTIONS")
}

func (h *PreviewHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := model.Options{Style: req.Style, Context: req.Context, AspectRatio: model.AspectSquare}
	if !opts.ReadyForPreview() {
		utils.WriteError(w, http.StatusBadRequest, generateimage.ErrPreviewNotReady.Error())
		return
	}

	img, err := generateimage.DecodeDataURL(req.DataURL)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Preview(r.Context(), generateimage.Request{Image: img, Options: opts})
	if err != nil {
		log.Error().Msgf("❌ [Preview] %v", err)
		utils.WriteError(w, generateimage.StatusFor(err), err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}
