package generateimage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/model"
	"portrait-studio-server/modules/common/utils"
)

// GenerateRequest - 세션 없이 한 번에 생성하는 요청
type GenerateRequest struct {
	DataURL string        `json:"dataUrl"`
	Options model.Options `json:"options"`
}

type GenerateImageHandler struct {
	service *Service
}

func NewGenerateImageHandler(service *Service) *GenerateImageHandler {
	return &GenerateImageHandler{
		service: service,
	}
}

// RegisterRoutes - 라우트 등록
func (h *GenerateImageHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/generate", h.GenerateImage).Methods("POST", "OPTIONS")
}

// GenerateImage - POST /api/generate
func (h *GenerateImageHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Options.AspectRatio == "" {
		req.Options.AspectRatio = model.AspectSquare
	}
	if !req.Options.AspectRatio.Valid() {
		utils.WriteError(w, http.StatusBadRequest, model.ErrInvalidAspectRatio.Error())
		return
	}

	img, err := DecodeDataURL(req.DataURL)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Generate(r.Context(), Request{Image: img, Options: req.Options})
	if err != nil {
		log.Error().Msgf("❌ [Generate] %v", err)
		utils.WriteError(w, StatusFor(err), err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// DecodeDataURL - data URL을 검증된 업로드 이미지로 변환
func DecodeDataURL(dataURL string) (*model.UploadedImage, error) {
	if dataURL == "" {
		return nil, ErrImageRequired
	}
	mimeType, data, err := utils.ParseDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	return utils.DecodeUpload(data, mimeType)
}

// StatusFor - 생성 에러를 HTTP 상태로 변환
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrImageRequired), errors.Is(err, ErrPreviewNotReady):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}
