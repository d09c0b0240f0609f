package worker

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/utils"
)

// JobHandler - Job 조회/취소 API 핸들러
type JobHandler struct {
	store    *JobStore
	notifier Notifier
}

// NewJobHandler - 핸들러 생성 (notifier는 nil 가능)
func NewJobHandler(store *JobStore, notifier Notifier) *JobHandler {
	return &JobHandler{store: store, notifier: notifier}
}

// RegisterRoutes - 라우트 등록
func (h *JobHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/jobs/{jobId}", h.GetJob).Methods("GET")
	r.HandleFunc("/api/jobs/{jobId}/cancel", h.CancelJob).Methods("POST", "OPTIONS")
}

// GetJob - GET /api/jobs/{jobId}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, err := h.store.Load(r.Context(), jobID)
	if errors.Is(err, ErrJobNotFound) {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Error().Msgf("❌ [Jobs] %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	utils.WriteJSON(w, http.StatusOK, job)
}

// CancelJob - POST /api/jobs/{jobId}/cancel (대기 중인 job만 취소 가능)
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	jobID := mux.Vars(r)["jobId"]
	log.Info().Msgf("🛑 [Jobs] Cancel requested for job: %s", jobID)

	job, err := h.store.Cancel(r.Context(), jobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, ErrJobFinished):
		utils.WriteError(w, http.StatusConflict, "job already "+job.Status)
		return
	case err != nil:
		log.Error().Msgf("❌ [Jobs] %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	if h.notifier != nil {
		h.notifier.NotifyJob(job)
	}
	utils.WriteJSON(w, http.StatusOK, job)
}
