package studio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/model"
	"portrait-studio-server/modules/common/utils"
	generateimage "portrait-studio-server/modules/generate-image"
)

const maxUploadBytes = 20 << 20

// Assistant - AI 추천 (assistant.Service)
type Assistant interface {
	Suggest(ctx context.Context, img *model.UploadedImage) (model.OptionsPatch, error)
	Surprise(ctx context.Context) (model.Options, error)
}

// JobQueue - 생성 job 큐 (worker.JobStore)
type JobQueue interface {
	Enqueue(ctx context.Context, job *model.GenerationJob, img *model.UploadedImage) (int64, error)
}

// OptionsResponse - 옵션 변경 응답
type OptionsResponse struct {
	Changed bool  `json:"changed"`
	State   State `json:"state"`
}

// GenerateResponse - 동기 생성 응답
type GenerateResponse struct {
	Options model.Options         `json:"options"`
	Result  *generateimage.Result `json:"result"`
}

// EnqueueResponse - job 등록 응답
type EnqueueResponse struct {
	Job           *model.GenerationJob `json:"job"`
	QueuePosition int64                `json:"queuePosition"`
}

type imageRequest struct {
	DataURL string `json:"dataUrl"`
}

// Handler - 스튜디오 세션 API
type Handler struct {
	manager   *Manager
	generator Generator
	assistant Assistant
	jobs      JobQueue
}

// NewHandler - jobs가 nil이면 /jobs는 503
func NewHandler(manager *Manager, generator Generator, assistant Assistant, jobs JobQueue) *Handler {
	return &Handler{
		manager:   manager,
		generator: generator,
		assistant: assistant,
		jobs:      jobs,
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket)
	r.HandleFunc("/stats", h.GetStats).Methods("GET")
	r.HandleFunc("/admin/cleanup", h.ForceCleanup).Methods("POST")

	api := r.PathPrefix("/api/sessions").Subrouter()
	api.HandleFunc("", h.CreateSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/{id}", h.DeleteSession).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/{id}/image", h.UploadImage).Methods("PUT", "OPTIONS")
	api.HandleFunc("/{id}/options", h.PatchOptions).Methods("PATCH", "OPTIONS")
	api.HandleFunc("/{id}/undo", h.Undo).Methods("POST", "OPTIONS")
	api.HandleFunc("/{id}/redo", h.Redo).Methods("POST", "OPTIONS")
	api.HandleFunc("/{id}/generate", h.Generate).Methods("POST", "OPTIONS")
	api.HandleFunc("/{id}/preview", h.Preview).Methods("POST", "OPTIONS")
	api.HandleFunc("/{id}/suggest", h.Suggest).Methods("POST", "OPTIONS")
	api.HandleFunc("/{id}/surprise", h.Surprise).Methods("POST", "OPTIONS")
	api.HandleFunc("/{id}/jobs", h.EnqueueJob).Methods("POST", "OPTIONS")
}

// session - {id} 세션 조회, 없으면 404 작성 후 nil
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *Session {
	session, err := h.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return nil
	}
	return session
}

// writeGenerationError - 생성 관련 에러를 상태 코드로 변환
func writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, generateimage.ErrImageRequired):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, generateimage.ErrPreviewNotReady):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Msgf("❌ %v", err)
		utils.WriteError(w, http.StatusBadGateway, err.Error())
	}
}

func preflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

// CreateSession - POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.manager.Create()
	utils.WriteJSON(w, http.StatusCreated, session.State())
}

// GetSession - GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	if session == nil {
		return
	}
	utils.WriteJSON(w, http.StatusOK, session.State())
}

// DeleteSession - DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	if err := h.manager.Delete(mux.Vars(r)["id"]); err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage - PUT /api/sessions/{id}/image (multipart "file" 또는 JSON {dataUrl})
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}

	data, mimeType, err := readImage(w, r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, err := utils.DecodeUpload(data, mimeType)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	session.SetImage(img)
	utils.WriteJSON(w, http.StatusOK, session.State())
}

func readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New("file is required")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, header.Header.Get("Content-Type"), nil
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", errors.New("invalid request body")
	}
	mimeType, data, err := utils.ParseDataURL(req.DataURL)
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

// PatchOptions - PATCH /api/sessions/{id}/options
func (h *Handler) PatchOptions(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}

	var patch model.OptionsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	changed, err := session.ApplyPatch(patch)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, OptionsResponse{Changed: changed, State: session.State()})
}

// Undo - POST /api/sessions/{id}/undo
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}
	changed := session.Undo()
	utils.WriteJSON(w, http.StatusOK, OptionsResponse{Changed: changed, State: session.State()})
}

// Redo - POST /api/sessions/{id}/redo
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}
	changed := session.Redo()
	utils.WriteJSON(w, http.StatusOK, OptionsResponse{Changed: changed, State: session.State()})
}

// Generate - POST /api/sessions/{id}/generate (현재 옵션으로 동기 생성)
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}

	options := session.Options()
	result, err := h.generator.Generate(r.Context(), generateimage.Request{
		SessionID: session.ID(),
		Image:     session.Image(),
		Options:   options,
	})
	if err != nil {
		writeGenerationError(w, err)
		return
	}
	session.touch()
	utils.WriteJSON(w, http.StatusOK, GenerateResponse{Options: options, Result: result})
}

// Preview - POST /api/sessions/{id}/preview (debounce 없이 즉시 미리보기)
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}

	options := session.Options()
	result, err := h.generator.Preview(r.Context(), generateimage.Request{
		SessionID: session.ID(),
		Image:     session.Image(),
		Options:   options,
	})
	if err != nil {
		writeGenerationError(w, err)
		return
	}
	session.touch()
	utils.WriteJSON(w, http.StatusOK, GenerateResponse{Options: options, Result: result})
}

// Suggest - POST /api/sessions/{id}/suggest (추천 결과는 undo 가능한 변경으로 적용)
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}

	img := session.Image()
	if img == nil {
		utils.WriteError(w, http.StatusConflict, generateimage.ErrImageRequired.Error())
		return
	}

	patch, err := h.assistant.Suggest(r.Context(), img)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	changed, err := session.ApplyPatch(patch)
	if err != nil {
		utils.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, OptionsResponse{Changed: changed, State: session.State()})
}

// Surprise - POST /api/sessions/{id}/surprise (비율은 유지)
func (h *Handler) Surprise(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}

	options, err := h.assistant.Surprise(r.Context())
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	changed := session.ReplaceOptions(options)
	utils.WriteJSON(w, http.StatusOK, OptionsResponse{Changed: changed, State: session.State()})
}

// EnqueueJob - POST /api/sessions/{id}/jobs (현재 옵션으로 백그라운드 생성)
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	session := h.session(w, r)
	if session == nil {
		return
	}
	if h.jobs == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "job queue is not configured")
		return
	}

	img := session.Image()
	if img == nil {
		utils.WriteError(w, http.StatusConflict, generateimage.ErrImageRequired.Error())
		return
	}

	now := time.Now().UTC()
	job := &model.GenerationJob{
		JobID:     uuid.NewString(),
		SessionID: session.ID(),
		Status:    model.StatusPending,
		Options:   session.Options(),
		CreatedAt: now,
	}

	position, err := h.jobs.Enqueue(r.Context(), job, img)
	if err != nil {
		log.Error().Msgf("❌ [Enqueue] %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	log.Info().Msgf("✅ [Enqueue] Job %s enqueued for session %s (position: %d)", job.JobID, session.ID(), position)
	session.touch()
	h.manager.NotifyJob(job)
	utils.WriteJSON(w, http.StatusAccepted, EnqueueResponse{Job: job, QueuePosition: position})
}

// HandleWebSocket - GET /ws?session=<id>&user=<id>
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	userID := r.URL.Query().Get("user")
	if sessionID == "" || userID == "" {
		utils.WriteError(w, http.StatusBadRequest, "session and user are required")
		return
	}

	session, err := h.manager.Get(sessionID)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	// WebSocket 연결 업그레이드
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Msgf("WebSocket upgrade failed: %v", err)
		return
	}

	log.Debug().Msgf("🔍 New WebSocket connection - Session: %s, User: %s", sessionID, userID)

	client := newClient(conn, userID)
	if !session.addClient(client) {
		conn.Close()
		return
	}
	h.manager.connected()

	state := session.State()
	client.reply(session, Message{Type: MessageState, State: &state})

	// 고루틴으로 읽기/쓰기 처리
	go client.writePump()
	go client.readPump(session)
}

// GetStats - GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.manager.Stats())
}

// ForceCleanup - POST /admin/cleanup
func (h *Handler) ForceCleanup(w http.ResponseWriter, r *http.Request) {
	empty := h.manager.CleanupEmptySessions()
	expired := h.manager.CleanupExpiredSessions()
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "Cleanup completed",
		"empty":   empty,
		"expired": expired,
	})
}
