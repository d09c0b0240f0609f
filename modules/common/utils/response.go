package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorResponse - 에러 응답 본문
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON - JSON 응답 작성
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Msgf("❌ Failed to encode response: %v", err)
	}
}

// WriteError - {"error": msg} 응답 작성
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}
