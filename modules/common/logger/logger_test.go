package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetupLevel(t *testing.T) {
	l := Setup("production", "debug")
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())

	l = Setup("production", "not-a-level")
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestMiddlewareCapturesStatus(t *testing.T) {
	var seen *responseWriter
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, http.StatusTeapot, seen.status)
}

func TestHijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	assert.Error(t, err)
}
