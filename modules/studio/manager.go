package studio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/metrics"
	"portrait-studio-server/modules/common/model"
	generateimage "portrait-studio-server/modules/generate-image"
)

// ErrSessionNotFound - 존재하지 않거나 정리된 세션
var ErrSessionNotFound = errors.New("session not found")

// Generator - 이미지 생성/미리보기 (generateimage.Service)
type Generator interface {
	Generate(ctx context.Context, req generateimage.Request) (*generateimage.Result, error)
	Preview(ctx context.Context, req generateimage.Request) (*generateimage.Result, error)
}

// 세션 정리 기준
const (
	emptyGrace        = 10 * time.Minute
	expiredThreshold  = 24 * time.Hour
	inactiveThreshold = 2 * time.Hour
)

// Stats - 서버 통계
type Stats struct {
	TotalSessions    int       `json:"totalSessions"`
	ActiveSessions   int       `json:"activeSessions"`
	TotalConnections int       `json:"totalConnections"`
	CurrentClients   int       `json:"currentClients"`
	StartTime        time.Time `json:"startTime"`
	Uptime           string    `json:"uptime"`
}

// Manager - 세션 매니저
type Manager struct {
	generator Generator
	delay     time.Duration

	mutex            sync.RWMutex
	sessions         map[string]*Session
	totalSessions    int
	totalConnections int
	startTime        time.Time
}

// NewManager - delay는 옵션 변경 후 미리보기까지 대기 시간
func NewManager(generator Generator, delay time.Duration) *Manager {
	return &Manager{
		generator: generator,
		delay:     delay,
		sessions:  make(map[string]*Session),
		startTime: time.Now(),
	}
}

// Create - 새 세션 생성
func (m *Manager) Create() *Session {
	session := newSession(uuid.NewString(), m.generator, m.delay)

	m.mutex.Lock()
	m.sessions[session.id] = session
	m.totalSessions++
	active := len(m.sessions)
	m.mutex.Unlock()

	metrics.ActiveSessions.Inc()
	log.Info().Msgf("🆕 Created session %s (Active: %d)", session.id, active)
	return session
}

// Get - 세션 조회
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete - 세션 종료 및 제거
func (m *Manager) Delete(id string) error {
	m.mutex.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mutex.Unlock()

	if !exists {
		return ErrSessionNotFound
	}

	session.Close()
	metrics.ActiveSessions.Dec()
	log.Info().Msgf("🗑️  Deleted session %s", id)
	return nil
}

// NotifyJob - job 상태를 해당 세션 클라이언트에게 전달
func (m *Manager) NotifyJob(job *model.GenerationJob) {
	session, err := m.Get(job.SessionID)
	if err != nil {
		log.Debug().Msgf("Job %s update for missing session %s", job.JobID, job.SessionID)
		return
	}
	session.broadcastAll(Message{Type: MessageJobUpdate, Job: job})
}

// connected - websocket 연결 수 집계
func (m *Manager) connected() {
	m.mutex.Lock()
	m.totalConnections++
	m.mutex.Unlock()
}

// Stats - 통계 스냅샷
func (m *Manager) Stats() Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	clients := 0
	for _, session := range m.sessions {
		clients += session.clientCount()
	}
	return Stats{
		TotalSessions:    m.totalSessions,
		ActiveSessions:   len(m.sessions),
		TotalConnections: m.totalConnections,
		CurrentClients:   clients,
		StartTime:        m.startTime,
		Uptime:           time.Since(m.startTime).Round(time.Second).String(),
	}
}

// removeWhere - pred가 true인 세션 제거 후 정리된 수 반환
func (m *Manager) removeWhere(reason string, pred func(*Session) bool) int {
	m.mutex.Lock()
	var removed []*Session
	for id, session := range m.sessions {
		if pred(session) {
			delete(m.sessions, id)
			removed = append(removed, session)
		}
	}
	active := len(m.sessions)
	m.mutex.Unlock()

	for _, session := range removed {
		session.Close()
		metrics.ActiveSessions.Dec()
		log.Info().Msgf("🧹 Cleaned up %s session: %s", reason, session.id)
	}
	if len(removed) > 0 {
		log.Info().Msgf("🗑️  Cleaned up %d %s sessions (Active: %d)", len(removed), reason, active)
	}
	return len(removed)
}

// CleanupEmptySessions - 연결된 클라이언트 없이 emptyGrace 이상 방치된 세션 정리
func (m *Manager) CleanupEmptySessions() int {
	now := time.Now()
	return m.removeWhere("empty", func(s *Session) bool {
		return s.clientCount() == 0 && s.idleFor(now) > emptyGrace
	})
}

// CleanupExpiredSessions - 24시간 지난 세션, 2시간 이상 비활성 세션 정리
func (m *Manager) CleanupExpiredSessions() int {
	now := time.Now()
	return m.removeWhere("expired", func(s *Session) bool {
		return now.Sub(s.createdAt) > expiredThreshold || s.idleFor(now) > inactiveThreshold
	})
}

// StartCleanupRoutine - 정기적 정리 작업 시작 (ctx 종료 시 중단)
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	// 5분마다 빈 세션 정리
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupEmptySessions()
			}
		}
	}()

	// 30분마다 만료된 세션 정리
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupExpiredSessions()
			}
		}
	}()

	log.Info().Msg("🔄 Started session cleanup routines (Empty: 5min, Expired: 30min)")
}

// Shutdown - 모든 세션 종료
func (m *Manager) Shutdown() {
	m.removeWhere("shutdown", func(*Session) bool { return true })
}
