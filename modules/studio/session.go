package studio

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/debounce"
	"portrait-studio-server/modules/common/history"
	"portrait-studio-server/modules/common/metrics"
	"portrait-studio-server/modules/common/model"
	generateimage "portrait-studio-server/modules/generate-image"
)

// State - 세션 상태 스냅샷 (REST 응답 / websocket "state" 메시지)
type State struct {
	SessionID      string               `json:"sessionId"`
	Options        model.Options        `json:"options"`
	CanUndo        bool                 `json:"canUndo"`
	CanRedo        bool                 `json:"canRedo"`
	PastCount      int                  `json:"pastCount"`
	FutureCount    int                  `json:"futureCount"`
	HasImage       bool                 `json:"hasImage"`
	Image          *model.UploadedImage `json:"image,omitempty"`
	PreviewPending bool                 `json:"previewPending"`
	Clients        int                  `json:"clients"`
	CreatedAt      time.Time            `json:"createdAt"`
	LastActivity   time.Time            `json:"lastActivity"`
}

// Session - 한 사용자의 스튜디오 작업 공간
type Session struct {
	id      string
	history *history.Store[model.Options]
	preview *debounce.Cell[model.Options]

	generator Generator
	ctx       context.Context
	cancel    context.CancelFunc

	mutex        sync.RWMutex
	image        *model.UploadedImage
	lastPreview  *generateimage.Result
	clients      map[string]*Client
	createdAt    time.Time
	lastActivity time.Time
	closed       bool
}

func newSession(id string, generator Generator, delay time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	s := &Session{
		id:           id,
		generator:    generator,
		ctx:          ctx,
		cancel:       cancel,
		clients:      make(map[string]*Client),
		createdAt:    now,
		lastActivity: now,
	}

	initial := model.DefaultOptions()
	s.preview = debounce.New(initial, delay, debounce.WithOnCommit(s.runPreview))
	s.history = history.New(initial, model.Options.Equal, history.WithOnChange(s.optionsChanged))
	return s
}

// ID - 세션 ID
func (s *Session) ID() string {
	return s.id
}

// Options - 현재 옵션
func (s *Session) Options() model.Options {
	return s.history.Current()
}

// Image - 업로드된 사진 (없으면 nil)
func (s *Session) Image() *model.UploadedImage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.image
}

// LastPreview - 마지막으로 성공한 미리보기
func (s *Session) LastPreview() *generateimage.Result {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastPreview
}

// State - 현재 상태 스냅샷
func (s *Session) State() State {
	snap := s.history.Snapshot()

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return State{
		SessionID:      s.id,
		Options:        snap.Present,
		CanUndo:        len(snap.Past) > 0,
		CanRedo:        len(snap.Future) > 0,
		PastCount:      len(snap.Past),
		FutureCount:    len(snap.Future),
		HasImage:       s.image != nil,
		Image:          s.image,
		PreviewPending: s.preview.Pending(),
		Clients:        len(s.clients),
		CreatedAt:      s.createdAt,
		LastActivity:   s.lastActivity,
	}
}

// ApplyPatch - 부분 옵션 변경 (변경 없으면 history 기록 안 함)
func (s *Session) ApplyPatch(patch model.OptionsPatch) (bool, error) {
	if err := patch.Validate(); err != nil {
		return false, err
	}
	s.touch()
	changed := s.history.SetWith(patch.Apply)
	metrics.RecordHistory("set", changed)
	return changed, nil
}

// ReplaceOptions - 옵션 전체 교체 (비율은 유지)
func (s *Session) ReplaceOptions(next model.Options) bool {
	s.touch()
	changed := s.history.SetWith(func(prev model.Options) model.Options {
		next.AspectRatio = prev.AspectRatio
		return next
	})
	metrics.RecordHistory("set", changed)
	return changed
}

// Undo - 이전 옵션으로
func (s *Session) Undo() bool {
	s.touch()
	changed := s.history.Undo()
	metrics.RecordHistory("undo", changed)
	return changed
}

// Redo - 되돌린 옵션 다시 적용
func (s *Session) Redo() bool {
	s.touch()
	changed := s.history.Redo()
	metrics.RecordHistory("redo", changed)
	return changed
}

// SetImage - 사진 교체 후 미리보기 예약
func (s *Session) SetImage(img *model.UploadedImage) {
	s.mutex.Lock()
	s.image = img
	s.lastPreview = nil
	s.lastActivity = time.Now()
	s.mutex.Unlock()

	log.Info().Msgf("🖼️  Session %s image set: %s %dx%d", s.id, img.MimeType, img.Width, img.Height)
	s.preview.OnInputChanged(s.history.Current())
	s.broadcastState()
}

// Close - 세션 종료: 예약된 미리보기 취소, 진행 중 호출 중단, 클라이언트 연결 해제
func (s *Session) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	for userID, client := range s.clients {
		close(client.send)
		delete(s.clients, userID)
	}
	s.mutex.Unlock()

	s.preview.Close()
	s.cancel()
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.lastActivity = time.Now()
	s.mutex.Unlock()
}

// optionsChanged - history 변경 리스너: 미리보기 예약 + 상태 전송
// 인자 대신 현재 값을 읽음 (동시 편집 시 늦게 도착한 알림 방지)
func (s *Session) optionsChanged(model.Options) {
	s.preview.OnInputChanged(s.history.Current())
	s.broadcastState()
}

// runPreview - debounce 확정 시 호출, 항상 현재 옵션으로 미리보기
func (s *Session) runPreview(model.Options) {
	options := s.history.Current()
	img := s.Image()
	if img == nil || !options.ReadyForPreview() {
		log.Debug().Msgf("⏭️  Session %s: preview skipped (image: %v, ready: %v)", s.id, img != nil, options.ReadyForPreview())
		return
	}

	result, err := s.generator.Preview(s.ctx, generateimage.Request{
		SessionID: s.id,
		Image:     img,
		Options:   options,
	})

	// 세션이 닫힌 뒤에는 결과를 버림
	if s.ctx.Err() != nil {
		return
	}

	if err != nil {
		log.Warn().Msgf("⚠️  Session %s preview failed: %v", s.id, err)
		s.broadcastAll(Message{Type: MessagePreviewFailed, Options: &options, Error: err.Error()})
		return
	}

	s.mutex.Lock()
	s.lastPreview = result
	s.mutex.Unlock()
	s.broadcastAll(Message{Type: MessagePreviewReady, Options: &options, Preview: result})
}

// addClient - 같은 userID의 기존 연결은 교체
func (s *Session) addClient(client *Client) bool {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return false
	}
	if old, exists := s.clients[client.userID]; exists {
		close(old.send)
	}
	s.clients[client.userID] = client
	s.lastActivity = time.Now()
	clientCount := len(s.clients)
	s.mutex.Unlock()

	log.Info().Msgf("👤 Client %s joined session %s (Clients: %d)", client.userID, s.id, clientCount)
	s.broadcastOthers(client.userID, Message{Type: MessageUserJoined, UserID: client.userID})
	return true
}

// removeClient - client가 현재 등록된 연결일 때만 제거
func (s *Session) removeClient(client *Client) {
	s.mutex.Lock()
	current, exists := s.clients[client.userID]
	if !exists || current != client {
		s.mutex.Unlock()
		return
	}
	close(client.send)
	delete(s.clients, client.userID)
	s.lastActivity = time.Now()
	remaining := len(s.clients)
	s.mutex.Unlock()

	log.Info().Msgf("👋 Client %s left session %s (Remaining: %d)", client.userID, s.id, remaining)
	s.broadcastOthers(client.userID, Message{Type: MessageUserLeft, UserID: client.userID})
}

func (s *Session) clientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return now.Sub(s.lastActivity)
}

func (s *Session) broadcastState() {
	state := s.State()
	s.broadcastAll(Message{Type: MessageState, State: &state})
}

func (s *Session) broadcastAll(message Message) {
	s.broadcastOthers("", message)
}

// broadcastOthers - exceptUserID를 제외한 모든 클라이언트에게 전송
// 버퍼가 가득 찬 클라이언트는 연결 해제
func (s *Session) broadcastOthers(exceptUserID string, message Message) {
	message.SessionID = s.id
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Error().Msgf("Error marshaling message: %v", err)
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for userID, client := range s.clients {
		if userID == exceptUserID {
			continue
		}
		select {
		case client.send <- messageBytes:
		default:
			log.Warn().Msgf("⚠️  Dropping slow client %s from session %s", userID, s.id)
			close(client.send)
			delete(s.clients, userID)
		}
	}
}
