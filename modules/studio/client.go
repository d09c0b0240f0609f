package studio

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/model"
	generateimage "portrait-studio-server/modules/generate-image"
)

// 메시지 타입
const (
	MessageState         = "state"
	MessagePreviewReady  = "preview_ready"
	MessagePreviewFailed = "preview_failed"
	MessageJobUpdate     = "job_update"
	MessageUserJoined    = "user_joined"
	MessageUserLeft      = "user_left"
	MessageError         = "error"

	// 클라이언트 → 서버
	MessageSetOptions   = "set_options"
	MessageUndo         = "undo"
	MessageRedo         = "redo"
	MessageRequestState = "request_state"
)

// Message - websocket 메시지
type Message struct {
	Type      string                `json:"type"`
	SessionID string                `json:"sessionId,omitempty"`
	UserID    string                `json:"userId,omitempty"`
	State     *State                `json:"state,omitempty"`
	Options   *model.Options        `json:"options,omitempty"`
	Patch     *model.OptionsPatch   `json:"patch,omitempty"`
	Preview   *generateimage.Result `json:"preview,omitempty"`
	Job       *model.GenerationJob  `json:"job,omitempty"`
	Error     string                `json:"error,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 모든 origin 허용 (CORS와 동일 정책)
		return true
	},
}

// Client - 세션에 연결된 websocket 클라이언트
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func newClient(conn *websocket.Conn, userID string) *Client {
	return &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// readPump - 클라이언트로부터 메시지 읽기
func (c *Client) readPump(session *Session) {
	defer func() {
		session.removeClient(c)
		c.conn.Close()
	}()

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Msgf("WebSocket error: %v", err)
			}
			return
		}

		switch message.Type {
		case MessageSetOptions:
			if message.Patch == nil {
				c.reply(session, Message{Type: MessageError, Error: "patch is required"})
				continue
			}
			if _, err := session.ApplyPatch(*message.Patch); err != nil {
				c.reply(session, Message{Type: MessageError, Error: err.Error()})
			}

		case MessageUndo:
			session.Undo()

		case MessageRedo:
			session.Redo()

		case MessageRequestState:
			state := session.State()
			c.reply(session, Message{Type: MessageState, State: &state})

		default:
			log.Debug().Msgf("Ignoring message type '%s' from %s", message.Type, c.userID)
		}
	}
}

// reply - 이 클라이언트에게만 전송
func (c *Client) reply(session *Session, message Message) {
	message.SessionID = session.ID()
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return
	}

	session.mutex.RLock()
	defer session.mutex.RUnlock()
	if session.clients[c.userID] != c {
		return
	}
	select {
	case c.send <- messageBytes:
	default:
	}
}

// writePump - 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Warn().Msgf("WebSocket write error: %v", err)
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
