package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/refunda-ai/refunda/internal/api"
)

const websocketHandshakeTimeout = 10 * time.Second

// ChatEvent is one server message delivered on a chat stream.
type ChatEvent struct {
	Type      string
	SessionID string
	Session   *api.SessionDTO
	Reply     *api.TurnReplyDTO
	Error     string
}

type wsInbound struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// ChatStream is a live WebSocket conversation with the refund agent.
// Events arrive on Events until the stream closes.
type ChatStream struct {
	conn   *websocket.Conn
	events chan ChatEvent

	writeMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	closed    bool
}

// OpenChat dials the daemon's chat endpoint. sessionID may be empty, in
// which case the daemon creates a fresh voice session for the stream.
func (c *Client) OpenChat(sessionID string) (*ChatStream, error) {
	wsURL, err := makeWebsocketURL(c.baseURL, sessionID)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: websocketHandshakeTimeout,
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := dialer.Dial(wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, fmt.Errorf("chat connect: %w", readAPIError(resp))
		}
		return nil, fmt.Errorf("chat connect: %w", err)
	}

	stream := &ChatStream{
		conn:      conn,
		events:    make(chan ChatEvent, 16),
		sessionID: sessionID,
	}
	go stream.readLoop()
	return stream, nil
}

// SessionID returns the session bound to the stream. For streams opened
// without a session ID it becomes available after the first event.
func (s *ChatStream) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Events returns the channel of server messages. It is closed when the
// stream ends.
func (s *ChatStream) Events() <-chan ChatEvent {
	return s.events
}

// Send submits one caller utterance over the stream.
func (s *ChatStream) Send(text string) error {
	return s.writeJSON(map[string]any{
		"type": "utterance",
		"data": text,
	})
}

// Stop asks the daemon to end the session bound to this stream.
func (s *ChatStream) Stop() error {
	return s.writeJSON(map[string]any{"type": "stop"})
}

// Close terminates the stream.
func (s *ChatStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(2*time.Second))
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *ChatStream) writeJSON(payload map[string]any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.New("client: chat stream closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(payload)
}

func (s *ChatStream) readLoop() {
	defer close(s.events)

	for {
		var msg wsInbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}

		event := ChatEvent{Type: msg.Type, SessionID: msg.SessionID}
		if msg.SessionID != "" {
			s.mu.Lock()
			s.sessionID = msg.SessionID
			s.mu.Unlock()
		}

		switch msg.Type {
		case "session_created", "session_joined":
			var dto api.SessionDTO
			if err := json.Unmarshal(msg.Data, &dto); err == nil {
				event.Session = &dto
			}
		case "reply":
			var dto api.TurnReplyDTO
			if err := json.Unmarshal(msg.Data, &dto); err == nil {
				event.Reply = &dto
			}
		case "error":
			var text string
			if err := json.Unmarshal(msg.Data, &text); err == nil {
				event.Error = text
			}
		}

		s.events <- event
	}
}

func makeWebsocketURL(baseURL, sessionID string) (string, error) {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		baseURL = "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		baseURL = "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return "", fmt.Errorf("client: unsupported base URL scheme in %q", baseURL)
	}

	wsURL := baseURL + "/ws"
	if sessionID != "" {
		wsURL += "?session=" + sessionID
	}
	return wsURL, nil
}
