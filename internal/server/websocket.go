package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/refunda-ai/refunda/internal/api"
	"github.com/refunda-ai/refunda/internal/session"
)

// Message represents a WebSocket message exchanged with chat clients.
type Message struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

type outboundMessage struct {
	messageType int
	payload     []byte
}

// wsClient represents one connected chat client bound to a single session.
type wsClient struct {
	conn      *websocket.Conn
	send      chan outboundMessage
	server    *APIServer
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Clients connect from CLI tools and local pages; the bearer
		// token on the upgrade request is the access control.
		return true
	},
}

// handleWebSocket upgrades the connection and binds it to a session.
// An existing session may be joined with ?session=<id>; otherwise a
// new voice session is created for the connection.
func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID != "" {
		if _, err := s.sessions.Get(sessionID); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] upgrade error: %v", err)
		return
	}

	created := false
	if sessionID == "" {
		sess := s.sessions.Create(session.InputVoice)
		sessionID = sess.Snapshot().ID
		created = true
	}

	// The connection outlives this handler, and net/http cancels r.Context()
	// on return. Submissions run on a connection-scoped context instead so
	// in-flight turns are not canceled under the pumps.
	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{
		conn:      conn,
		send:      make(chan outboundMessage, 64),
		server:    s,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
	}

	go client.writePump()
	go client.readPump()

	sess, err := s.sessions.Get(sessionID)
	if err == nil {
		msgType := "session_joined"
		if created {
			msgType = "session_created"
		}
		client.sendMessage(msgType, api.ToSessionDTO(sess.Snapshot()))
	}
}

// readPump reads utterances from the client and feeds them to the session.
func (c *wsClient) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] read error: %v", err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}

		switch msg.Type {
		case "utterance":
			text, ok := msg.Data.(string)
			if !ok || text == "" {
				c.sendError("utterance message requires text data")
				continue
			}
			c.handleUtterance(text)

		case "conversation":
			sess, err := c.server.sessions.Get(c.sessionID)
			if err != nil {
				c.sendError(err.Error())
				continue
			}
			c.sendMessage("conversation", api.ToConversationDTO(c.sessionID, sess.Transcript()))

		case "stop":
			if err := c.server.sessions.Stop(c.sessionID); err != nil {
				c.sendError(fmt.Sprintf("failed to stop session: %v", err))
				continue
			}
			c.sendMessage("session_stopped", nil)

		default:
			c.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

func (c *wsClient) handleUtterance(text string) {
	reply, err := c.server.sessions.Submit(c.ctx, c.sessionID, text)
	if err != nil {
		if errors.Is(err, session.ErrSessionStopped) {
			c.sendError("session already ended")
			return
		}
		c.sendError(fmt.Sprintf("failed to process utterance: %v", err))
		return
	}

	c.sendMessage("reply", api.ToTurnReplyDTO(reply))
	if reply.Done {
		c.sendMessage("session_stopped", nil)
	}
}

// writePump writes queued messages to the connection and keeps it alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(message.messageType, message.payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) sendMessage(msgType string, data interface{}) {
	msg := Message{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WebSocket] marshal %s message: %v", msgType, err)
		return
	}

	select {
	case c.send <- outboundMessage{messageType: websocket.TextMessage, payload: jsonData}:
	default:
		// Client's send channel is full, skip
	}
}

func (c *wsClient) sendError(errMsg string) {
	c.sendMessage("error", errMsg)
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
	})
}
