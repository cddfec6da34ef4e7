package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/refunda-ai/refunda/internal/api"
)

func TestClientAttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]api.SessionDTO{})
	}))
	defer srv.Close()

	c := NewWithOptions(srv.URL, "secret")
	if _, err := c.ListSessions(); err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token header, got %q", gotAuth)
	}
}

func TestClientCreateAndMessageSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sessions":
			var req api.CreateSessionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode create request: %v", err)
			}
			if req.InputSource != "text" {
				t.Errorf("expected text input source, got %q", req.InputSource)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(api.SessionDTO{ID: "abc123", Status: "running"})

		case r.Method == http.MethodPost && r.URL.Path == "/sessions/abc123/messages":
			var req api.TurnRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode turn request: %v", err)
			}
			json.NewEncoder(w).Encode(api.TurnReplyDTO{
				SessionID: "abc123",
				Reply:     "Sure! Let's start. What's the email on your account?",
			})

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewWithOptions(srv.URL, "")
	sess, err := c.CreateSession("text")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.ID != "abc123" {
		t.Fatalf("unexpected session ID %q", sess.ID)
	}

	reply, err := c.SendMessage(sess.ID, "hi")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if reply.Reply == "" {
		t.Fatalf("expected a reply")
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
	}))
	defer srv.Close()

	c := NewWithOptions(srv.URL, "")
	_, err := c.GetSession("nope")
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got != "get session: session not found" {
		t.Fatalf("unexpected error message %q", got)
	}
}

func TestClientDecisionListLimit(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]api.DecisionRecordDTO{})
	}))
	defer srv.Close()

	c := NewWithOptions(srv.URL, "")
	if _, err := c.ListDecisions(5); err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if gotQuery != "limit=5" {
		t.Fatalf("expected limit query, got %q", gotQuery)
	}
}

func TestMakeWebsocketURL(t *testing.T) {
	cases := []struct {
		base    string
		session string
		want    string
		wantErr bool
	}{
		{base: "http://127.0.0.1:8790", session: "", want: "ws://127.0.0.1:8790/ws"},
		{base: "https://example.com", session: "abc", want: "wss://example.com/ws?session=abc"},
		{base: "ftp://example.com", wantErr: true},
	}

	for _, tc := range cases {
		got, err := makeWebsocketURL(tc.base, tc.session)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.base)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestChatStreamRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		created, _ := json.Marshal(api.SessionDTO{ID: "s1", Status: "running"})
		conn.WriteJSON(map[string]any{
			"type":      "session_created",
			"sessionId": "s1",
			"data":      json.RawMessage(created),
		})

		var msg struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "utterance" {
			t.Errorf("expected utterance, got %q", msg.Type)
			return
		}

		reply, _ := json.Marshal(api.TurnReplyDTO{SessionID: "s1", Reply: "ok", Done: false})
		conn.WriteJSON(map[string]any{
			"type":      "reply",
			"sessionId": "s1",
			"data":      json.RawMessage(reply),
		})
	}))
	defer srv.Close()

	c := NewWithOptions(srv.URL, "")
	stream, err := c.OpenChat("")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	defer stream.Close()

	waitEvent := func(wantType string) ChatEvent {
		t.Helper()
		select {
		case event, ok := <-stream.Events():
			if !ok {
				t.Fatalf("stream closed waiting for %q", wantType)
			}
			if event.Type != wantType {
				t.Fatalf("expected %q event, got %q", wantType, event.Type)
			}
			return event
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q event", wantType)
		}
		return ChatEvent{}
	}

	created := waitEvent("session_created")
	if created.Session == nil || created.Session.ID != "s1" {
		t.Fatalf("unexpected session event: %+v", created)
	}
	if stream.SessionID() != "s1" {
		t.Fatalf("expected stream to adopt session ID, got %q", stream.SessionID())
	}

	if err := stream.Send("my email is jane@example.com"); err != nil {
		t.Fatalf("send utterance: %v", err)
	}

	reply := waitEvent("reply")
	if reply.Reply == nil || reply.Reply.Reply != "ok" {
		t.Fatalf("unexpected reply event: %+v", reply)
	}
}
