package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/refunda-ai/refunda/internal/api"
	"github.com/refunda-ai/refunda/internal/config"
	configstore "github.com/refunda-ai/refunda/internal/config/store"
)

func startTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	paths, err := config.EnsureInstanceDirs("test")
	if err != nil {
		t.Fatalf("failed to prepare instance dirs: %v", err)
	}

	store, err := configstore.Open(configstore.Options{InstanceName: "test"})
	if err != nil {
		t.Fatalf("failed to open config store: %v", err)
	}

	env := config.Env{
		Instance:     "test",
		HTTPAddr:     "127.0.0.1:0",
		DataPath:     paths.Eligibility,
		ArtifactsDir: paths.Artifacts,
	}

	d, err := New(Options{Store: store, Env: env})
	if err != nil {
		store.Close()
		t.Fatalf("failed to create daemon: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start()
	}()
	t.Cleanup(func() {
		d.Shutdown()
		if err := <-errChan; err != nil {
			t.Errorf("daemon run error: %v", err)
		}
	})

	baseURL := waitForHealthy(t, d)
	return d, baseURL
}

func waitForHealthy(t *testing.T, d *Daemon) string {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		addr := d.Addr()
		if addr != "" && addr != "127.0.0.1:0" {
			resp, err := http.Get("http://" + addr + "/health")
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return "http://" + addr
				}
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("daemon did not become healthy in time")
	return ""
}

func TestDaemonSeedsEligibilityDataset(t *testing.T) {
	d, _ := startTestDaemon(t)

	if d.eligibility.Customers() != 1 {
		t.Fatalf("expected starter dataset with 1 customer, got %d", d.eligibility.Customers())
	}
	if _, err := os.Stat(d.env.DataPath); err != nil {
		t.Fatalf("expected seeded dataset file: %v", err)
	}
}

func TestDaemonEndToEndRefundFlow(t *testing.T) {
	d, baseURL := startTestDaemon(t)

	create, err := json.Marshal(api.CreateSessionRequest{InputSource: "text"})
	if err != nil {
		t.Fatalf("marshal create request: %v", err)
	}
	resp, err := http.Post(baseURL+"/sessions", "application/json", bytes.NewReader(create))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var sess api.SessionDTO
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	turns := []string{
		"my email is jane@example.com",
		"the card ends in 1234",
		"it is about order number one",
	}
	var last api.TurnReplyDTO
	for _, text := range turns {
		payload, _ := json.Marshal(api.TurnRequest{Text: text})
		resp, err := http.Post(fmt.Sprintf("%s/sessions/%s/messages", baseURL, sess.ID), "application/json", bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("send turn %q: %v", text, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("turn %q: expected 200, got %d", text, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&last); err != nil {
			t.Fatalf("decode turn reply: %v", err)
		}
		resp.Body.Close()
	}

	if !last.Done || last.Decision == nil {
		t.Fatalf("expected decided session, got %+v", last)
	}
	if last.Decision.Status != "approved" || last.Decision.RefundID != "RFND-ORD-1001" {
		t.Fatalf("unexpected decision: %+v", last.Decision)
	}

	// The decision lands in the persisted history.
	resp, err = http.Get(baseURL + "/decisions/latest")
	if err != nil {
		t.Fatalf("latest decision: %v", err)
	}
	var rec api.DecisionRecordDTO
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode decision record: %v", err)
	}
	resp.Body.Close()
	if rec.SessionID != sess.ID || rec.RefundID != "RFND-ORD-1001" {
		t.Fatalf("unexpected persisted decision: %+v", rec)
	}

	// The artifact sink consumes the decision asynchronously.
	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, err := os.ReadDir(d.env.ArtifactsDir)
		if err == nil && len(entries) >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 4 artifact files, got %d", len(entries))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonWebsocketRefundFlow(t *testing.T) {
	d, baseURL := startTestDaemon(t)

	wsURL := "ws://" + strings.TrimPrefix(baseURL, "http://") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	type wsMessage struct {
		Type      string          `json:"type"`
		SessionID string          `json:"sessionId"`
		Data      json.RawMessage `json:"data"`
	}

	var created wsMessage
	if err := conn.ReadJSON(&created); err != nil {
		t.Fatalf("read first message: %v", err)
	}
	if created.Type != "session_created" || created.SessionID == "" {
		t.Fatalf("first message = %+v, want session_created", created)
	}

	turns := []string{
		"my email is jane@example.com",
		"the card ends in 1234",
		"it is about order number one",
	}
	var last api.TurnReplyDTO
	for _, text := range turns {
		if err := conn.WriteJSON(map[string]interface{}{"type": "utterance", "data": text}); err != nil {
			t.Fatalf("send turn %q: %v", text, err)
		}
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read reply for %q: %v", text, err)
		}
		if msg.Type == "error" {
			t.Fatalf("turn %q: server error %s", text, msg.Data)
		}
		if msg.Type != "reply" {
			t.Fatalf("turn %q: message type = %s, want reply", text, msg.Type)
		}
		if err := json.Unmarshal(msg.Data, &last); err != nil {
			t.Fatalf("decode reply payload: %v", err)
		}
	}

	if !last.Done || last.Decision == nil {
		t.Fatalf("expected decided session, got %+v", last)
	}
	if last.Decision.Status != "approved" || last.Decision.RefundID != "RFND-ORD-1001" {
		t.Fatalf("unexpected decision: %+v", last.Decision)
	}

	var stopped wsMessage
	if err := conn.ReadJSON(&stopped); err != nil {
		t.Fatalf("read session end: %v", err)
	}
	if stopped.Type != "session_stopped" {
		t.Fatalf("final message type = %s, want session_stopped", stopped.Type)
	}

	// The sink and the decision history must see websocket decisions too.
	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, err := os.ReadDir(d.env.ArtifactsDir)
		if err == nil && len(entries) >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 4 artifact files, got %d", len(entries))
		}
		time.Sleep(20 * time.Millisecond)
	}

	httpResp, err := http.Get(baseURL + "/decisions/latest")
	if err != nil {
		t.Fatalf("latest decision: %v", err)
	}
	var rec api.DecisionRecordDTO
	if err := json.NewDecoder(httpResp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode decision record: %v", err)
	}
	httpResp.Body.Close()
	if rec.SessionID != created.SessionID || rec.RefundID != "RFND-ORD-1001" {
		t.Fatalf("unexpected persisted decision: %+v", rec)
	}
}

func TestDaemonLockFilePreventsSecondInstance(t *testing.T) {
	d, _ := startTestDaemon(t)

	if !IsRunning("test") {
		t.Fatal("expected IsRunning to report the live daemon")
	}
	if err := writeLockFile(d.paths.Lock); err == nil {
		t.Fatal("expected second lock attempt to fail")
	}

	data, err := os.ReadFile(filepath.Join(d.paths.Home, "daemon.lock"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected lock file to hold a PID")
	}
}
