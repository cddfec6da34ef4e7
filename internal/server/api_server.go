// Package server exposes the daemon HTTP API: session management, turn
// submission, decision history, artifacts, metrics and the websocket chat
// transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/refunda-ai/refunda/internal/artifacts"
	"github.com/refunda-ai/refunda/internal/config/store"
	"github.com/refunda-ai/refunda/internal/session"
)

// SessionManager is the session surface the API depends on.
type SessionManager interface {
	Create(inputSource string) *session.Session
	Get(id string) (*session.Session, error)
	List() []*session.Session
	Submit(ctx context.Context, id, text string) (session.TurnReply, error)
	Stop(id string) error
	SessionCounts() (running, total int)
}

// DecisionHistory exposes the persisted decision history.
type DecisionHistory interface {
	ListDecisions(ctx context.Context, limit int) ([]store.DecisionRecord, error)
	LatestDecision(ctx context.Context) (store.DecisionRecord, error)
	CountDecisionsByStatus(ctx context.Context) (map[string]int, error)
}

// ArtifactStore exposes the artifact files written by the sink.
type ArtifactStore interface {
	List(kind string) ([]artifacts.Info, error)
	Latest(kind string) (artifacts.Info, bool, error)
}

// MetricsExporter renders observability metrics in Prometheus exposition format.
type MetricsExporter interface {
	Export() []byte
}

// EligibilityInfo exposes read-only dataset facts for the status endpoint.
type EligibilityInfo interface {
	Customers() int
}

// APIServer serves the daemon HTTP API.
type APIServer struct {
	addr     string
	instance string

	sessions    SessionManager
	history     DecisionHistory
	artifacts   ArtifactStore
	exporter    MetricsExporter
	eligibility EligibilityInfo

	authToken string
	startTime time.Time

	shutdownMu sync.RWMutex
	shutdownFn func(context.Context) error

	httpServer *http.Server
	listener   net.Listener
}

// NewAPIServer creates an API server listening on addr.
func NewAPIServer(addr string, sessions SessionManager) (*APIServer, error) {
	if sessions == nil {
		return nil, fmt.Errorf("server: session manager is required")
	}
	return &APIServer{
		addr:      addr,
		sessions:  sessions,
		startTime: time.Now(),
	}, nil
}

// SetInstance records the instance name reported by the status endpoint.
func (s *APIServer) SetInstance(name string) { s.instance = name }

// SetDecisionHistory wires the persisted decision history.
func (s *APIServer) SetDecisionHistory(history DecisionHistory) { s.history = history }

// SetArtifactStore wires the artifact store.
func (s *APIServer) SetArtifactStore(store ArtifactStore) { s.artifacts = store }

// SetMetricsExporter wires the metrics exporter. Must be called before Start.
func (s *APIServer) SetMetricsExporter(exporter MetricsExporter) { s.exporter = exporter }

// SetEligibilityInfo wires the eligibility dataset view.
func (s *APIServer) SetEligibilityInfo(info EligibilityInfo) { s.eligibility = info }

// SetAuthToken enables bearer-token authentication. An empty token disables it.
func (s *APIServer) SetAuthToken(token string) { s.authToken = strings.TrimSpace(token) }

// SetShutdownFunc registers a handler invoked when a shutdown is requested.
func (s *APIServer) SetShutdownFunc(fn func(context.Context) error) {
	s.shutdownMu.Lock()
	s.shutdownFn = fn
	s.shutdownMu.Unlock()
}

// RequestShutdown triggers a graceful daemon shutdown using the registered
// shutdown function.
func (s *APIServer) RequestShutdown() {
	s.shutdownMu.RLock()
	fn := s.shutdownFn
	s.shutdownMu.RUnlock()
	if fn != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := fn(ctx); err != nil {
				log.Printf("[APIServer] shutdown error: %v", err)
			}
		}()
	}
}

// AuthRequired reports whether bearer-token authentication is enforced.
func (s *APIServer) AuthRequired() bool {
	return s.authToken != ""
}

// Addr returns the bound listen address, valid after Start.
func (s *APIServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves the API until Shutdown.
func (s *APIServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[APIServer] serve error: %v", err)
		}
	}()

	log.Printf("[APIServer] listening on %s", listener.Addr())
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler builds the route table.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/daemon/status", s.requireAuth(s.handleDaemonStatus))
	mux.HandleFunc("/daemon/shutdown", s.requireAuth(s.handleDaemonShutdown))
	mux.HandleFunc("/metrics", s.requireAuth(s.handleMetrics))
	mux.HandleFunc("/sessions", s.requireAuth(s.handleSessions))
	mux.HandleFunc("/sessions/", s.requireAuth(s.handleSessionByID))
	mux.HandleFunc("/decisions", s.requireAuth(s.handleDecisions))
	mux.HandleFunc("/decisions/latest", s.requireAuth(s.handleLatestDecision))
	mux.HandleFunc("/artifacts", s.requireAuth(s.handleArtifacts))
	mux.HandleFunc("/artifacts/latest", s.requireAuth(s.handleLatestArtifact))
	mux.HandleFunc("/ws", s.requireAuth(s.handleWebSocket))
	return mux
}

// requireAuth enforces the bearer token when one is configured.
func (s *APIServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			header := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if header == "" || token != s.authToken {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}
