// Package session owns the per-call state of the refund agent: one Session
// per caller, each with its own slot state, transcript and timing marks. The
// Manager drives the conversation engine for every submitted turn and
// guarantees the refund decision runs exactly once per session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/refunda-ai/refunda/internal/config/store"
	"github.com/refunda-ai/refunda/internal/conversation"
	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/eventbus"
	"github.com/refunda-ai/refunda/internal/telemetry"
)

// Status represents session status.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Input sources for submitted turns.
const (
	InputText  = "text"
	InputVoice = "voice"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionStopped  = errors.New("session stopped")
)

// Artifacts written per decision: decision log, receipt, transcript, metrics.
const artifactsPerDecision = 4

// DecisionRecorder persists resolved decisions. *store.Store satisfies it.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, rec store.DecisionRecord) error
}

// Session is one refund conversation.
type Session struct {
	ID          string
	InputSource string
	StartTime   time.Time

	mu         sync.RWMutex
	status     Status
	state      *conversation.State
	transcript []eventbus.TranscriptLine
	timeline   telemetry.Timeline
	decided    bool
	decision   *eligibility.Decision
	metrics    telemetry.Metrics
	inputSeq   uint64
}

// CurrentStatus returns the session status.
func (s *Session) CurrentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Transcript returns a copy of the speaker-tagged transcript so far.
func (s *Session) Transcript() []eventbus.TranscriptLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]eventbus.TranscriptLine(nil), s.transcript...)
}

// Decision returns the resolved decision, or nil while the session runs.
func (s *Session) Decision() *eligibility.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.decision == nil {
		return nil
	}
	d := *s.decision
	return &d
}

// Metrics returns the computed metrics record once the session decided.
func (s *Session) Metrics() (telemetry.Metrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics, s.decided
}

// Snapshot is a read-only view of a session for API consumers.
type Snapshot struct {
	ID          string
	Status      Status
	InputSource string
	StartTime   time.Time
	Email       string
	Last4       string
	OrderNumber int
	Turns       int
	Decided     bool
}

// Snapshot captures the session under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:          s.ID,
		Status:      s.status,
		InputSource: s.InputSource,
		StartTime:   s.StartTime,
		Email:       s.state.Email(),
		Last4:       s.state.Last4(),
		OrderNumber: s.state.Order(),
		Turns:       len(s.transcript),
		Decided:     s.decided,
	}
}

// TurnReply is the agent's response to one submitted turn.
type TurnReply struct {
	SessionID string
	Reply     string
	Event     conversation.Event
	Decision  *eligibility.Decision
	Done      bool
}

// Manager manages refund sessions and routes turns through the engine.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	bus      *eventbus.Bus
	engine   *conversation.Engine
	recorder DecisionRecorder
	rates    telemetry.CostRates
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRecorder persists every decision through rec.
func WithRecorder(rec DecisionRecorder) ManagerOption {
	return func(m *Manager) { m.recorder = rec }
}

// WithCostRates overrides the default cost rates used for metrics.
func WithCostRates(rates telemetry.CostRates) ManagerOption {
	return func(m *Manager) { m.rates = rates }
}

// NewManager creates a session manager publishing on bus.
func NewManager(bus *eventbus.Bus, engine *conversation.Engine, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		bus:      bus,
		engine:   engine,
		rates:    telemetry.DefaultRates,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) publishLifecycle(sessionID string, state eventbus.SessionState, reason string) {
	eventbus.Publish(context.Background(), m.bus, eventbus.Sessions.Lifecycle, eventbus.SourceSessionManager,
		eventbus.SessionLifecycleEvent{SessionID: sessionID, State: state, Reason: reason})
}

// Create starts a new session. inputSource is InputText or InputVoice.
func (m *Manager) Create(inputSource string) *Session {
	if inputSource == "" {
		inputSource = InputText
	}
	session := &Session{
		ID:          uuid.New().String()[:8], // Short ID for convenience
		InputSource: inputSource,
		StartTime:   time.Now(),
		status:      StatusRunning,
		state:       conversation.NewState(),
	}
	session.timeline.StartedAt = session.StartTime

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.publishLifecycle(session.ID, eventbus.SessionStateCreated, "session_created")
	m.publishLifecycle(session.ID, eventbus.SessionStateRunning, "session_started")
	return session
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return session, nil
}

// List returns all sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// SessionCounts reports running and total session counts for metrics.
func (m *Manager) SessionCounts() (running, total int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, session := range m.sessions {
		if session.CurrentStatus() == StatusRunning {
			running++
		}
	}
	return running, len(m.sessions)
}

// Submit runs one caller turn through the conversation engine. The reply is
// the agent's scripted line; Done reports that this turn resolved the
// decision and ended the session. Turns after the decision fail with
// ErrSessionStopped.
func (m *Manager) Submit(ctx context.Context, id, text string) (TurnReply, error) {
	session, err := m.Get(id)
	if err != nil {
		return TurnReply{}, err
	}

	session.mu.Lock()
	if session.status != StatusRunning || session.decided {
		session.mu.Unlock()
		return TurnReply{}, fmt.Errorf("session %s: %w", id, ErrSessionStopped)
	}

	now := time.Now()
	session.inputSeq++
	seq := session.inputSeq
	session.transcript = append(session.transcript, eventbus.TranscriptLine{
		Speaker: eventbus.SpeakerUser, Text: text, At: now,
	})

	eventbus.Publish(ctx, m.bus, eventbus.Conversation.Utterance, eventbus.SourceSessionManager,
		eventbus.UtteranceEvent{SessionID: id, Text: text, InputSource: session.InputSource, Sequence: seq})

	result := m.engine.HandleUtterance(ctx, id, session.state, text)

	// Last4 fills after email by slot priority, so its capture marks the
	// moment the caller finished identifying themselves.
	if result.Event == conversation.EventLast4Captured {
		session.timeline.AuthAt = time.Now()
	}

	session.transcript = append(session.transcript, eventbus.TranscriptLine{
		Speaker: eventbus.SpeakerAgent, Text: result.Reply, At: time.Now(),
	})

	reply := TurnReply{SessionID: id, Reply: result.Reply, Event: result.Event, Decision: result.Decision}
	if result.Decision != nil {
		reply.Done = true
		m.finishLocked(session, *result.Decision)
	}
	session.mu.Unlock()

	if reply.Done {
		m.publishLifecycle(id, eventbus.SessionStateStopped, eventbus.SessionReasonDecision)
	}
	return reply, nil
}

// finishLocked latches the decision, computes metrics, persists the record
// and publishes the decision event. Callers hold session.mu.
//
// Persistence and the decision event deliberately run on a background
// context rather than the submitting turn's: the decision happens at most
// once per session, so a caller disconnecting mid-turn must not lose the
// record or starve the artifact sink.
func (m *Manager) finishLocked(session *Session, decision eligibility.Decision) {
	ctx := context.Background()
	now := time.Now()
	session.decided = true
	session.decision = &decision
	session.status = StatusStopped
	session.timeline.DecidedAt = now
	session.timeline.EndedAt = now
	session.metrics = telemetry.Compute(session.timeline, m.rates, artifactsPerDecision)

	if m.recorder != nil {
		rec := store.DecisionRecord{
			SessionID:   session.ID,
			Status:      string(decision.Status),
			RefundID:    decision.RefundID,
			Amount:      decision.Amount,
			Reason:      decision.Reason,
			Email:       session.state.Email(),
			Last4:       session.state.Last4(),
			OrderNumber: session.state.Order(),
			CreatedAt:   now,
		}
		if err := m.recorder.RecordDecision(ctx, rec); err != nil {
			log.Printf("[SessionManager] Failed to record decision for session %s: %v", session.ID, err)
		}
	}

	transcript := append([]eventbus.TranscriptLine(nil), session.transcript...)
	eventbus.Publish(ctx, m.bus, eventbus.Refund.Decision, eventbus.SourceSessionManager,
		eventbus.DecisionEvent{
			SessionID:  session.ID,
			Decision:   decision,
			Transcript: transcript,
			Metrics:    session.metrics,
		})
}

// Stop ends a session before a decision was reached. Stopping an already
// stopped session is a no-op.
func (m *Manager) Stop(id string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}

	session.mu.Lock()
	if session.status == StatusStopped {
		session.mu.Unlock()
		return nil
	}
	session.status = StatusStopped
	session.timeline.EndedAt = time.Now()
	session.mu.Unlock()

	m.publishLifecycle(id, eventbus.SessionStateStopped, eventbus.SessionReasonForced)
	return nil
}

// StopAll ends every running session, used during daemon shutdown.
func (m *Manager) StopAll() {
	for _, session := range m.List() {
		if session.CurrentStatus() == StatusRunning {
			if err := m.Stop(session.ID); err != nil {
				log.Printf("[SessionManager] Failed to stop session %s: %v", session.ID, err)
			}
		}
	}
}

// stoppedBefore reports whether the session stopped before the cutoff.
// Retention counts from when the session ended, not when it started.
func (s *Session) stoppedBefore(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusStopped {
		return false
	}
	endedAt := s.timeline.EndedAt
	if endedAt.IsZero() {
		endedAt = s.StartTime
	}
	return endedAt.Before(cutoff)
}

// CleanupStopped removes sessions that stopped more than olderThan ago.
func (m *Manager) CleanupStopped(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, session := range m.sessions {
		if session.stoppedBefore(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
