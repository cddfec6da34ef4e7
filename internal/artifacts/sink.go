// Package artifacts persists the per-decision artifact files: the decision
// log, the receipt, the transcript and the metrics record. The sink
// subscribes to refund decisions on the event bus and writes all four files
// under the instance artifacts directory.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/eventbus"
	"github.com/refunda-ai/refunda/internal/telemetry"
)

// Artifact kinds, used as filename prefixes.
const (
	KindDecision   = "decision"
	KindReceipt    = "receipt"
	KindTranscript = "transcript"
	KindMetrics    = "metrics"
)

const decisionQueue = 16

// Info describes one artifact file on disk.
type Info struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// decisionLog is the decision_*.json document: the decision plus the
// session context it was made in.
type decisionLog struct {
	SessionID string               `json:"session_id"`
	CreatedAt time.Time            `json:"created_at"`
	Decision  eligibility.Decision `json:"decision"`
}

// Sink writes decision artifacts as refund decisions arrive on the bus.
type Sink struct {
	dir string
	bus *eventbus.Bus

	lifecycle   eventbus.ServiceLifecycle
	decisionSub *eventbus.TypedSubscription[eventbus.DecisionEvent]

	metricSaved  atomic.Int64
	metricFailed atomic.Int64
}

// NewSink creates an artifact sink writing under dir.
func NewSink(bus *eventbus.Bus, dir string) *Sink {
	return &Sink{dir: dir, bus: bus}
}

// Dir returns the artifacts directory.
func (s *Sink) Dir() string { return s.dir }

// Start subscribes to refund decisions and begins writing artifacts.
func (s *Sink) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("artifacts: create directory %s: %w", s.dir, err)
	}

	s.lifecycle.Start(ctx)
	s.decisionSub = eventbus.SubscribeTo(s.bus, eventbus.Refund.Decision,
		eventbus.WithSubscriptionName("artifacts_decision"),
		eventbus.WithSubscriptionBuffer(decisionQueue),
	)
	s.lifecycle.AddSubscriptions(s.decisionSub)
	s.lifecycle.Go(s.consumeDecisions)
	return nil
}

// Shutdown cancels the consumer and waits for in-flight writes.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.lifecycle.Stop()
	err := s.lifecycle.Wait(ctx)
	log.Printf("[Artifacts] shutdown: saved=%d failed=%d", s.metricSaved.Load(), s.metricFailed.Load())
	return err
}

func (s *Sink) consumeDecisions(ctx context.Context) {
	eventbus.Consume(ctx, s.decisionSub, func(evt eventbus.DecisionEvent) {
		s.handleDecision(ctx, evt)
	})
}

func (s *Sink) handleDecision(ctx context.Context, evt eventbus.DecisionEvent) {
	stamp := time.Now().UnixNano()

	writes := []struct {
		kind string
		fn   func() (string, error)
	}{
		{KindDecision, func() (string, error) { return s.SaveDecisionLog(stamp, evt.SessionID, evt.Decision) }},
		{KindReceipt, func() (string, error) { return s.SaveReceipt(stamp, evt.Decision) }},
		{KindTranscript, func() (string, error) { return s.SaveTranscript(stamp, evt.Transcript) }},
		{KindMetrics, func() (string, error) { return s.SaveMetrics(stamp, evt.Metrics) }},
	}

	for _, w := range writes {
		path, err := w.fn()
		if err != nil {
			s.metricFailed.Add(1)
			log.Printf("[Artifacts] Failed to save %s for session %s: %v", w.kind, evt.SessionID, err)
			continue
		}
		s.metricSaved.Add(1)
		eventbus.Publish(ctx, s.bus, eventbus.Artifacts.Saved, eventbus.SourceArtifacts,
			eventbus.ArtifactSavedEvent{SessionID: evt.SessionID, Kind: w.kind, Path: path})
	}
}

// SaveDecisionLog writes the decision_*.json document.
func (s *Sink) SaveDecisionLog(stamp int64, sessionID string, decision eligibility.Decision) (string, error) {
	return s.writeJSON(KindDecision, stamp, decisionLog{
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
		Decision:  decision,
	})
}

// SaveReceipt writes the receipt_*.json document: the bare decision in its
// original JSON shape.
func (s *Sink) SaveReceipt(stamp int64, decision eligibility.Decision) (string, error) {
	return s.writeJSON(KindReceipt, stamp, decision)
}

// SaveTranscript writes the transcript_*.txt document, one speaker-tagged
// line per turn.
func (s *Sink) SaveTranscript(stamp int64, lines []eventbus.TranscriptLine) (string, error) {
	path := s.artifactPath(KindTranscript, stamp, "txt")
	if err := os.WriteFile(path, []byte(eventbus.SerializeTranscript(lines)), 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// SaveMetrics writes the metrics_*.json document.
func (s *Sink) SaveMetrics(stamp int64, metrics telemetry.Metrics) (string, error) {
	return s.writeJSON(KindMetrics, stamp, metrics)
}

func (s *Sink) writeJSON(kind string, stamp int64, doc any) (string, error) {
	path := s.artifactPath(kind, stamp, "json")
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("artifacts: marshal %s: %w", kind, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

func (s *Sink) artifactPath(kind string, stamp int64, ext string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%d.%s", kind, stamp, ext))
}

// List returns artifact files under dir, newest first. kind filters by
// artifact kind when non-empty.
func (s *Sink) List(kind string) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifacts: read directory %s: %w", s.dir, err)
	}

	var result []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		entryKind, ok := kindOf(name)
		if !ok || (kind != "" && entryKind != kind) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, Info{
			Name:    name,
			Kind:    entryKind,
			Path:    filepath.Join(s.dir, name),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ModTime.Equal(result[j].ModTime) {
			return result[i].Name > result[j].Name
		}
		return result[i].ModTime.After(result[j].ModTime)
	})
	return result, nil
}

// Latest returns the newest artifact of the given kind, or false when none
// exists yet.
func (s *Sink) Latest(kind string) (Info, bool, error) {
	list, err := s.List(kind)
	if err != nil {
		return Info{}, false, err
	}
	if len(list) == 0 {
		return Info{}, false, nil
	}
	return list[0], true, nil
}

func kindOf(name string) (string, bool) {
	for _, kind := range []string{KindDecision, KindReceipt, KindTranscript, KindMetrics} {
		if strings.HasPrefix(name, kind+"_") {
			return kind, true
		}
	}
	return "", false
}
