package eventbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/telemetry"
)

// Topic identifies a logical channel on the bus.
type Topic string

const (
	TopicSessionsLifecycle     Topic = "sessions.lifecycle"
	TopicConversationUtterance Topic = "conversation.utterance"
	TopicConversationReply     Topic = "conversation.reply"
	TopicConversationSlot      Topic = "conversation.slot"
	TopicRefundDecision        Topic = "refund.decision"
	TopicArtifactsSaved        Topic = "artifacts.saved"
)

// Source describes which component produced an event.
type Source string

const (
	SourceSessionManager Source = "session_manager"
	SourceConversation   Source = "conversation"
	SourceArtifacts      Source = "artifacts"
	SourceServer         Source = "server"
	SourceUnknown        Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic     Topic
	Timestamp time.Time
	Source    Source
	Payload   any
}

// Speaker identifies the logical author of a transcript line.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Label returns the capitalised speaker tag used in transcript exports.
func (s Speaker) Label() string {
	switch s {
	case SpeakerAgent:
		return "Agent"
	default:
		return "User"
	}
}

// TranscriptLine is one speaker-tagged line of a session transcript.
type TranscriptLine struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// SerializeTranscript renders transcript lines as readable text, one
// "Speaker: text" line each, matching the transcript artifact format.
func SerializeTranscript(lines []TranscriptLine) string {
	var sb strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&sb, "%s: %s\n", line.Speaker.Label(), line.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SessionState summarises lifecycle transitions.
type SessionState string

const (
	SessionStateCreated SessionState = "created"
	SessionStateRunning SessionState = "running"
	SessionStateStopped SessionState = "stopped"
)

// SessionReasonDecision marks lifecycle events published when a session
// ends because its refund decision completed. Forced stops carry their own
// reason so consumers can tell the two apart.
const (
	SessionReasonDecision = "decision_complete"
	SessionReasonForced   = "forced_stop"
)

// SessionLifecycleEvent notifies consumers about session state transitions.
type SessionLifecycleEvent struct {
	SessionID string
	State     SessionState
	Reason    string
}

// UtteranceEvent carries one caller turn entering the conversation engine.
type UtteranceEvent struct {
	SessionID   string
	Text        string
	InputSource string // "voice" or "text"
	Sequence    uint64
}

// ReplyEvent carries the agent's scripted reply for a turn.
type ReplyEvent struct {
	SessionID string
	Text      string
	Event     string // slot event that produced this reply, if any
}

// SlotCapturedEvent reports that a conversation slot was just filled.
type SlotCapturedEvent struct {
	SessionID string
	Slot      string // "email", "last4" or "order_number"
	Value     string
}

// DecisionEvent delivers the refund decision together with the plain-data
// artifacts the sink persists: the transcript and the metrics record.
type DecisionEvent struct {
	SessionID  string
	Decision   eligibility.Decision
	Transcript []TranscriptLine
	Metrics    telemetry.Metrics
}

// ArtifactSavedEvent reports a persisted artifact file.
type ArtifactSavedEvent struct {
	SessionID string
	Kind      string // "decision", "receipt", "transcript" or "metrics"
	Path      string
}

// Typed topic descriptors. Each TopicDef binds a topic constant to its
// payload type so Publish and SubscribeTo are enforced at compile time.

// Sessions groups session topic descriptors.
var Sessions = struct {
	Lifecycle TopicDef[SessionLifecycleEvent]
}{
	Lifecycle: NewTopicDef[SessionLifecycleEvent](TopicSessionsLifecycle),
}

// Conversation groups conversation topic descriptors.
var Conversation = struct {
	Utterance TopicDef[UtteranceEvent]
	Reply     TopicDef[ReplyEvent]
	Slot      TopicDef[SlotCapturedEvent]
}{
	Utterance: NewTopicDef[UtteranceEvent](TopicConversationUtterance),
	Reply:     NewTopicDef[ReplyEvent](TopicConversationReply),
	Slot:      NewTopicDef[SlotCapturedEvent](TopicConversationSlot),
}

// Refund groups decision topic descriptors.
var Refund = struct {
	Decision TopicDef[DecisionEvent]
}{
	Decision: NewTopicDef[DecisionEvent](TopicRefundDecision),
}

// Artifacts groups artifact topic descriptors.
var Artifacts = struct {
	Saved TopicDef[ArtifactSavedEvent]
}{
	Saved: NewTopicDef[ArtifactSavedEvent](TopicArtifactsSaved),
}
