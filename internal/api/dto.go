// Package api defines the JSON data transfer objects shared by the daemon
// HTTP API and the CLI client.
package api

import (
	"time"

	"github.com/refunda-ai/refunda/internal/artifacts"
	"github.com/refunda-ai/refunda/internal/config/store"
	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/eventbus"
	"github.com/refunda-ai/refunda/internal/session"
)

// SessionDTO is the API representation of one refund session.
type SessionDTO struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	InputSource string    `json:"input_source"`
	StartTime   time.Time `json:"start_time"`
	Email       string    `json:"email,omitempty"`
	Last4       string    `json:"last4,omitempty"`
	OrderNumber int       `json:"order_number,omitempty"`
	Turns       int       `json:"turns"`
	Decided     bool      `json:"decided"`
}

// ToSessionDTO converts a session snapshot to its DTO representation.
func ToSessionDTO(snap session.Snapshot) SessionDTO {
	return SessionDTO{
		ID:          snap.ID,
		Status:      string(snap.Status),
		InputSource: snap.InputSource,
		StartTime:   snap.StartTime,
		Email:       snap.Email,
		Last4:       snap.Last4,
		OrderNumber: snap.OrderNumber,
		Turns:       snap.Turns,
		Decided:     snap.Decided,
	}
}

// CreateSessionRequest opens a new refund session.
type CreateSessionRequest struct {
	InputSource string `json:"input_source,omitempty"` // "text" (default) or "voice"
}

// TurnRequest submits one caller utterance to a session.
type TurnRequest struct {
	Text string `json:"text"`
}

// DecisionDTO is the API shape of a refund decision.
type DecisionDTO struct {
	Status   string  `json:"status"`
	RefundID string  `json:"refund_id,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// ToDecisionDTO converts a decision to its DTO representation.
func ToDecisionDTO(d eligibility.Decision) DecisionDTO {
	return DecisionDTO{
		Status:   string(d.Status),
		RefundID: d.RefundID,
		Amount:   d.Amount,
		Reason:   d.Reason,
	}
}

// TurnReplyDTO is the agent's response to a submitted turn.
type TurnReplyDTO struct {
	SessionID string       `json:"session_id"`
	Reply     string       `json:"reply"`
	Event     string       `json:"event,omitempty"`
	Decision  *DecisionDTO `json:"decision,omitempty"`
	Done      bool         `json:"done"`
}

// ToTurnReplyDTO converts a turn reply to its DTO representation.
func ToTurnReplyDTO(reply session.TurnReply) TurnReplyDTO {
	dto := TurnReplyDTO{
		SessionID: reply.SessionID,
		Reply:     reply.Reply,
		Event:     string(reply.Event),
		Done:      reply.Done,
	}
	if reply.Decision != nil {
		decision := ToDecisionDTO(*reply.Decision)
		dto.Decision = &decision
	}
	return dto
}

// TranscriptLineDTO is one speaker-tagged conversation line.
type TranscriptLineDTO struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// ConversationDTO is the transcript view of one session.
type ConversationDTO struct {
	SessionID string              `json:"session_id"`
	Lines     []TranscriptLineDTO `json:"lines"`
}

// ToConversationDTO converts a transcript to its DTO representation.
func ToConversationDTO(sessionID string, lines []eventbus.TranscriptLine) ConversationDTO {
	dto := ConversationDTO{SessionID: sessionID, Lines: make([]TranscriptLineDTO, 0, len(lines))}
	for _, line := range lines {
		dto.Lines = append(dto.Lines, TranscriptLineDTO{
			Speaker: string(line.Speaker),
			Text:    line.Text,
			At:      line.At,
		})
	}
	return dto
}

// DecisionRecordDTO is one persisted decision history entry.
type DecisionRecordDTO struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Status      string    `json:"status"`
	RefundID    string    `json:"refund_id,omitempty"`
	Amount      float64   `json:"amount,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Email       string    `json:"email,omitempty"`
	Last4       string    `json:"last4,omitempty"`
	OrderNumber int       `json:"order_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToDecisionRecordDTO converts a stored decision record to its DTO
// representation.
func ToDecisionRecordDTO(rec store.DecisionRecord) DecisionRecordDTO {
	return DecisionRecordDTO{
		ID:          rec.ID,
		SessionID:   rec.SessionID,
		Status:      rec.Status,
		RefundID:    rec.RefundID,
		Amount:      rec.Amount,
		Reason:      rec.Reason,
		Email:       rec.Email,
		Last4:       rec.Last4,
		OrderNumber: rec.OrderNumber,
		CreatedAt:   rec.CreatedAt,
	}
}

// ArtifactDTO describes one artifact file.
type ArtifactDTO struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ToArtifactDTO converts artifact file info to its DTO representation.
func ToArtifactDTO(info artifacts.Info) ArtifactDTO {
	return ArtifactDTO{
		Name:    info.Name,
		Kind:    info.Kind,
		Path:    info.Path,
		Size:    info.Size,
		ModTime: info.ModTime,
	}
}

// DaemonStatusDTO captures runtime daemon status.
type DaemonStatusDTO struct {
	Version          string         `json:"version"`
	Instance         string         `json:"instance"`
	UptimeSeconds    float64        `json:"uptime_seconds"`
	SessionsRunning  int            `json:"sessions_running"`
	SessionsTotal    int            `json:"sessions_total"`
	Decisions        map[string]int `json:"decisions"`
	AuthRequired     bool           `json:"auth_required"`
	EligibilityCount int            `json:"eligibility_customers"`
}
