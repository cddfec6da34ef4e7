package conversation

import (
	"context"

	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/eventbus"
)

// Resolver produces the refund decision once all slots are collected.
// *eligibility.Store satisfies it.
type Resolver interface {
	Resolve(email, last4 string, orderNumber int) eligibility.Decision
}

// TurnResult is the outcome of one caller utterance.
type TurnResult struct {
	Event    Event
	Reply    string
	Decision *eligibility.Decision // non-nil exactly when this turn resolved
}

// Engine drives the refund dialogue. It owns no per-session data: callers
// pass the session's State each turn, so one Engine serves every session.
type Engine struct {
	bus      *eventbus.Bus
	resolver Resolver
}

// NewEngine returns an engine publishing slot and reply events on bus.
func NewEngine(bus *eventbus.Bus, resolver Resolver) *Engine {
	return &Engine{bus: bus, resolver: resolver}
}

// HandleUtterance advances st with one caller turn and returns the agent's
// reply. When the turn fills the last slot the resolver runs and the reply
// is the closing decision message; otherwise the reply prompts for the next
// missing slot. Callers must not submit further turns after a decision.
func (e *Engine) HandleUtterance(ctx context.Context, sessionID string, st *State, text string) TurnResult {
	event := st.Process(text)
	if event != EventNone {
		slot, value := st.CapturedValue(event)
		eventbus.Publish(ctx, e.bus, eventbus.Conversation.Slot, eventbus.SourceConversation,
			eventbus.SlotCapturedEvent{SessionID: sessionID, Slot: slot, Value: value})
	}

	result := TurnResult{Event: event}
	if st.Ready() {
		decision := e.resolver.Resolve(st.Email(), st.Last4(), st.Order())
		result.Decision = &decision
		result.Reply = decisionReply(decision)
	} else {
		result.Reply = nextPrompt(st)
	}

	eventbus.Publish(ctx, e.bus, eventbus.Conversation.Reply, eventbus.SourceConversation,
		eventbus.ReplyEvent{SessionID: sessionID, Text: result.Reply, Event: string(event)})
	return result
}
