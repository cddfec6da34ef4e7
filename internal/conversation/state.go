// Package conversation implements the slot-filling state machine and the
// turn engine for the refund dialogue. A State collects the three identity
// slots (account email, last four card digits, order number) one per turn;
// the Engine turns each caller utterance into a scripted reply and, once the
// state is ready, resolves the refund decision.
package conversation

import (
	"strconv"

	"github.com/refunda-ai/refunda/internal/extract"
)

// Event names the slot captured by a single Process call.
type Event string

const (
	EventNone          Event = ""
	EventEmailCaptured Event = "email_captured"
	EventLast4Captured Event = "last4_captured"
	EventOrderCaptured Event = "order_captured"
)

// Slot labels used in captured-slot events.
const (
	SlotEmail = "email"
	SlotLast4 = "last4"
	SlotOrder = "order_number"
)

// State holds the slots collected so far for one session. Slots fill in a
// fixed priority order (email, then last4, then order) and at most one slot
// per Process call. A filled slot never changes.
type State struct {
	email string
	last4 string
	order int
}

// NewState returns an empty slot state.
func NewState() *State {
	return &State{}
}

// Process attempts to fill the highest-priority empty slot from text.
// Returns the event for the slot captured, or EventNone when the text did
// not match the slot currently being collected. Lower-priority matches in
// the same text are ignored until their slot comes up.
func (s *State) Process(text string) Event {
	switch {
	case s.email == "":
		if v, ok := extract.Email(text); ok {
			s.email = v
			return EventEmailCaptured
		}
	case s.last4 == "":
		if v, ok := extract.Last4(text); ok {
			s.last4 = v
			return EventLast4Captured
		}
	case s.order == 0:
		if v, ok := extract.Order(text); ok {
			s.order = v
			return EventOrderCaptured
		}
	}
	return EventNone
}

// Ready reports whether all three slots are filled.
func (s *State) Ready() bool {
	return s.email != "" && s.last4 != "" && s.order != 0
}

func (s *State) Email() string { return s.email }
func (s *State) Last4() string { return s.last4 }
func (s *State) Order() int    { return s.order }

// CapturedValue returns the slot label and stored value for a capture event.
func (s *State) CapturedValue(ev Event) (slot, value string) {
	switch ev {
	case EventEmailCaptured:
		return SlotEmail, s.email
	case EventLast4Captured:
		return SlotLast4, s.last4
	case EventOrderCaptured:
		return SlotOrder, strconv.Itoa(s.order)
	}
	return "", ""
}
