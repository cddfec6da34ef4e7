package conversation

import "testing"

func TestStateCollectsSlotsInOrder(t *testing.T) {
	st := NewState()

	turns := []struct {
		text string
		want Event
	}{
		{"my email is a@b.com", EventEmailCaptured},
		{"last four is 1234", EventLast4Captured},
		{"order number one", EventOrderCaptured},
	}
	for _, turn := range turns {
		if got := st.Process(turn.text); got != turn.want {
			t.Fatalf("Process(%q) = %q, want %q", turn.text, got, turn.want)
		}
	}

	if !st.Ready() {
		t.Fatal("expected state ready after all three captures")
	}
	if st.Email() != "a@b.com" || st.Last4() != "1234" || st.Order() != 1 {
		t.Fatalf("unexpected slots: %q %q %d", st.Email(), st.Last4(), st.Order())
	}
}

func TestStateFillsOneSlotPerTurn(t *testing.T) {
	st := NewState()

	// Carries both the email and the card digits; only the email slot may
	// fill on this turn.
	if got := st.Process("a@b.com card 5566"); got != EventEmailCaptured {
		t.Fatalf("Process = %q, want %q", got, EventEmailCaptured)
	}
	if st.Last4() != "" || st.Order() != 0 {
		t.Fatalf("lower-priority slots filled early: last4=%q order=%d", st.Last4(), st.Order())
	}

	if got := st.Process("a@b.com card 5566"); got != EventLast4Captured {
		t.Fatalf("second Process = %q, want %q", got, EventLast4Captured)
	}
	if st.Last4() != "5566" {
		t.Fatalf("last4 = %q, want 5566", st.Last4())
	}
}

func TestStateNoMatchLeavesSlotEmpty(t *testing.T) {
	st := NewState()

	if got := st.Process("I want a refund"); got != EventNone {
		t.Fatalf("Process = %q, want EventNone", got)
	}
	if st.Email() != "" {
		t.Fatalf("email = %q, want empty", st.Email())
	}
	if st.Ready() {
		t.Fatal("state should not be ready")
	}
}

func TestStateFilledSlotNeverChanges(t *testing.T) {
	st := NewState()
	st.Process("first@example.com")

	// A later email goes unused: the email slot is already filled and no
	// card digits are present for the active slot.
	if got := st.Process("actually use second@example.com"); got != EventNone {
		t.Fatalf("Process = %q, want EventNone", got)
	}
	if st.Email() != "first@example.com" {
		t.Fatalf("email = %q, want first@example.com", st.Email())
	}
}

func TestStateCapturedValue(t *testing.T) {
	st := NewState()
	st.Process("me@shop.test")
	if slot, value := st.CapturedValue(EventEmailCaptured); slot != SlotEmail || value != "me@shop.test" {
		t.Fatalf("CapturedValue = %q %q", slot, value)
	}
	st.Process("digits 4 3 2 1")
	if slot, value := st.CapturedValue(EventLast4Captured); slot != SlotLast4 || value != "4321" {
		t.Fatalf("CapturedValue = %q %q", slot, value)
	}
	st.Process("order number two")
	if slot, value := st.CapturedValue(EventOrderCaptured); slot != SlotOrder || value != "2" {
		t.Fatalf("CapturedValue = %q %q", slot, value)
	}
	if slot, value := st.CapturedValue(EventNone); slot != "" || value != "" {
		t.Fatalf("CapturedValue(EventNone) = %q %q, want empty", slot, value)
	}
}
