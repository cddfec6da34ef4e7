package conversation

import (
	"fmt"

	"github.com/refunda-ai/refunda/internal/eligibility"
)

// Scripted agent lines. The dialogue is fully deterministic: one prompt per
// missing slot and one closing message per decision status.
const (
	promptEmail = "Sure! Let's start. What's the email on your account?"
	promptLast4 = "Please tell me the last four digits of the card on your account."
	promptOrder = "Which order number is this about? (Try 'order number one' or 'order number two')"

	replyDenied = "This order is not eligible for a refund. " +
		"You may request an exchange or store credit instead."
	replyError = "I couldn't find a matching customer or order. " +
		"Please double-check your email, last four digits, and order number."
)

// nextPrompt returns the guidance line for the highest-priority empty slot.
func nextPrompt(st *State) string {
	switch {
	case st.email == "":
		return promptEmail
	case st.last4 == "":
		return promptLast4
	default:
		return promptOrder
	}
}

// decisionReply renders the closing message for a resolved decision.
func decisionReply(d eligibility.Decision) string {
	switch d.Status {
	case eligibility.StatusApproved:
		return fmt.Sprintf("Your refund is approved for $%.2f. Refund ID: %s. "+
			"You'll receive an email confirmation shortly.", d.Amount, d.RefundID)
	case eligibility.StatusDenied:
		return replyDenied
	default:
		return replyError
	}
}
