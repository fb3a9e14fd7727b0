package routing

import (
	"fmt"
	"strings"
)

// hintLength is how much of the thread id appears in outbound bot envelopes.
// Eight hex characters of a UUID are enough for an unambiguous open-thread
// prefix in practice.
const hintLength = 8

// ThreadHint returns the truncated thread identifier used in envelopes.
func ThreadHint(threadID string) string {
	if len(threadID) <= hintLength {
		return threadID
	}
	return threadID[:hintLength]
}

// FormatAgentEnvelope renders a customer message for delivery on the bot
// channel. The header carries the sender, the category, and the thread hint
// an agent can echo back to address a reply.
func FormatAgentEnvelope(senderName, categoryTitle, threadID, body string) string {
	var b strings.Builder
	b.WriteString("New message\n")
	fmt.Fprintf(&b, "From: %s\n", senderName)
	if categoryTitle != "" {
		fmt.Fprintf(&b, "Category: %s\n", categoryTitle)
	}
	fmt.Fprintf(&b, "Thread: #%s", ThreadHint(threadID))
	if body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	return b.String()
}

// ReplyGuidance is sent when an agent taps the reply button on an envelope.
func ReplyGuidance(threadID string) string {
	hint := ThreadHint(threadID)
	return fmt.Sprintf("Replying to thread #%s. Send your message now, or include #%s in any later message to address this thread explicitly.", hint, hint)
}
