package ticket

import (
	"fmt"
	"strings"
	"time"
)

const transcriptTimeLayout = "2006-01-02 15:04:05 MST"

// TranscriptHeader describes the ticket a transcript belongs to.
type TranscriptHeader struct {
	TicketName string
	Category   string
	ClosedBy   string
	ClosedAt   time.Time
}

// TranscriptMessage is one archived message. The builder only depends
// on these records, never on the session.
type TranscriptMessage struct {
	Timestamp   time.Time
	AuthorName  string
	AuthorID    string
	Content     string
	EmbedCount  int
	Attachments []string
}

// BuildTranscript renders the plain-text archive for a closed ticket.
// It is a pure function: identical inputs produce byte-identical
// output. Messages are rendered in the order given; callers sort.
func BuildTranscript(h TranscriptHeader, msgs []TranscriptMessage) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Ticket: %s\n", h.TicketName)
	fmt.Fprintf(&sb, "Category: %s\n", h.Category)
	fmt.Fprintf(&sb, "Closed by: %s\n", h.ClosedBy)
	fmt.Fprintf(&sb, "Closed at: %s\n", h.ClosedAt.UTC().Format(transcriptTimeLayout))
	fmt.Fprintf(&sb, "Messages: %d\n", len(msgs))
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	for _, m := range msgs {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "[%s] %s (%s)\n", m.Timestamp.UTC().Format(transcriptTimeLayout), m.AuthorName, m.AuthorID)
		if m.Content != "" {
			sb.WriteString(m.Content + "\n")
		}
		if m.EmbedCount > 0 {
			fmt.Fprintf(&sb, "[%d embed(s)]\n", m.EmbedCount)
		}
		if len(m.Attachments) > 0 {
			fmt.Fprintf(&sb, "[attachments: %s]\n", strings.Join(m.Attachments, ", "))
		}
	}
	return sb.String()
}
