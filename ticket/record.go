package ticket

import (
	"fmt"
	"regexp"
	"strings"
)

// Record is the persistent state of one ticket. It lives in the ticket
// channel's topic and dies with the channel; there is no other
// authoritative copy.
type Record struct {
	LogMessageID string
	OwnerID      string
	Category     string
}

// The decoder matches each field independently so that future fields
// can be appended to the topic without breaking old parsers.
var (
	logPattern      = regexp.MustCompile(`Log: (\d+)`)
	userPattern     = regexp.MustCompile(`User: (\d+)`)
	categoryPattern = regexp.MustCompile(`Category: (\w+)`)
)

// EncodeRecord renders a record as the channel-topic line
// "Log: <id> | User: <id> | Category: <key>". A category the registry
// does not know is written as the fallback key.
func EncodeRecord(reg *Registry, r Record) string {
	cat := r.Category
	if !reg.Known(cat) {
		cat = FallbackCategory
	}
	return fmt.Sprintf("Log: %s | User: %s | Category: %s", r.LogMessageID, r.OwnerID, cat)
}

// DecodeRecord parses a channel topic back into a Record. An empty
// topic yields ErrMissingTicketRecord and a topic with no log
// reference yields ErrMissingLogReference; a missing or unrecognized
// category falls back to FallbackCategory rather than failing.
func DecodeRecord(reg *Registry, topic string) (Record, error) {
	if strings.TrimSpace(topic) == "" {
		return Record{}, ErrMissingTicketRecord
	}

	var r Record
	m := logPattern.FindStringSubmatch(topic)
	if m == nil {
		return Record{}, ErrMissingLogReference
	}
	r.LogMessageID = m[1]

	if m := userPattern.FindStringSubmatch(topic); m != nil {
		r.OwnerID = m[1]
	}

	r.Category = FallbackCategory
	if m := categoryPattern.FindStringSubmatch(topic); m != nil && reg.Known(m[1]) {
		r.Category = m[1]
	}
	return r, nil
}
