package ticket

import "errors"

// Validation errors abort an operation before any side effect and are
// surfaced to the user as an ephemeral message. Archival problems
// (missing log channel, transcript failures) are not errors at this
// level; they are logged and swallowed so channel deletion always
// proceeds.
var (
	ErrNotATicketChannel   = errors.New("not a ticket channel")
	ErrMissingTicketRecord = errors.New("ticket record missing or unparsable")
	ErrMissingLogReference = errors.New("ticket record has no log reference")
	ErrUnauthorized        = errors.New("not the ticket owner or staff")
	ErrAlreadyClosing      = errors.New("ticket close already in progress")
	ErrInvalidInput        = errors.New("subject or description empty or too long")
)
