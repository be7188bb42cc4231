package notifications

import "context"

// Mailer sends transactional email. Callers treat every send as best effort;
// failures are logged and swallowed, never propagated into a request.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}
