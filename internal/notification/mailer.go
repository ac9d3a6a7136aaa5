// Package notification delivers outbound messages about catalog changes.
package notification

import (
	"context"
	"time"
)

// Mailer sends a single notification. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, subject, message string) error
}

// Message is the envelope handed to the transport.
type Message struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}
