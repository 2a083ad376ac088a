// Package notify delivers verification codes to their owners.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Message is a rendered notification ready for a channel.
type Message struct {
	To      string
	Subject string
	Body    string

	// Code is carried separately for channels that log it instead of mailing.
	Code string
}

// Notifier sends one message. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// CodeMessage renders the email carrying a one-time code.
func CodeMessage(to, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your sign-in code",
		Body: fmt.Sprintf(
			"Your sign-in code is %s\r\n\r\nIt expires in %d minutes. If you did not ask for it, ignore this email.\r\n",
			code, int(ttl.Minutes()),
		),
		Code: code,
	}
}
