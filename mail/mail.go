// Package mail defines the outbound message contract used for account
// verification mail, plus a sender that only logs.
package mail

import (
	"context"

	"go.uber.org/zap"
)

// Kind names the template a message should be rendered with.
type Kind string

const KindEmailVerification Kind = "email_verification"

// Message carries everything a sender needs to render and deliver one mail.
type Message struct {
	Kind      Kind
	Recipient string
	Token     string
	Locale    string
}

// Sender delivers a message. Delivery is best-effort from the engine's point
// of view: errors are logged, never surfaced to the caller.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to a zap logger instead of delivering them. The
// token is not logged.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("mail queued",
		zap.String("kind", string(msg.Kind)),
		zap.String("recipient", msg.Recipient),
		zap.String("locale", msg.Locale),
	)
	return nil
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
