// Package notify delivers outbox notifications by email and by text message.
package notify

import (
	"context"

	"bank-transfer-reconciler/pkg/logger"
)

// EmailSender sends one email
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// MessageSender sends one text message
type MessageSender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// LogSender writes notifications to the log instead of delivering them. It
// stands in for a sink that is not configured.
type LogSender struct {
	logger logger.Logger
}

// NewLogSender creates a sink that only logs
func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{logger: logger.OrGlobal(log).WithComponent("notify")}
}

// SendEmail logs the email
func (s *LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.logger.WithFields(logger.Fields{"to": to, "subject": subject}).Info("Email delivery not configured, skipping")
	return nil
}

// SendMessage logs the message
func (s *LogSender) SendMessage(_ context.Context, to, _ string) error {
	s.logger.WithField("to", to).Info("Message delivery not configured, skipping")
	return nil
}
