// Package notification delivers team notifications about estimates and
// contact requests over e-mail, Telegram or the log.
package notification

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Notifier delivers a message to one channel
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log. It is used when no channel is configured.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string {
	return "log"
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"kind":       msg.Kind,
		"subject":    msg.Subject,
	}).Info("Notification")
	return nil
}

// Multi sends every message to all of its notifiers
type Multi []Notifier

func (m Multi) Name() string {
	return "multi"
}

// Send tries every notifier and joins their errors
func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
