package notification

import (
	"context"
	"time"

	"valuation/server/config"
	"valuation/server/internal/metrics"
	"valuation/server/internal/queue"

	"github.com/sirupsen/logrus"
)

const sendTimeout = 15 * time.Second

// Dispatcher sends messages in the background so callers never wait on a
// notification channel.
type Dispatcher struct {
	notifier Notifier
	queue    *queue.Queue[Message]
	logger   *logrus.Logger
}

func NewDispatcher(notifier Notifier, queueSize int, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		notifier: notifier,
		queue:    queue.New[Message](queueSize, logger),
		logger:   logger,
	}
	d.queue.Subscribe(d.send)
	d.queue.Start()
	return d
}

func (d *Dispatcher) send(msg Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	channel := d.notifier.Name()
	if err := d.notifier.Send(ctx, msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues(channel, "failed").Inc()
		d.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.ID,
			"kind":       msg.Kind,
		}).Error("Failed to send notification")
		return nil
	}
	metrics.NotificationsTotal.WithLabelValues(channel, "sent").Inc()
	return nil
}

// Dispatch queues msg. A full or closed queue drops the message with a warning.
func (d *Dispatcher) Dispatch(msg Message) bool {
	if err := d.queue.Push(msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues(d.notifier.Name(), "dropped").Inc()
		d.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.ID,
			"kind":       msg.Kind,
		}).Warn("Notification dropped")
		return false
	}
	return true
}

// Close waits for queued messages to be sent, bounded by ctx
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.queue.Close(ctx)
}

// FromConfig builds the notifier chain for the configured channels, falling
// back to the log when none is set.
func FromConfig(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (Notifier, error) {
	n := cfg.Notification
	var notifiers Multi

	if n.SESRegion != "" && n.TeamEmail != "" {
		sesNotifier, err := NewSESNotifier(ctx, n.SESRegion, n.FromEmail, n.TeamEmail, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, sesNotifier)
	}
	if n.TelegramBotToken != "" && n.TelegramChatID != "" {
		notifiers = append(notifiers, NewTelegramNotifier(n.TelegramBotToken, n.TelegramChatID, logger))
	}

	switch len(notifiers) {
	case 0:
		logger.Info("No notification channel configured, notifications go to the log")
		return NewLogNotifier(logger), nil
	case 1:
		return notifiers[0], nil
	default:
		return notifiers, nil
	}
}
