package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gymsync/internal/metrics"
	"gymsync/internal/models"
	"gymsync/internal/reactive"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when the dispatcher has no publisher.
var ErrNotConfigured = errors.New("notification dispatcher not configured: no publisher")

// Publisher is the slice of the MQTT client the dispatcher needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// NotificationMessage is the JSON payload published per notification.
type NotificationMessage struct {
	ID      string     `json:"id"`
	UserID  string     `json:"usuarioId"`
	Title   string     `json:"titulo,omitempty"`
	Message string     `json:"mensaje,omitempty"`
	Kind    string     `json:"tipo,omitempty"`
	Date    *time.Time `json:"fecha,omitempty"`
}

// NotificationDispatcher pushes each unread notification to
// <prefix>/<usuarioId> once. A failed publish is retried on the next change.
type NotificationDispatcher struct {
	source    reactive.Observable[[]models.Notification]
	publisher Publisher
	prefix    string
	qos       byte
	logger    *zap.Logger
	metrics   *metrics.Sync

	mu         sync.Mutex
	dispatched map[string]struct{}
	signal     chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewNotificationDispatcher(
	source reactive.Observable[[]models.Notification],
	publisher Publisher,
	prefix string,
	qos byte,
	logger *zap.Logger,
	m *metrics.Sync,
) *NotificationDispatcher {
	if prefix == "" {
		prefix = "gym/notificaciones"
	}
	return &NotificationDispatcher{
		source:     source,
		publisher:  publisher,
		prefix:     prefix,
		qos:        qos,
		logger:     logger,
		metrics:    m,
		dispatched: make(map[string]struct{}),
		signal:     make(chan struct{}, 1),
	}
}

// Start dispatches the current list and then follows changes until ctx ends
// or Stop is called.
func (d *NotificationDispatcher) Start(ctx context.Context) error {
	if d.publisher == nil {
		return ErrNotConfigured
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	unsubscribe := d.source.Subscribe(func([]models.Notification) { d.wake() })
	d.wake()

	go func() {
		defer close(d.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.signal:
				d.Dispatch(d.source.Get())
			}
		}
	}()

	d.logger.Info("Notification dispatcher started", zap.String("topic_prefix", d.prefix))
	return nil
}

// Stop ends the follow loop and waits for it.
func (d *NotificationDispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *NotificationDispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Dispatch publishes every unread, addressed, not yet dispatched
// notification in list and returns how many went out.
func (d *NotificationDispatcher) Dispatch(list []models.Notification) int {
	sent := 0
	for _, n := range list {
		if n.UserID == nil || *n.UserID == "" || (n.Read != nil && *n.Read) {
			continue
		}
		// provisional copy of a create in flight; the stored one follows
		if models.IsTemporaryID(n.ID) {
			continue
		}
		if d.seen(n.ID) {
			continue
		}
		if err := d.publish(n); err != nil {
			d.logger.Warn("Failed to publish notification",
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
			continue
		}
		d.markSeen(n.ID)
		d.metrics.NotificationDispatched()
		sent++
	}
	return sent
}

func (d *NotificationDispatcher) publish(n models.Notification) error {
	payload, err := json.Marshal(NotificationMessage{
		ID:      n.ID,
		UserID:  *n.UserID,
		Title:   deref(n.Title),
		Message: deref(n.Message),
		Kind:    deref(n.Kind),
		Date:    n.Date,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return d.publisher.Publish(d.Topic(*n.UserID), d.qos, false, payload)
}

// Topic is where notifications for userID are published.
func (d *NotificationDispatcher) Topic(userID string) string {
	return d.prefix + "/" + userID
}

func (d *NotificationDispatcher) seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.dispatched[id]
	return ok
}

func (d *NotificationDispatcher) markSeen(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched[id] = struct{}{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
