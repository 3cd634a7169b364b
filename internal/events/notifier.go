package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier is the fire-and-forget notification call point.
type Notifier interface {
	Notify(ctx context.Context, eventType string, sessionID uuid.UUID) error
}

// OutboxNotifier records notifications in the outbox; the Deliverer moves
// them to the delivery service.
type OutboxNotifier struct {
	store *OutboxStore
	now   func() time.Time
}

func NewOutboxNotifier(store *OutboxStore) *OutboxNotifier {
	return &OutboxNotifier{store: store, now: time.Now}
}

func (n *OutboxNotifier) Notify(ctx context.Context, eventType string, sessionID uuid.UUID) error {
	_, err := n.store.Insert(ctx, sessionID, eventType, newSessionEvent(eventType, sessionID, n.now()))
	return err
}

// Notification is one call captured by MemoryNotifier.
type Notification struct {
	Type      string
	SessionID uuid.UUID
}

// MemoryNotifier captures notifications in order.
type MemoryNotifier struct {
	mu    sync.Mutex
	items []Notification
	Err   error
}

func (n *MemoryNotifier) Notify(ctx context.Context, eventType string, sessionID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.items = append(n.items, Notification{Type: eventType, SessionID: sessionID})
	return nil
}

// Sent returns a copy of the captured notifications.
func (n *MemoryNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.items...)
}

// Count returns how many notifications of eventType were captured.
func (n *MemoryNotifier) Count(eventType string) int {
	c := 0
	for _, item := range n.Sent() {
		if item.Type == eventType {
			c++
		}
	}
	return c
}
