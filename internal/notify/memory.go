package notify

import (
	"context"
	"slices"
	"sync"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
)

// Sent is one notification captured by MemoryNotifier.
type Sent struct {
	Recipient id.UserID
	Kind      models.NotificationKind
	Payload   models.Payload
}

// MemoryNotifier keeps every notification in memory. It backs local runs
// and tests; Fail makes subsequent sends return an error.
type MemoryNotifier struct {
	mu   sync.Mutex
	sent []Sent
	err  error
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Send(_ context.Context, recipient id.UserID, kind models.NotificationKind, payload models.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, Sent{Recipient: recipient, Kind: kind, Payload: payload})
	return nil
}

// Fail makes every later Send return err until Fail(nil).
func (n *MemoryNotifier) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *MemoryNotifier) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

// Count returns how many notifications of kind were sent to recipient.
func (n *MemoryNotifier) Count(recipient id.UserID, kind models.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.Recipient == recipient && s.Kind == kind {
			count++
		}
	}
	return count
}

// CountKind returns how many notifications of kind were sent to anyone.
func (n *MemoryNotifier) CountKind(kind models.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			count++
		}
	}
	return count
}

func (n *MemoryNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}
