package worker

import (
	"context"

	id "certflow/pkg/domain"
	audit "certflow/pkg/platform/audit"
)

// Tee is an audit.Store that keeps events in a primary store and offers a
// copy to an outbox drained by a Worker. A full outbox drops the copy; the
// primary append still succeeds.
type Tee struct {
	primary audit.Store
	outbox  chan audit.Event
	dropped func(audit.Event)
}

func NewTee(primary audit.Store, size int, dropped func(audit.Event)) *Tee {
	if dropped == nil {
		dropped = func(audit.Event) {}
	}
	return &Tee{primary: primary, outbox: make(chan audit.Event, max(1, size)), dropped: dropped}
}

// Outbox is the channel to hand to NewWorker.
func (t *Tee) Outbox() <-chan audit.Event {
	return t.outbox
}

func (t *Tee) Append(ctx context.Context, event audit.Event) error {
	if err := t.primary.Append(ctx, event); err != nil {
		return err
	}
	select {
	case t.outbox <- event:
	default:
		t.dropped(event)
	}
	return nil
}

func (t *Tee) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return t.primary.ListByUser(ctx, userID)
}

// Close ends the outbox so a draining Worker returns. Append must not be
// called afterwards.
func (t *Tee) Close() {
	close(t.outbox)
}
