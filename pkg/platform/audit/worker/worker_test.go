package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "certflow/pkg/domain"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/platform/audit/store/memory"
)

func TestWorkerForwardsUntilInboxCloses(t *testing.T) {
	store := memory.NewInMemoryStore()
	inbox := make(chan audit.Event, 3)
	userID := id.NewUserID()
	inbox <- audit.Event{UserID: userID, Action: string(audit.EventCertificateIssued)}
	inbox <- audit.Event{UserID: userID, Action: string(audit.EventCertificateExpired)}
	close(inbox)

	err := NewWorker(store, inbox, nil).Run(context.Background())
	require.NoError(t, err)

	events, err := store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWorker(memory.NewInMemoryStore(), make(chan audit.Event), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTeeForwardsCopiesAndDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	primary := memory.NewInMemoryStore()
	dropped := 0
	tee := NewTee(primary, 1, func(audit.Event) { dropped++ })
	userID := id.NewUserID()

	require.NoError(t, tee.Append(ctx, audit.Event{UserID: userID, Action: string(audit.EventProcessRequested)}))
	require.NoError(t, tee.Append(ctx, audit.Event{UserID: userID, Action: string(audit.EventEvaluatorAssigned)}))
	tee.Close()

	events, err := tee.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, dropped)

	sink := memory.NewInMemoryStore()
	require.NoError(t, NewWorker(sink, tee.Outbox(), nil).Run(ctx))
	forwarded, err := sink.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, forwarded, 1)
	assert.Equal(t, string(audit.EventProcessRequested), forwarded[0].Action)
}
