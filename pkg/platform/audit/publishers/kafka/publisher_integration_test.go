//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "certflow/pkg/domain"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/testutil/containers"
)

func TestPublisherProducesToTopic(t *testing.T) {
	kc := containers.GetManager().GetKafka(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	topic := "certflow-audit-" + id.NewUserID().String()[:8]
	pub, err := New([]string{kc.Broker}, topic)
	require.NoError(t, err)
	defer pub.Close(ctx)
	require.NoError(t, pub.EnsureTopic(ctx, 1, 1))
	require.NoError(t, pub.EnsureTopic(ctx, 1, 1), "second ensure is a no-op")

	require.NoError(t, pub.Append(ctx, audit.Event{
		ID:        "evt-1",
		Timestamp: time.Now(),
		Action:    string(audit.EventCertificateIssued),
		Subject:   "process:p1",
	}))

	consumer, err := kgo.NewClient(kgo.SeedBrokers(kc.Broker), kgo.ConsumeTopics(topic), kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, "process:p1", string(records[0].Key))

	var got map[string]string
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, "certificate_issued", got["action"])
}
