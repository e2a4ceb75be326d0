// Package redis keeps the notification log in Redis sorted sets, one per
// recipient and kind, scored by send time. It serves deployments where the
// dedup check must be shared across engine instances without a database
// round trip.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
)

var existsDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "certflow_ledger_exists_duration_ms",
	Help:    "Latency of notification log lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const keyPrefix = "certflow:ledger:"

// Ledger implements the notification log. Scores are microseconds since
// the epoch, so windows compare at microsecond precision.
type Ledger struct {
	client *redis.Client
	retain time.Duration
}

type Option func(*Ledger)

// WithRetention overrides how long entries are kept behind the newest one.
// It defaults to the longest notification window.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		l.retain = d
	}
}

func New(client *redis.Client, opts ...Option) *Ledger {
	l := &Ledger{client: client, retain: models.MaxWindow()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func key(recipient id.UserID, kind models.NotificationKind) string {
	return keyPrefix + recipient.String() + ":" + string(kind)
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// AppendNotificationLog adds the entry and drops entries that fell out of
// every window relative to it. The key itself expires once nothing was
// appended for the retention period.
func (l *Ledger) AppendNotificationLog(ctx context.Context, entry models.NotificationLogEntry) error {
	k := key(entry.Recipient, entry.Kind)
	member := strconv.FormatInt(entry.SentAt.UnixNano(), 10) + "|" + entry.Subject

	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: score(entry.SentAt), Member: member})
	if l.retain > 0 {
		cutoff := entry.SentAt.Add(-l.retain)
		pipe.ZRemRangeByScore(ctx, k, "-inf", "("+formatScore(cutoff))
		pipe.Expire(ctx, k, l.retain)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append notification log: %w", err)
	}
	return nil
}

// ExistsLogEntry reports whether an entry newer than after exists.
func (l *Ledger) ExistsLogEntry(ctx context.Context, recipient id.UserID, kind models.NotificationKind, after time.Time) (bool, error) {
	start := time.Now()
	defer func() {
		existsDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	n, err := l.client.ZCount(ctx, key(recipient, kind), "("+formatScore(after), "+inf").Result()
	if err != nil {
		return false, fmt.Errorf("exists log entry: %w", err)
	}
	return n > 0, nil
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}
