package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
	"certflow/pkg/platform/circuit"
)

const (
	schemaVersion      = "1"
	userAgent          = "certflow-notifier/1"
	signatureHeader    = "X-Certflow-Signature"
	defaultTimeout     = 5 * time.Second
	defaultMaxRetries  = 2
	defaultBackoffUnit = time.Second
)

var (
	webhookSendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certflow_webhook_send_total",
		Help: "Webhook delivery attempts by result",
	}, []string{"result"})

	webhookSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "certflow_webhook_send_duration_seconds",
		Help:    "Webhook POST latency by result",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
)

// ErrCircuitOpen is returned without contacting the endpoint while the
// breaker is open.
var ErrCircuitOpen = errors.New("webhook circuit open")

// Envelope is the JSON body POSTed for each notification.
type Envelope struct {
	Type          string         `json:"type"`
	SchemaVersion string         `json:"schema_version"`
	Recipient     string         `json:"recipient"`
	Timestamp     string         `json:"timestamp"`
	Data          models.Payload `json:"data"`
}

// WebhookNotifier delivers notifications synchronously so the ledger only
// records sends the endpoint accepted.
type WebhookNotifier struct {
	url         string
	secret      []byte
	client      *http.Client
	limiter     *rate.Limiter
	breaker     *circuit.Breaker
	maxRetries  int
	backoffUnit time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

type WebhookOption func(*WebhookNotifier)

func WithTimeout(d time.Duration) WebhookOption {
	return func(w *WebhookNotifier) {
		if d > 0 {
			w.client.Timeout = d
		}
	}
}

func WithMaxRetries(n int) WebhookOption {
	return func(w *WebhookNotifier) {
		if n >= 0 {
			w.maxRetries = n
		}
	}
}

// WithBackoff sets the linear backoff step between retries.
func WithBackoff(d time.Duration) WebhookOption {
	return func(w *WebhookNotifier) {
		w.backoffUnit = d
	}
}

// WithRateLimit caps sends per second. A zero rate disables limiting.
func WithRateLimit(perSecond float64, burst int) WebhookOption {
	return func(w *WebhookNotifier) {
		if perSecond <= 0 {
			w.limiter = nil
			return
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, burst))
	}
}

// WithSecret signs each body with HMAC-SHA256 in the X-Certflow-Signature
// header.
func WithSecret(secret string) WebhookOption {
	return func(w *WebhookNotifier) {
		if secret != "" {
			w.secret = []byte(secret)
		}
	}
}

func WithBreaker(b *circuit.Breaker) WebhookOption {
	return func(w *WebhookNotifier) {
		if b != nil {
			w.breaker = b
		}
	}
}

func WithWebhookLogger(logger *slog.Logger) WebhookOption {
	return func(w *WebhookNotifier) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWebhookNotifier(rawURL string, opts ...WebhookOption) (*WebhookNotifier, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook URL must include a host")
	}

	w := &WebhookNotifier{
		url:         rawURL,
		client:      &http.Client{Timeout: defaultTimeout},
		breaker:     circuit.New("webhook"),
		maxRetries:  defaultMaxRetries,
		backoffUnit: defaultBackoffUnit,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *WebhookNotifier) Send(ctx context.Context, recipient id.UserID, kind models.NotificationKind, payload models.Payload) error {
	if !w.breaker.Allow() {
		webhookSendTotal.WithLabelValues("circuit_open").Inc()
		return ErrCircuitOpen
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			webhookSendTotal.WithLabelValues("rate_limited").Inc()
			return fmt.Errorf("webhook rate limit: %w", err)
		}
	}

	body, err := json.Marshal(Envelope{
		Type:          string(kind),
		SchemaVersion: schemaVersion,
		Recipient:     recipient.String(),
		Timestamp:     w.now().UTC().Format(time.RFC3339),
		Data:          payload,
	})
	if err != nil {
		webhookSendTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	err = w.sendWithRetry(ctx, body)
	if err != nil {
		if _, change := w.breaker.RecordFailure(); change.Opened {
			w.logger.WarnContext(ctx, "webhook circuit opened", "kind", string(kind))
		}
		return err
	}
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "webhook circuit closed")
	}
	return nil
}

func (w *WebhookNotifier) sendWithRetry(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := range w.maxRetries + 1 {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * w.backoffUnit)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				webhookSendTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("webhook retry cancelled: %w", ctx.Err())
			}
			webhookSendTotal.WithLabelValues("retry").Inc()
		}

		lastErr = w.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			webhookSendTotal.WithLabelValues("error").Inc()
			return lastErr
		}
		w.logger.DebugContext(ctx, "webhook transient failure", "attempt", attempt+1, "error", lastErr)
	}
	webhookSendTotal.WithLabelValues("error").Inc()
	return fmt.Errorf("webhook failed after %d attempts: %w", w.maxRetries+1, lastErr)
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if len(w.secret) > 0 {
		mac := hmac.New(sha256.New, w.secret)
		mac.Write(body)
		req.Header.Set(signatureHeader, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.client.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		webhookSendDuration.WithLabelValues("error").Observe(elapsed)
		return &webhookError{err: err, retryable: ctx.Err() == nil}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		webhookSendTotal.WithLabelValues("success").Inc()
		webhookSendDuration.WithLabelValues("success").Observe(elapsed)
		return nil
	}
	webhookSendDuration.WithLabelValues("error").Observe(elapsed)
	return &webhookError{
		err:       fmt.Errorf("webhook returned HTTP %d", resp.StatusCode),
		retryable: resp.StatusCode >= 500,
	}
}

type webhookError struct {
	err       error
	retryable bool
}

func (e *webhookError) Error() string { return e.err.Error() }
func (e *webhookError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var we *webhookError
	if errors.As(err, &we) {
		return we.retryable
	}
	return false
}

// RedactURL hides credentials and query values for logging.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
