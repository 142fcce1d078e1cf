package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"stablecore/core/events"
)

const (
	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 256

	// HeaderEvent carries the event type of a delivery.
	HeaderEvent = "X-Stablecore-Event"
	// HeaderSignature carries the hex HMAC-SHA256 of the body.
	HeaderSignature = "X-Stablecore-Signature"

	meterName = "stablecore/webhooks"

	dropQueueFull = "queue_full"
	dropClosed    = "closed"
	dropExhausted = "exhausted"
	dropShutdown  = "shutdown"
)

// Payload is the webhook body for a committed protocol event.
type Payload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
	DeliveryID string            `json:"deliveryId"`
}

// Dispatcher delivers committed events to an HTTP endpoint with retry and
// exponential backoff. It implements events.Emitter; a full queue drops the
// event and logs it.
type Dispatcher struct {
	meters      metric.MeterProvider
	metrics     *dispatchMetrics
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	topics      map[string]struct{}
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithTopics restricts deliveries to the listed event types.
func WithTopics(topics ...string) Option {
	return func(d *Dispatcher) {
		for _, topic := range topics {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				if d.topics == nil {
					d.topics = make(map[string]struct{})
				}
				d.topics[trimmed] = struct{}{}
			}
		}
	}
}

// WithLogger overrides the logger used for dropped deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMeterProvider overrides the provider used for queue metrics. The
// global provider is used by default.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(d *Dispatcher) {
		if provider != nil {
			d.meters = provider
		}
	}
}

type dispatchMetrics struct {
	depth    metric.Int64UpDownCounter
	dropped  metric.Int64Counter
	attempts metric.Int64Counter
}

func newDispatchMetrics(provider metric.MeterProvider) *dispatchMetrics {
	meter := provider.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)
	depth, err := meter.Int64UpDownCounter("stablecore.webhooks.queue_depth",
		metric.WithDescription("Deliveries waiting in the dispatcher queue."))
	if err != nil {
		depth, _ = fallback.Int64UpDownCounter("stablecore.webhooks.queue_depth")
	}
	dropped, err := meter.Int64Counter("stablecore.webhooks.dropped",
		metric.WithDescription("Deliveries abandoned, by reason."))
	if err != nil {
		dropped, _ = fallback.Int64Counter("stablecore.webhooks.dropped")
	}
	attempts, err := meter.Int64Counter("stablecore.webhooks.attempts",
		metric.WithDescription("HTTP delivery attempts, by outcome."))
	if err != nil {
		attempts, _ = fallback.Int64Counter("stablecore.webhooks.attempts")
	}
	return &dispatchMetrics{depth: depth, dropped: dropped, attempts: attempts}
}

func (m *dispatchMetrics) recordDropped(reason string, count int) {
	if count <= 0 {
		return
	}
	m.dropped.Add(context.Background(), int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *dispatchMetrics) recordAttempt(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.attempts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = string(bytes.TrimSpace([]byte(endpoint)))
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	if dispatcher.meters == nil {
		dispatcher.meters = otel.GetMeterProvider()
	}
	dispatcher.metrics = newDispatchMetrics(dispatcher.meters)
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the worker and waits for it to exit. The delivery in progress
// is abandoned, and queued deliveries are discarded, counted and logged.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Emit implements events.Emitter.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil || evt == nil {
		return
	}
	if err := d.Enqueue(evt); err != nil {
		d.logger.Warn("webhook delivery dropped", "event", evt.EventType(), "error", err)
	}
}

// Enqueue renders evt and queues it for delivery without blocking.
func (d *Dispatcher) Enqueue(evt events.Event) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	rendered := events.Render(evt)
	if len(d.topics) > 0 {
		if _, ok := d.topics[rendered.Type]; !ok {
			return nil
		}
	}
	data, err := json.Marshal(Payload{
		Type:       rendered.Type,
		Attributes: rendered.Attributes,
		EmittedAt:  time.Now().UTC(),
		DeliveryID: uuid.NewString(),
	})
	if err != nil {
		return err
	}
	select {
	case <-d.ctx.Done():
		d.metrics.recordDropped(dropClosed, 1)
		return errors.New("webhook: dispatcher closed")
	default:
	}
	select {
	case d.queue <- delivery{eventType: rendered.Type, body: data}:
		d.metrics.depth.Add(context.Background(), 1)
		return nil
	default:
		d.metrics.recordDropped(dropQueueFull, 1)
		return errors.New("webhook: queue full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			d.discardPending()
			return
		default:
		}
		select {
		case job := <-d.queue:
			d.metrics.depth.Add(context.Background(), -1)
			d.process(job)
		case <-d.ctx.Done():
			d.discardPending()
			return
		}
	}
}

// discardPending empties the queue after shutdown.
func (d *Dispatcher) discardPending() {
	discarded := 0
	for drained := false; !drained; {
		select {
		case <-d.queue:
			discarded++
		default:
			drained = true
		}
	}
	if discarded == 0 {
		return
	}
	d.metrics.depth.Add(context.Background(), int64(-discarded))
	d.metrics.recordDropped(dropShutdown, discarded)
	d.logger.Warn("webhook deliveries discarded on close", "count", discarded)
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		if d.ctx.Err() != nil {
			d.metrics.recordDropped(dropShutdown, 1)
			return
		}
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		d.metrics.recordAttempt(err)
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.metrics.recordDropped(dropExhausted, 1)
			d.logger.Error("webhook delivery failed", "event", job.eventType, "error", err)
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			d.metrics.recordDropped(dropShutdown, 1)
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.eventType)
	req.Header.Set(HeaderSignature, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	sum := mac.Sum(nil)
	return "sha256=" + hex.EncodeToString(sum)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
