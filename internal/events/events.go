// Package events publishes pipeline completion events. Events are
// delivered to in-process subscribers and, when configured, pushed to
// external webhook targets as CloudEvents. Delivery is fire-and-forget:
// a failed webhook never affects the job outcome.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/folio-health/folio/internal/types"
)

const (
	// EventTypeCompleted is the CloudEvents type for terminal jobs.
	EventTypeCompleted = "health.folio.document.completed"

	// eventSource identifies this service as the event producer.
	eventSource = "folio/pipeline"
)

// Subscriber receives completion events in-process.
type Subscriber func(event types.CompletionEvent)

// Config holds event bus settings.
type Config struct {
	WebhookTargets []string
	SendTimeout    time.Duration
	Logger         *slog.Logger
}

// Bus fans completion events out to subscribers and webhook targets.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber

	targets     []string
	sendTimeout time.Duration
	client      cloudevents.Client
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewBus creates an event bus. Webhook delivery is enabled only when
// targets are configured.
func NewBus(cfg Config) (*Bus, error) {
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bus{
		targets:     cfg.WebhookTargets,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger.With("component", "events"),
	}

	if len(cfg.WebhookTargets) > 0 {
		client, err := cloudevents.NewClientHTTP()
		if err != nil {
			return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
		}
		b.client = client
	}

	return b, nil
}

// Subscribe registers an in-process subscriber. Subscribers are called
// synchronously in publish order.
func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Publish delivers a completion event to all subscribers and webhook
// targets. Webhook sends run in the background.
func (b *Bus) Publish(event types.CompletionEvent) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}

	if b.client == nil {
		return
	}

	ce := cloudevents.NewEvent()
	ce.SetID(uuid.NewString())
	ce.SetSource(eventSource)
	ce.SetType(EventTypeCompleted)
	ce.SetSubject(event.DocumentID)
	ce.SetTime(time.Now().UTC())
	if err := ce.SetData(cloudevents.ApplicationJSON, event); err != nil {
		b.logger.Error("failed to encode completion event", "error", err)
		return
	}

	for _, target := range b.targets {
		b.wg.Add(1)
		go func(target string, ce cloudevents.Event) {
			defer b.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
			defer cancel()
			ctx = cloudevents.ContextWithTarget(ctx, target)

			if result := b.client.Send(ctx, ce); cloudevents.IsUndelivered(result) {
				b.logger.Warn("webhook delivery failed",
					"target", target,
					"job_id", event.JobID,
					"error", result)
			}
		}(target, ce)
	}
}

// Close waits for in-flight webhook deliveries to finish.
func (b *Bus) Close() {
	b.wg.Wait()
}
