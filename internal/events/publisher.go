// Package events publishes user domain events to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/starterkit/starterkit/internal/metrics"
	"github.com/starterkit/starterkit/internal/model"
)

const (
	// StreamKey is the Redis stream for user events.
	StreamKey = "stream:user_events"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond

	// TypeUserCreated is emitted once per inserted user.
	TypeUserCreated = "user.created"
)

// UserEvent is the compact event format written to the stream.
type UserEvent struct {
	EventID    string `json:"eid"`   // ULID
	Type       string `json:"type"`  // event type
	UserID     int64  `json:"uid"`   // users.id
	Email      string `json:"email"` // users.email
	OccurredAt int64  `json:"t"`     // Unix milliseconds
}

// NewUserCreated builds the user.created event for a stored user.
func NewUserCreated(user *model.User, now time.Time) UserEvent {
	return UserEvent{
		EventID:    ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:       TypeUserCreated,
		UserID:     user.ID,
		Email:      user.Email,
		OccurredAt: now.UnixMilli(),
	}
}

// Publisher enqueues user events to a Redis stream.
type Publisher struct {
	redis    *redis.Client
	logger   *slog.Logger
	metrics  metrics.Recorder
	inflight sync.WaitGroup
}

// NewPublisher creates a new user event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously and returns the stream entry ID.
func (p *Publisher) Publish(ctx context.Context, event UserEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"type":    event.Type,
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event UserEvent) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish user event",
				"event_id", event.EventID,
				"type", event.Type,
				"user_id", event.UserID,
				"error", err,
			)
			p.metrics.IncUserEventPublished(metrics.StatusDropped)
			return
		}

		p.logger.Debug("user event published",
			"event_id", event.EventID,
			"type", event.Type,
			"stream_id", streamID,
		)
		p.metrics.IncUserEventPublished(metrics.StatusSuccess)
	}()
}

// Drain waits for in-flight async publishes to finish or for ctx to expire.
func (p *Publisher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain user events: %w", ctx.Err())
	}
}

// Decode parses a stream payload back into a UserEvent.
func Decode(payload string) (UserEvent, error) {
	var event UserEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return UserEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
