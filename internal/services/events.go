package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pairspace-backend/internal/metrics"
	"pairspace-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Event types
const (
	EventSpaceUpdated = "space.updated"
	EventQuizLocked   = "quiz.locked"
	EventQuizPassed   = "quiz.passed"
)

// Space actions carried by EventSpaceUpdated
const (
	ActionItemAdded       = "item.added"
	ActionItemEdited      = "item.edited"
	ActionItemDeleted     = "item.deleted"
	ActionReactionSet     = "reaction.set"
	ActionReactionRemoved = "reaction.removed"
	ActionSpaceCreated    = "space.created"
)

// Event describes a change visible to both partners of a couple
type Event struct {
	Type        string          `json:"type"`
	CoupleID    string          `json:"coupleId"`
	Action      string          `json:"action,omitempty"`
	Kind        models.ItemKind `json:"kind,omitempty"`
	ItemID      string          `json:"itemId,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	LockedUntil *time.Time      `json:"lockedUntil,omitempty"`
	At          time.Time       `json:"at"`
}

// Publisher delivers events. Delivery is best effort; failures are logged by
// the implementation and never returned to the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Fanout publishes every event to each of its publishers
type Fanout []Publisher

// Publish implements Publisher
func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, e)
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// RedisBroadcaster relays events through a Redis channel so that every
// instance delivers them to its own WebSocket clients
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	local   Publisher
}

// NewRedisBroadcaster creates a broadcaster that delivers received events to
// local
func NewRedisBroadcaster(client *redis.Client, channel string, local Publisher) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel, local: local}
}

// Publish implements Publisher. If Redis is unreachable the event is still
// delivered to local clients.
func (b *RedisBroadcaster) Publish(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event")
		return
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		metrics.EventsDelivered.WithLabelValues("redis", "error").Inc()
		log.Error().Err(err).Str("couple_id", e.CoupleID).Msg("Failed to publish event to redis")
		b.local.Publish(ctx, e)
		return
	}
	metrics.EventsDelivered.WithLabelValues("redis", "ok").Inc()
}

// Run subscribes to the channel and forwards events until ctx is done
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	log.Info().Str("channel", b.channel).Msg("Subscribed to event channel")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Error().Err(err).Msg("Failed to parse event from redis")
				continue
			}
			b.local.Publish(ctx, e)
		}
	}
}
