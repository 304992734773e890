package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
)

// LocalEmitter broadcasts straight into this instance's hub. Used when the
// tracker runs as a single instance.
type LocalEmitter struct {
	hub *Hub
}

func NewLocalEmitter(hub *Hub) *LocalEmitter {
	return &LocalEmitter{hub: hub}
}

func (e *LocalEmitter) Emit(ctx context.Context, ev domain.Event) error {
	e.hub.Broadcast(ev)
	return nil
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}

// RedisEmitter publishes events so every instance's Relay can deliver them
// to its own clients.
type RedisEmitter struct {
	pub EventPublisher
}

func NewRedisEmitter(pub EventPublisher) *RedisEmitter {
	return &RedisEmitter{pub: pub}
}

func (e *RedisEmitter) Emit(ctx context.Context, ev domain.Event) error {
	return e.pub.PublishEvent(ctx, ev)
}

type EventSubscriber interface {
	SubscribeEvents(ctx context.Context) *redis.PubSub
}

// Relay feeds events published by any instance into the local hub.
type Relay struct {
	sub EventSubscriber
	hub *Hub
}

func NewRelay(sub EventSubscriber, hub *Hub) *Relay {
	return &Relay{sub: sub, hub: hub}
}

func (r *Relay) Start(ctx context.Context) error {
	pubsub := r.sub.SubscribeEvents(ctx)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime relay subscribe: %w", err)
	}
	log.Info("Realtime relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver([]byte(msg.Payload))
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Relay) deliver(payload []byte) {
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Error(err, "Dropping malformed realtime event")
		return
	}
	if ev.Room == "" {
		return
	}
	r.hub.Broadcast(ev)
}
