package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"smart-stick/tracker/internal/config"
	"smart-stick/tracker/internal/domain"
)

const (
	positionsKey     = "sticks:positions"
	alertQueueKey    = "notify:alerts"
	alertInflightKey = "notify:alerts:inflight"
	eventChannelGlob = "stick:*:events"
	stateTTL         = 24 * time.Hour
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func stateKey(stickID string) string {
	return fmt.Sprintf("stick:%s:state", stickID)
}

func EventChannel(stickID string) string {
	return fmt.Sprintf("stick:%s:events", stickID)
}

// PipelineStateUpdate caches the newest position of each stick in one round
// trip: a state hash per stick plus a shared geo index.
func (r *RedisStore) PipelineStateUpdate(ctx context.Context, reports []domain.TelemetryReport) error {
	if len(reports) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()

	for _, rep := range reports {
		state := map[string]interface{}{
			"stick_id":          rep.DeviceID,
			"lat":               rep.Position.Latitude,
			"lng":               rep.Position.Longitude,
			"is_charging":       rep.IsCharging,
			"obstacle_detected": rep.ObstacleDetected,
			"emergency":         rep.Emergency,
			"recorded_at":       rep.RecordedAt.Unix(),
		}
		if rep.BatteryLevel != nil {
			state["battery"] = *rep.BatteryLevel
		}

		key := stateKey(rep.DeviceID)
		pipe.HSet(ctx, key, state)
		pipe.Expire(ctx, key, stateTTL)
		pipe.GeoAdd(ctx, positionsKey, &redis.GeoLocation{
			Name:      rep.DeviceID,
			Longitude: rep.Position.Longitude,
			Latitude:  rep.Position.Latitude,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (r *RedisStore) PublishEvent(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, EventChannel(ev.Room), payload).Err()
}

func (r *RedisStore) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return r.client.PSubscribe(ctx, eventChannelGlob)
}

func (r *RedisStore) EnqueueAlert(ctx context.Context, task domain.AlertTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal alert task: %w", err)
	}
	if err := r.client.LPush(ctx, alertQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue alert for %s: %w", task.DeviceID, err)
	}
	return nil
}

// DequeueAlert blocks up to timeout and returns nil, nil when the queue
// stayed empty. The task moves to the in-flight list until AckAlert.
func (r *RedisStore) DequeueAlert(ctx context.Context, timeout time.Duration) (*domain.AlertTask, error) {
	payload, err := r.client.BLMove(ctx, alertQueueKey, alertInflightKey, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue alert: %w", err)
	}

	var task domain.AlertTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		// Unreadable payloads would be requeued forever.
		r.client.LRem(ctx, alertInflightKey, 1, payload)
		return nil, fmt.Errorf("decode alert task: %w", err)
	}
	task.Receipt = payload
	return &task, nil
}

func (r *RedisStore) AckAlert(ctx context.Context, task domain.AlertTask) error {
	if task.Receipt == "" {
		return nil
	}
	if err := r.client.LRem(ctx, alertInflightKey, 1, task.Receipt).Err(); err != nil {
		return fmt.Errorf("ack alert %s: %w", task.ID, err)
	}
	return nil
}

// RequeueInflight moves tasks left in flight by a stopped process back onto
// the queue and returns how many were moved.
func (r *RedisStore) RequeueInflight(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, alertInflightKey, alertQueueKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeue in-flight alerts: %w", err)
		}
		n++
	}
}
