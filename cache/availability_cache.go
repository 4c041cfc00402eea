package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/slotbook/clinic_booking/models"
	"github.com/slotbook/clinic_booking/services"
)

const (
	activeSlotsKey = "slots:active"
	generationKey  = "slots:active:gen"
)

var errStaleListing = errors.New("cache: listing invalidated while it was read")

var (
	_ services.SlotListCache  = (*AvailabilityCache)(nil)
	_ services.EventPublisher = (*AvailabilityCache)(nil)
)

// AvailabilityCache keeps the active-slot listing in redis for a short TTL
// and drops it whenever a slot event is published.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

// NewRedisClient builds a client and pings it once.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// GetActiveSlots returns the cached listing. On a miss it returns the current
// generation, which SetActiveSlots needs to store a fresh listing.
func (c *AvailabilityCache) GetActiveSlots(ctx context.Context) ([]models.SlotWithAvailability, int64, bool, error) {
	var data, gen *redis.StringCmd
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		data = pipe.Get(ctx, activeSlotsKey)
		gen = pipe.Get(ctx, generationKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, err
	}

	n, err := gen.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, err
	}

	raw, err := data.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, n, false, nil
	}
	if err != nil {
		return nil, n, false, err
	}

	var views []models.SlotWithAvailability
	if err := json.Unmarshal(raw, &views); err != nil {
		return nil, n, false, err
	}
	return views, n, true, nil
}

// SetActiveSlots stores views only if no slot event has been published since
// gen was read; otherwise the listing may predate that event and is dropped.
func (c *AvailabilityCache) SetActiveSlots(ctx context.Context, gen int64, views []models.SlotWithAvailability) error {
	data, err := json.Marshal(views)
	if err != nil {
		return err
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleListing
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, activeSlotsKey, data, c.ttl)
			return nil
		})
		return err
	}, generationKey)
	if errors.Is(err, errStaleListing) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Publish bumps the generation and drops the listing in one MULTI.
func (c *AvailabilityCache) Publish(ctx context.Context, _ services.SlotEvent) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, activeSlotsKey)
		return nil
	})
	return err
}

func (c *AvailabilityCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
