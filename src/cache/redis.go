package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/meetscribe/realtime/src/types"
)

// invalidationEnvelope wraps an invalidated key with the originating
// instance ID so that a node can skip its own published keys.
type invalidationEnvelope struct {
	InstanceID string `json:"instance_id"`
	Key        string `json:"key"`
}

// RedisInvalidator fans cache invalidations out across app instances
// via Redis pub/sub. It wraps a local Invalidator: every local
// invalidation is also published, and keys published by other
// instances are applied locally.
type RedisInvalidator struct {
	client     *redis.Client
	prefix     string
	instanceID string
	local      types.Invalidator
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisInvalidator creates an invalidation fan-out over Redis pub/sub.
func NewRedisInvalidator(cfg *RedisConfig, local types.Invalidator, logger zerolog.Logger) *RedisInvalidator {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisInvalidator{
		client:     client,
		prefix:     cfg.Prefix,
		instanceID: uuid.New().String(),
		local:      local,
		logger:     logger.With().Str("component", "redis-invalidator").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the invalidation channel and begins relaying keys.
func (ri *RedisInvalidator) Start() error {
	if err := ri.client.Ping(ri.ctx).Err(); err != nil {
		return err
	}

	channel := ri.prefix + "invalidate"
	sub := ri.client.Subscribe(ri.ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ri.ctx); err != nil {
		return err
	}

	ri.mu.Lock()
	ri.active = true
	ri.mu.Unlock()

	ri.wg.Add(1)
	go ri.listen(sub)

	ri.logger.Info().
		Str("instance_id", ri.instanceID).
		Str("channel", channel).
		Msg("redis invalidator started")
	return nil
}

// Invalidate applies the key locally and publishes it to other
// instances. Publishing is fire-and-forget; failures are logged.
func (ri *RedisInvalidator) Invalidate(key string) {
	ri.local.Invalidate(key)

	if !ri.Available() {
		return
	}
	env := invalidationEnvelope{
		InstanceID: ri.instanceID,
		Key:        key,
	}
	data, err := json.Marshal(env)
	if err != nil {
		ri.logger.Error().Err(err).Str("key", key).Msg("envelope encode failed")
		return
	}
	channel := ri.prefix + "invalidate"
	if err := ri.client.Publish(ri.ctx, channel, data).Err(); err != nil {
		ri.logger.Error().Err(err).Str("key", key).Msg("publish failed")
	}
}

// Stop unsubscribes and closes the Redis connection.
func (ri *RedisInvalidator) Stop() error {
	ri.mu.Lock()
	ri.active = false
	ri.mu.Unlock()

	ri.cancel()
	ri.wg.Wait()
	return ri.client.Close()
}

// Available reports whether the fan-out is connected.
func (ri *RedisInvalidator) Available() bool {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.active
}

// listen reads keys from the Redis subscription and applies non-self
// invalidations locally.
func (ri *RedisInvalidator) listen(sub *redis.PubSub) {
	defer ri.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ri.handleRedisMessage(msg)
		case <-ri.ctx.Done():
			return
		}
	}
}

func (ri *RedisInvalidator) handleRedisMessage(msg *redis.Message) {
	var env invalidationEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		ri.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}

	// Skip keys that originated from this instance.
	if env.InstanceID == ri.instanceID {
		return
	}

	ri.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("key", env.Key).
		Msg("applying remote invalidation")

	ri.local.Invalidate(env.Key)
}
