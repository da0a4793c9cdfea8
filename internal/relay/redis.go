package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"capture-relay-api/internal/model"
)

const defaultChannelPrefix = "relay:account"

// RedisRelay implements Publisher and Subscriber over redis Pub/Sub.
// Each account maps to one channel; redis fans messages out to every
// subscribed session across all API instances.
type RedisRelay struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRelay creates a relay on an existing redis client.
func NewRedisRelay(client *redis.Client, keyPrefix string) *RedisRelay {
	if keyPrefix == "" {
		keyPrefix = defaultChannelPrefix
	}
	return &RedisRelay{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRelay) channelName(accountID string) string {
	return fmt.Sprintf("%s:%s", r.keyPrefix, accountID)
}

// Publish sends an event to the account's channel.
func (r *RedisRelay) Publish(ctx context.Context, accountID string, event model.RelayEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal relay event: %w", err)
	}

	if err := r.client.Publish(ctx, r.channelName(accountID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish relay event: %w", err)
	}
	return nil
}

// Subscribe opens a stream of the account's events.
func (r *RedisRelay) Subscribe(ctx context.Context, accountID string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, r.channelName(accountID))

	// Confirm the subscription before returning so callers don't miss
	// events published right after Subscribe.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to relay channel: %w", err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan model.RelayEvent, 16),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	events    chan model.RelayEvent
	closeOnce sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.events)
	for msg := range s.ps.Channel() {
		var event model.RelayEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("[RedisRelay] Dropping malformed relay payload: %v", err)
			continue
		}
		s.events <- event
	}
}

// Events yields relay events until Close.
func (s *redisSubscription) Events() <-chan model.RelayEvent {
	return s.events
}

// Close tears down the redis subscription.
func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ps.Close()
	})
	return err
}

// Ensure RedisRelay implements both relay interfaces
var (
	_ Publisher  = (*RedisRelay)(nil)
	_ Subscriber = (*RedisRelay)(nil)
)
