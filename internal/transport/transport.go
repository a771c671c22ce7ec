package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"quizroom/pkg/cache"

	"github.com/redis/go-redis/v9"
)

// Handler is invoked once per delivered event that passes the subscription's
// filters. Handlers run on the subscription's goroutine and must not block.
type Handler func(Event)

// Transport fans row-change events out to subscribed clients over Redis
// pub/sub. Delivery is at-least-once; publish failures are the publisher's
// problem to log, and consumers are expected to resync by refetching.
type Transport struct {
	redis *cache.RedisClient
}

func NewTransport(redisClient *cache.RedisClient) *Transport {
	return &Transport{redis: redisClient}
}

// Publish marshals the event onto the logical channel. Called by services
// after a successful store write.
func (t *Transport) Publish(ctx context.Context, channelKey string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := t.redis.Publish(ctx, channelKey, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channelKey, err)
	}
	return nil
}

// Subscribe registers interest in a logical channel. The returned
// subscription is owned by exactly one room/session view and must be closed
// on teardown or before re-subscribing under a different channel key.
func (t *Transport) Subscribe(ctx context.Context, channelKey string, filters []Filter, handler Handler) *Subscription {
	pubsub := t.redis.Subscribe(ctx, channelKey)
	sub := NewSubscription(channelKey, pubsub.Close)
	go sub.loop(pubsub.Channel(), filters, handler)
	return sub
}

// Subscription is an owned handle to one channel's event stream. Close is
// idempotent and safe on an already-torn-down handle.
type Subscription struct {
	channelKey string
	closer     func() error
	once       sync.Once
	done       chan struct{}
}

// NewSubscription builds a bare handle around a closer. Subscribe wraps it
// with a live delivery loop; alternative buses can hand out their own.
func NewSubscription(channelKey string, closer func() error) *Subscription {
	return &Subscription{
		channelKey: channelKey,
		closer:     closer,
		done:       make(chan struct{}),
	}
}

func (s *Subscription) ChannelKey() string {
	return s.channelKey
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.closer != nil {
			if err := s.closer(); err != nil {
				log.Printf("Failed to close subscription on %s: %v", s.channelKey, err)
			}
		}
	})
}

// Done is closed once the delivery loop has drained and exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) loop(msgs <-chan *redis.Message, filters []Filter, handler Handler) {
	defer close(s.done)

	for msg := range msgs {
		ev, err := DecodeEvent([]byte(msg.Payload))
		if err != nil {
			log.Printf("Dropping event on %s: %v", s.channelKey, err)
			continue
		}
		if !matchesAny(filters, ev) {
			continue
		}
		handler(ev)
	}
}
