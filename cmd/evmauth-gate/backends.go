package main

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/evmauth/adapters/store"
	"github.com/layer-3/evmauth/ports"
	"github.com/redis/go-redis/v9"
)

// backends are the revocation list and the decision publisher shared by the gate
type backends struct {
	revocations ports.Store
	publisher   message.Publisher
	redis       *redis.Client
}

// newBackends connects to Redis when redisURL is set. Without it revocations
// are kept in process memory and decisions go to an in-process channel
func newBackends(redisURL string, logger watermill.LoggerAdapter) (*backends, error) {
	if redisURL == "" {
		return &backends{
			revocations: store.NewMemoryStore(),
			publisher:   gochannel.NewGoChannel(gochannel.Config{}, logger),
		}, nil
	}

	client, err := newRedisClient(redisURL)
	if err != nil {
		return nil, err
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		logger,
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}

	return &backends{
		revocations: store.NewRedisStore(client, ""),
		publisher:   publisher,
		redis:       client,
	}, nil
}

func (b *backends) Close() error {
	err := b.publisher.Close()
	if b.redis != nil {
		err = errors.Join(err, b.redis.Close())
	}
	return err
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
