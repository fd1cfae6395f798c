// Package directory keeps an optional external index of who is in
// which topic, so operators can enumerate live rooms without asking
// every channeld instance. It is advisory only: the in-memory topic
// state stays authoritative and directory failures never affect
// delivery.
package directory

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Directory interface {
	Join(ctx context.Context, topic, participantID string)
	Leave(ctx context.Context, topic, participantID string)
	Members(ctx context.Context, topic string) ([]string, error)
}

// Nop is used when no redis address is configured.
type Nop struct{}

func (Nop) Join(context.Context, string, string)  {}
func (Nop) Leave(context.Context, string, string) {}
func (Nop) Members(context.Context, string) ([]string, error) {
	return nil, nil
}

type RedisDirectory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDirectory(addr string, ttl time.Duration) *RedisDirectory {
	return &RedisDirectory{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func key(topic string) string { return "topic:" + topic + ":members" }

func (d *RedisDirectory) Join(ctx context.Context, topic, participantID string) {
	if err := d.client.SAdd(ctx, key(topic), participantID).Err(); err != nil {
		log.Warn().Err(err).Str("module", "directory").Str("topic", topic).Msg("join index failed")
		return
	}
	d.client.Expire(ctx, key(topic), d.ttl)
}

func (d *RedisDirectory) Leave(ctx context.Context, topic, participantID string) {
	if err := d.client.SRem(ctx, key(topic), participantID).Err(); err != nil {
		log.Warn().Err(err).Str("module", "directory").Str("topic", topic).Msg("leave index failed")
	}
}

func (d *RedisDirectory) Members(ctx context.Context, topic string) ([]string, error) {
	return d.client.SMembers(ctx, key(topic)).Result()
}
