package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
)

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	Username string `json:"username" yaml:"username" toml:"username"`
	Password string `json:"password" yaml:"password" toml:"password"`
	DB       int    `json:"db" yaml:"db" toml:"db"`
	// Prefix is prepended to every dataset hash name, separated by ':'.
	Prefix string `json:"prefix" yaml:"prefix" toml:"prefix"`
}

// RedisSink keeps one hash per dataset: HSET dataset key value on put and
// HDEL dataset key on remove. A Write is sent as one MULTI/EXEC pipeline.
type RedisSink struct {
	client *redis.Client
	prefix string

	// dataset -> hash name
	hashes   map[string]string
	hashesMu sync.Mutex
}

func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis sink requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisSinkWithClient(client, cfg.Prefix), nil
}

func NewRedisSinkWithClient(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix, hashes: make(map[string]string)}
}

func (s *RedisSink) hash(dataset string) string {
	s.hashesMu.Lock()
	defer s.hashesMu.Unlock()

	if h, ok := s.hashes[dataset]; ok {
		return h
	}
	h := dataset
	if s.prefix != "" {
		h = s.prefix + ":" + dataset
	}
	s.hashes[dataset] = h
	return h
}

func (s *RedisSink) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

func (s *RedisSink) Write(ctx context.Context, events []*keyvalue.Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range events {
			if e.IsDelete() {
				pipe.HDel(ctx, s.hash(e.Dataset), e.Key)
			} else {
				pipe.HSet(ctx, s.hash(e.Dataset), e.Key, e.ValueBytes())
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %d events to redis: %w", len(events), err)
	}
	return nil
}

func (s *RedisSink) Flush(ctx context.Context) error {
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) Type() string {
	return "redis"
}

var _ Sink = (*RedisSink)(nil)
