package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Store is a string cache over redis. Keys expire after ttl; zero keeps them forever.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func New(opts Options) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   1,
	})
	return &Store{rdb: rdb, ttl: opts.TTL}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, s.ttl).Err()
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		log.Warnf("redis: close err=%v", err)
		return err
	}
	return nil
}

// Nop never hits; it stands in when no redis is configured.
type Nop struct{}

func (Nop) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (Nop) Set(ctx context.Context, key, value string) error { return nil }
