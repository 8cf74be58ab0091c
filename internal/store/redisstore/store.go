package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const verdictPrefix = "answer:verdict:"

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects and pings. ttl bounds how long a cached verdict lives.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Store{rdb: rdb, ttl: ttl}, nil
}

func NewWithClient(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) GetVerdict(ctx context.Context, key string) (bool, bool, error) {
	v, err := s.rdb.Get(ctx, verdictPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == "1", true, nil
}

func (s *Store) SetVerdict(ctx context.Context, key string, verdict bool) error {
	v := "0"
	if verdict {
		v = "1"
	}
	return s.rdb.Set(ctx, verdictPrefix+key, v, s.ttl).Err()
}
