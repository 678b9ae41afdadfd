package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"otp-auth-service/internal/session/domain"
)

const (
	keyPrefix     = "auth:session:"
	fieldUsername = "username"
	fieldAttempts = "attempts"
)

// Connect initializes a Redis client from URL or host:port input and pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisStore keeps sessions as Redis hashes so any instance can serve the OTP step.
// Key expiry replaces the memory store's sweeper.
type RedisStore struct {
	client     *redis.Client
	ttl        time.Duration
	counterTTL time.Duration
}

// NewRedisStore creates a session store backed by Redis hashes.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, counterTTL: min(ttl, CounterTTL)}
}

func (s *RedisStore) Create(ctx context.Context, id, username string) error {
	key := keyPrefix + id
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, fieldUsername, username, fieldAttempts, 0)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.State, error) {
	key := keyPrefix + id
	var data *redis.MapStringStringCmd
	var ttl *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		data = p.HGetAll(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	fields := data.Val()
	if len(fields) == 0 {
		return nil, nil
	}
	st := &domain.State{ID: id, Username: fields[fieldUsername]}
	if n, convErr := strconv.Atoi(fields[fieldAttempts]); convErr == nil {
		st.Attempts = n
	}
	if d := ttl.Val(); d > 0 {
		st.ExpiresAt = time.Now().Add(d)
	}
	return st, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	key := keyPrefix + id
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.HIncrBy(ctx, key, fieldAttempts, 1)
		// Only a fresh counter-only key lacks an expiry; a real session keeps its own and repeated
		// guesses cannot extend it.
		p.ExpireNX(ctx, key, s.counterTTL)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// Consume reads and deletes the hash inside MULTI, so a concurrent Consume reads nothing.
func (s *RedisStore) Consume(ctx context.Context, id string) (string, bool, error) {
	key := keyPrefix + id
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.HGet(ctx, key, fieldUsername)
		p.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, err
	}
	username, getErr := get.Result()
	if errors.Is(getErr, redis.Nil) || username == "" {
		return "", false, nil
	}
	if getErr != nil {
		return "", false, getErr
	}
	return username, true, nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyPrefix+id).Err()
}
