package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func codeKey(phone string) string {
	return fmt.Sprintf("otp:%s", phone)
}

func attemptsKey(phone string) string {
	return fmt.Sprintf("otp:att:%s", phone)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Save(ctx context.Context, phone, codeHash string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, codeKey(phone), codeHash, ttl)
		pipe.Set(ctx, attemptsKey(phone), 0, ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, phone string) (string, error) {
	codeHash, err := s.client.Get(ctx, codeKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrOTPNotFound
	}
	return codeHash, err
}

func (s *RedisStore) IncrAttempts(ctx context.Context, phone string) (int64, error) {
	return s.client.Incr(ctx, attemptsKey(phone)).Result()
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	return s.client.Del(ctx, codeKey(phone), attemptsKey(phone)).Err()
}
