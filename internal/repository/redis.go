package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bookflow/internal/config"
	"bookflow/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	client := redis.NewClient(options)

	return client
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisSessionRepository) GetSession(ctx context.Context, id string) (*models.BookingSession, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	key := "booking_session:" + id
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session models.BookingSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisSessionRepository) SaveSession(ctx context.Context, session *models.BookingSession) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := "booking_session:" + session.ID
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Каждое сохранение продлевает TTL: сессия живет, пока клиент активен
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}

	return nil
}

func (r *RedisSessionRepository) ClearSession(ctx context.Context, id string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := "booking_session:" + id
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rlKey := "rate_limit:" + key
	count, err := r.client.Incr(ctx, rlKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, rlKey, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
