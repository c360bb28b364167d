package repository

import (
	"context"
	"sync"
	"time"

	"bookflow/internal/models"
)

type sessionEntry struct {
	session   *models.BookingSession
	expiresAt time.Time
}

type MemorySessionRepository struct {
	sessions   sync.Map
	rateLimits sync.Map
	ttl        time.Duration
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		ttl: ttl,
	}
}

func (r *MemorySessionRepository) GetSession(ctx context.Context, id string) (*models.BookingSession, error) {
	val, ok := r.sessions.Load(id)
	if !ok {
		return nil, nil
	}

	entry := val.(*sessionEntry)
	if time.Now().After(entry.expiresAt) {
		r.sessions.Delete(id)
		return nil, nil
	}
	return entry.session, nil
}

func (r *MemorySessionRepository) SaveSession(ctx context.Context, session *models.BookingSession) error {
	r.sessions.Store(session.ID, &sessionEntry{
		session:   session,
		expiresAt: time.Now().Add(r.ttl),
	})
	return nil
}

func (r *MemorySessionRepository) ClearSession(ctx context.Context, id string) error {
	r.sessions.Delete(id)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
