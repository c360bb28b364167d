package repository

import (
	"context"
	"sync/atomic"
	"time"

	"bookflow/internal/domain"
	"bookflow/internal/models"

	"github.com/rs/zerolog"
)

type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, id string) (*models.BookingSession, error) {
	if !r.isDown.Load() {
		session, err := r.primary.GetSession(ctx, id)
		if err == nil {
			return session, nil
		}
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		session, err := r.primary.GetSession(ctx, id)
		if err == nil {
			r.isDown.Store(false)
			return session, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetSession(ctx, id)
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, session *models.BookingSession) error {
	if !r.isDown.Load() {
		err := r.primary.SaveSession(ctx, session)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.SaveSession(ctx, session)
}

func (r *FailoverSessionRepository) ClearSession(ctx context.Context, id string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearSession(ctx, id)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.ClearSession(ctx, id)
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
