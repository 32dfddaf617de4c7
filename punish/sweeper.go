package punish

import (
	"context"
	"errors"
	"time"

	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/retry"
	"go.uber.org/zap"
)

// Sweeper - Lifts sanctions whose expiry has passed
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	retry    retry.Options
	logger   *zap.Logger
}

// NewSweeper - Create a sweeper that runs every interval
func NewSweeper(engine *Engine, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
		retry:    retry.SanctionOptions(),
		logger:   logger.Named("mute_sweeper"),
	}
}

// Sweep - Lift every expired sanction once. Returns how many were lifted.
func (s *Sweeper) Sweep(ctx context.Context) int {
	lifted := 0
	for _, entry := range s.engine.mutes.Expired(s.engine.now()) {
		if ctx.Err() != nil {
			break
		}
		if s.sweepOne(ctx, entry) {
			lifted++
		}
	}
	return lifted
}

func (s *Sweeper) sweepOne(ctx context.Context, entry database.MuteEntry) bool {
	logger := s.logger.With(
		zap.String("guild_id", entry.GuildID),
		zap.String("user_id", entry.UserID),
		zap.String("case_id", entry.CaseID),
	)

	held, err := s.engine.sanction.Holds(ctx, entry)
	switch {
	case errors.Is(err, ErrMemberNotFound):
		logger.Debug("Muted member left, dropping entry")
		s.engine.forget(entry.GuildID, entry.UserID)
		return false
	case err != nil:
		logger.Warn("Failed to check mute, will retry next sweep", zap.Error(err))
		return false
	case !held:
		logger.Debug("Mute already lifted, dropping entry")
		s.engine.forget(entry.GuildID, entry.UserID)
		return false
	}

	reason := ReasonTimedExpired
	if entry.Automatic {
		reason = ReasonAutoExpired
	}

	err = retry.Do(ctx, func() error {
		err := s.engine.sanction.Lift(ctx, entry, reason)
		if errors.Is(err, ErrMemberNotFound) {
			return retry.Permanent(err)
		}
		return err
	}, s.retry)
	if errors.Is(err, ErrMemberNotFound) {
		s.engine.forget(entry.GuildID, entry.UserID)
		return false
	}
	if err != nil {
		logger.Warn("Failed to lift expired mute, will retry next sweep", zap.Error(err))
		return false
	}

	s.engine.forget(entry.GuildID, entry.UserID)
	s.engine.auditor.Record(ctx, Event{
		Kind:        EventAutoUnmute,
		GuildID:     entry.GuildID,
		UserID:      entry.UserID,
		ModeratorID: AutoModeratorID,
		Reason:      reason,
		CaseID:      entry.CaseID,
	})
	logger.Info("Lifted expired mute")
	return true
}

// Run - Sweep every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("Mute sweeper started", zap.Duration("interval", s.interval))
	defer s.logger.Info("Mute sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Catch up on anything that expired while the bot was offline
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if lifted := s.Sweep(ctx); lifted > 0 {
				s.logger.Debug("Sweep finished", zap.Int("lifted", lifted))
			}
		}
	}
}
