package scanner

import (
	"context"
	"time"

	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/pacing"
	"go.uber.org/zap"
)

// Scheduler - Drives the engine across every guild, one step per guild per tick
type Scheduler struct {
	engine    *Engine
	messages  *database.Messages
	directory GuildDirectory
	pacer     *pacing.Controller
	logger    *zap.Logger
}

// NewScheduler - Create a scheduler for the engine
func NewScheduler(engine *Engine, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:    engine,
		messages:  engine.messages,
		directory: engine.directory,
		pacer:     engine.pacer,
		logger:    logger.Named("scan_scheduler"),
	}
}

// Tick - Visit every known guild once in ascending id order. Returns the
// number of guilds that made progress.
func (s *Scheduler) Tick(ctx context.Context) int {
	guilds := s.directory.Guilds()
	sortIDs(guilds)

	worked := 0
	for _, guildID := range guilds {
		if ctx.Err() != nil {
			return worked
		}
		if err := s.messages.Ensure(guildID); err != nil {
			s.logger.Warn("Failed to create guild record", zap.String("guild_id", guildID), zap.Error(err))
		}
		if s.messages.Scanned(guildID) {
			continue
		}
		if s.engine.PerformOneStep(ctx, guildID) {
			worked++
		}
	}
	return worked
}

// Run - Tick until ctx is cancelled, waiting the pacing delay between ticks
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scan scheduler started")
	defer s.logger.Info("Scan scheduler stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if worked := s.Tick(ctx); worked > 0 {
			s.logger.Debug("Scan tick finished", zap.Int("guilds", worked))
		}

		// Read fresh every tick so pacing changes apply immediately
		timer.Reset(s.pacer.Delay())
	}
}
