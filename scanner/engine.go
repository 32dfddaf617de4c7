// Package scanner backfills guild message counts from channel history, one
// page at a time, with progress checkpointed after every page.
package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/cufee/botto-moderator/config"
	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/pacing"
	"go.uber.org/zap"
)

// Engine - Performs single bounded scan steps against persisted progress
type Engine struct {
	messages  *database.Messages
	source    MessageSource
	directory GuildDirectory
	pacer     *pacing.Controller
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine - Create a scan engine
func NewEngine(messages *database.Messages, source MessageSource, directory GuildDirectory, pacer *pacing.Controller, logger *zap.Logger) *Engine {
	return &Engine{
		messages:  messages,
		source:    source,
		directory: directory,
		pacer:     pacer,
		logger:    logger.Named("scanner"),
		now:       time.Now,
	}
}

// Status - Counts and progress for status replies
type Status struct {
	Count         int64
	Scanned       bool
	ChannelsDone  int
	ChannelsTotal int
}

// Status - Current count and scan progress for a guild
func (e *Engine) Status(guildID string) Status {
	rec := e.messages.Get(guildID)
	done, total := rec.ChannelsDone()
	return Status{
		Count:         rec.Live.Count,
		Scanned:       rec.Live.Scanned,
		ChannelsDone:  done,
		ChannelsTotal: total,
	}
}

// ObserveLive - Account for a message delivered in real time. Every message
// feeds the burst counter; only human messages are counted.
func (e *Engine) ObserveLive(guildID string, m Message) (int64, bool, error) {
	e.pacer.NoteLiveMessage()
	if !m.Human() {
		return 0, false, nil
	}
	count, err := e.messages.Increment(guildID)
	return count, true, err
}

// Rescan - Drop a guild's progress so the scheduler scans it again
func (e *Engine) Rescan(guildID string) error {
	if err := e.messages.Reset(guildID); err != nil {
		return err
	}
	e.logger.Info("Rescan requested", zap.String("guild_id", guildID))
	return nil
}

// RescanAll - Drop progress for every guild the bot is in
func (e *Engine) RescanAll() (int, error) {
	ids := e.directory.Guilds()
	if err := e.messages.ResetAll(ids); err != nil {
		return 0, err
	}
	e.logger.Info("Global rescan requested", zap.Int("guilds", len(ids)))
	return len(ids), nil
}

// markCompleteIfDone sets complete and scanned together once no checkpoint is pending
func markCompleteIfDone(rec *database.GuildMessageRecord) bool {
	if !rec.Progress.AllDone() {
		return false
	}
	rec.Progress.Complete = true
	rec.Live.Scanned = true
	return true
}

func pendingChannels(p *database.ScanProgress) []string {
	var ids []string
	for id, cp := range p.Channels {
		if !cp.Done {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

func sameCursor(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// PerformOneStep - Do at most one page of work for a guild. Returns false when
// there was nothing left to do.
func (e *Engine) PerformOneStep(ctx context.Context, guildID string) bool {
	logger := e.logger.With(zap.String("guild_id", guildID))

	channels, ok := e.directory.TextChannels(guildID)
	if !ok {
		logger.Debug("Guild unavailable, skipping scan step")
		return false
	}

	var (
		target   string
		cursor   *string
		didWork  bool
		finished bool
	)
	err := e.messages.Update(guildID, func(rec *database.GuildMessageRecord) bool {
		if rec.Progress.Complete {
			return false
		}

		// Channels created since the scan started join the queue
		changed := false
		present := make(map[string]struct{}, len(channels))
		for _, id := range channels {
			present[id] = struct{}{}
			if _, ok := rec.Progress.Channels[id]; !ok {
				rec.Progress.Channels[id] = &database.ChannelCheckpoint{}
				changed = true
			}
		}

		pending := pendingChannels(rec.Progress)
		if len(pending) == 0 {
			finished = markCompleteIfDone(rec)
			return true
		}

		first := pending[0]
		cp := rec.Progress.Channels[first]
		didWork = true

		if _, ok := present[first]; !ok {
			cp.Done = true
			logger.Info("Channel missing, marking done", zap.String("channel_id", first))
			finished = markCompleteIfDone(rec)
			return true
		}

		target = first
		if cp.LastMessageID != nil {
			last := *cp.LastMessageID
			cursor = &last
		}
		return changed
	})
	if err != nil {
		logger.Error("Failed to persist scan progress", zap.Error(err))
	}
	if finished {
		logger.Info("Incremental scan complete")
	}
	if target == "" {
		return didWork
	}

	return e.fetchAndApply(ctx, logger, guildID, target, cursor)
}

func (e *Engine) fetchAndApply(ctx context.Context, logger *zap.Logger, guildID, channelID string, cursor *string) bool {
	logger = logger.With(zap.String("channel_id", channelID))

	before := ""
	if cursor != nil {
		before = *cursor
	}

	start := e.now()
	page, err := e.source.FetchPage(ctx, channelID, e.pacer.BatchSize(), before)
	if errors.Is(err, ErrNoAccess) {
		logger.Warn("No access to channel history, skipping channel", zap.Error(err))
		e.skipChannel(logger, guildID, channelID, cursor)
		return true
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		e.pacer.RecordLatency(config.FetchPenalty)
		logger.Warn("Failed to fetch message page", zap.Error(err))
		return true
	}
	e.pacer.RecordLatency(e.now().Sub(start))

	var (
		stale    bool
		finished bool
		counted  int
	)
	err = e.messages.Update(guildID, func(rec *database.GuildMessageRecord) bool {
		cp, ok := rec.Progress.Channels[channelID]
		if rec.Progress.Complete || !ok || cp.Done || !sameCursor(cp.LastMessageID, cursor) {
			// Progress was reset while the page was in flight
			stale = true
			return false
		}

		if len(page) == 0 {
			cp.Done = true
			finished = markCompleteIfDone(rec)
			return true
		}

		var last string
		for _, m := range page {
			last = m.ID
			if m.Human() {
				counted++
			}
		}
		cp.LastMessageID = &last
		rec.Live.Count += int64(counted)
		return true
	})
	if err != nil {
		logger.Error("Failed to persist scan progress", zap.Error(err))
	}

	switch {
	case stale:
		logger.Debug("Discarding page fetched before a rescan")
	case len(page) == 0:
		logger.Info("Channel done")
	default:
		logger.Debug("Scanned message page", zap.Int("messages", len(page)), zap.Int("counted", counted))
	}
	if finished {
		logger.Info("Incremental scan complete")
	}
	return true
}

// skipChannel marks a channel done without counting anything more from it
func (e *Engine) skipChannel(logger *zap.Logger, guildID, channelID string, cursor *string) {
	finished := false
	err := e.messages.Update(guildID, func(rec *database.GuildMessageRecord) bool {
		cp, ok := rec.Progress.Channels[channelID]
		if rec.Progress.Complete || !ok || cp.Done || !sameCursor(cp.LastMessageID, cursor) {
			return false
		}
		cp.Done = true
		finished = markCompleteIfDone(rec)
		return true
	})
	if err != nil {
		logger.Error("Failed to persist scan progress", zap.Error(err))
	}
	if finished {
		logger.Info("Incremental scan complete")
	}
}
