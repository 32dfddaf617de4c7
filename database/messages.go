package database

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Messages - Message counts and scan progress for every guild.
// Every mutation is applied and persisted under one lock, so live
// increments and scan pages never drop each other's updates.
type Messages struct {
	mu     sync.Mutex
	store  Store
	logger *zap.Logger
	guilds map[string]*GuildMessageRecord
}

// NewMessages - Load message counts from the store
func NewMessages(store Store, logger *zap.Logger) *Messages {
	logger = logger.Named("messages")
	guilds := LoadOrDefault(store, MessageCountsDoc, func() map[string]*GuildMessageRecord {
		return make(map[string]*GuildMessageRecord)
	}, logger)

	for id, rec := range guilds {
		if rec == nil {
			guilds[id] = NewGuildMessageRecord()
			continue
		}
		if rec.Normalize() {
			logger.Info("Migrated guild message record", zap.String("guild_id", id))
		}
	}

	return &Messages{
		store:  store,
		logger: logger,
		guilds: guilds,
	}
}

func (m *Messages) ensureLocked(guildID string) (*GuildMessageRecord, bool) {
	rec, ok := m.guilds[guildID]
	if ok && rec != nil {
		rec.Normalize()
		return rec, false
	}
	rec = NewGuildMessageRecord()
	m.guilds[guildID] = rec
	return rec, true
}

func (m *Messages) saveLocked() error {
	if err := m.store.Save(MessageCountsDoc, m.guilds); err != nil {
		return fmt.Errorf("failed to save message counts: %w", err)
	}
	return nil
}

// Ensure - Create the guild record if it does not exist yet
func (m *Messages) Ensure(guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, created := m.ensureLocked(guildID); created {
		return m.saveLocked()
	}
	return nil
}

// Get - Copy of the guild record, created if missing
func (m *Messages) Get(guildID string) GuildMessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, created := m.ensureLocked(guildID)
	if created {
		if err := m.saveLocked(); err != nil {
			m.logger.Warn("Failed to persist new guild record", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
	return rec.Clone()
}

// Increment - Count one live message and persist. Returns the new count.
func (m *Messages) Increment(guildID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, _ := m.ensureLocked(guildID)
	rec.Live.Count++
	return rec.Live.Count, m.saveLocked()
}

// Update - Run fn against the live guild record under the lock. The record
// is persisted when fn returns true. fn must not block.
func (m *Messages) Update(guildID string, fn func(rec *GuildMessageRecord) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, created := m.ensureLocked(guildID)
	if !fn(rec) && !created {
		return nil
	}
	return m.saveLocked()
}

// Reset - Forget scan progress so the guild is scanned again from scratch.
// The count restarts at zero since the scan recounts the whole history.
func (m *Messages) Reset(guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked(guildID)
	return m.saveLocked()
}

// ResetAll - Reset every listed guild in a single write
func (m *Messages) ResetAll(guildIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range guildIDs {
		m.resetLocked(id)
	}
	return m.saveLocked()
}

func (m *Messages) resetLocked(guildID string) {
	rec, _ := m.ensureLocked(guildID)
	rec.Live.Count = 0
	rec.Live.Scanned = false
	rec.Progress = NewScanProgress()
}

// GuildIDs - Known guild ids in ascending order
func (m *Messages) GuildIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.guilds))
	for id := range m.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Scanned - True once the history scan finished for the guild
func (m *Messages) Scanned(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.guilds[guildID]
	return ok && rec != nil && rec.Live != nil && rec.Live.Scanned
}
