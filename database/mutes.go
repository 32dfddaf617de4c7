package database

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mutes - Active sanctions waiting to be lifted, keyed by guild then user
type Mutes struct {
	mu     sync.Mutex
	store  Store
	guilds map[string]map[string]*MuteEntry
}

// NewMutes - Load active sanctions from the store
func NewMutes(store Store, logger *zap.Logger) *Mutes {
	logger = logger.Named("mutes")
	guilds := LoadOrDefault(store, MutesDoc, func() map[string]map[string]*MuteEntry {
		return make(map[string]map[string]*MuteEntry)
	}, logger)

	for guildID, users := range guilds {
		for userID, e := range users {
			if e == nil {
				logger.Warn("Dropping empty mute entry", zap.String("guild_id", guildID), zap.String("user_id", userID))
				delete(users, userID)
				continue
			}
			e.GuildID = guildID
			e.UserID = userID
		}
		if len(users) == 0 {
			delete(guilds, guildID)
		}
	}

	return &Mutes{store: store, guilds: guilds}
}

func (m *Mutes) saveLocked() error {
	if err := m.store.Save(MutesDoc, m.guilds); err != nil {
		return fmt.Errorf("failed to save mutes: %w", err)
	}
	return nil
}

// Add - Record a sanction, replacing any earlier one for the same member
func (m *Mutes) Add(entry MuteEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.guilds[entry.GuildID]
	if !ok {
		users = make(map[string]*MuteEntry)
		m.guilds[entry.GuildID] = users
	}
	users[entry.UserID] = &entry
	return m.saveLocked()
}

// Remove - Forget the sanction for a member. Returns false if there was none.
func (m *Mutes) Remove(guildID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.guilds[guildID]
	if !ok {
		return false, nil
	}
	if _, ok := users[userID]; !ok {
		return false, nil
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(m.guilds, guildID)
	}
	return true, m.saveLocked()
}

// Get - Sanction recorded for a member
func (m *Mutes) Get(guildID, userID string) (MuteEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.guilds[guildID][userID]
	if !ok {
		return MuteEntry{}, false
	}
	return *e, true
}

// Expired - Entries whose expiry is at or before now, oldest first
func (m *Mutes) Expired(now time.Time) []MuteEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []MuteEntry
	for _, users := range m.guilds {
		for _, e := range users {
			if e.Expired(now) {
				out = append(out, *e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Expires < out[j].Expires
	})
	return out
}

// All - Every recorded sanction ordered by guild and user
func (m *Mutes) All() []MuteEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []MuteEntry
	for _, users := range m.guilds {
		for _, e := range users {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GuildID != out[j].GuildID {
			return out[i].GuildID < out[j].GuildID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
