package database

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cufee/botto-moderator/duration"
	"go.uber.org/zap"
)

var (
	ErrInvalidThreshold = errors.New("warning threshold must be positive")
	ErrInvalidDuration  = fmt.Errorf("rule duration: %w", duration.ErrInvalid)
)

// Warns - Warning counts and autopunish rules for every guild
type Warns struct {
	mu     sync.Mutex
	store  Store
	logger *zap.Logger
	guilds map[string]*GuildWarnings
}

// NewWarns - Load warn counts from the store
func NewWarns(store Store, logger *zap.Logger) *Warns {
	logger = logger.Named("warns")
	guilds := LoadOrDefault(store, WarnCountsDoc, func() map[string]*GuildWarnings {
		return make(map[string]*GuildWarnings)
	}, logger)

	for id, g := range guilds {
		if g == nil {
			g = &GuildWarnings{}
			guilds[id] = g
		}
		if g.Warnings == nil {
			g.Warnings = make(map[string]int)
		}
		sortRules(g.Autopunish)
	}

	return &Warns{
		store:  store,
		logger: logger,
		guilds: guilds,
	}
}

func sortRules(rules []AutopunishRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Warnings < rules[j].Warnings
	})
}

func (w *Warns) ensureLocked(guildID string) *GuildWarnings {
	g, ok := w.guilds[guildID]
	if !ok {
		g = &GuildWarnings{
			Warnings:   make(map[string]int),
			Autopunish: []AutopunishRule{},
		}
		w.guilds[guildID] = g
	}
	return g
}

func (w *Warns) saveLocked() error {
	if err := w.store.Save(WarnCountsDoc, w.guilds); err != nil {
		return fmt.Errorf("failed to save warn counts: %w", err)
	}
	return nil
}

// AddWarning - Add one warning to a user and return their new total
func (w *Warns) AddWarning(guildID, userID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	g := w.ensureLocked(guildID)
	g.Warnings[userID]++
	return g.Warnings[userID], w.saveLocked()
}

// Warnings - Current warning count for a user
func (w *Warns) Warnings(guildID, userID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.guilds[guildID]
	if !ok {
		return 0
	}
	return g.Warnings[userID]
}

// ClearWarnings - Remove all warnings for a user and return how many there were
func (w *Warns) ClearWarnings(guildID, userID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.guilds[guildID]
	if !ok {
		return 0, nil
	}
	cleared, ok := g.Warnings[userID]
	if !ok {
		return 0, nil
	}
	delete(g.Warnings, userID)
	return cleared, w.saveLocked()
}

// AddRule - Add an autopunish rule, replacing any rule with the same threshold
func (w *Warns) AddRule(guildID string, rule AutopunishRule) error {
	if rule.Warnings <= 0 {
		return ErrInvalidThreshold
	}
	if !duration.Valid(rule.Duration) {
		return ErrInvalidDuration
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	g := w.ensureLocked(guildID)
	rules := make([]AutopunishRule, 0, len(g.Autopunish)+1)
	for _, r := range g.Autopunish {
		if r.Warnings != rule.Warnings {
			rules = append(rules, r)
		}
	}
	rules = append(rules, rule)
	sortRules(rules)
	g.Autopunish = rules

	return w.saveLocked()
}

// RemoveRule - Remove the rule for a threshold. Returns false if there was none.
func (w *Warns) RemoveRule(guildID string, warnings int) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.guilds[guildID]
	if !ok {
		return false, nil
	}

	rules := make([]AutopunishRule, 0, len(g.Autopunish))
	for _, r := range g.Autopunish {
		if r.Warnings != warnings {
			rules = append(rules, r)
		}
	}
	if len(rules) == len(g.Autopunish) {
		return false, nil
	}
	g.Autopunish = rules
	return true, w.saveLocked()
}

// Rules - Rules for a guild, sorted by threshold
func (w *Warns) Rules(guildID string) []AutopunishRule {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.guilds[guildID]
	if !ok {
		return nil
	}
	return append([]AutopunishRule(nil), g.Autopunish...)
}

// ClearRules - Remove every rule for a guild and return how many there were
func (w *Warns) ClearRules(guildID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.guilds[guildID]
	if !ok || len(g.Autopunish) == 0 {
		return 0, nil
	}
	cleared := len(g.Autopunish)
	g.Autopunish = []AutopunishRule{}
	return cleared, w.saveLocked()
}

// RuleFor - Rule whose threshold equals warnings exactly
func (w *Warns) RuleFor(guildID string, warnings int) (AutopunishRule, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.guilds[guildID]
	if !ok {
		return AutopunishRule{}, false
	}
	for _, r := range g.Autopunish {
		if r.Warnings == warnings {
			return r, true
		}
	}
	return AutopunishRule{}, false
}
