package database

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Settings - Per-guild log channels and mute channel config
type Settings struct {
	mu          sync.Mutex
	store       Store
	logChannels map[string]string
	muteConfig  map[string]*MuteChannels
}

// NewSettings - Load log channels and mute config from the store
func NewSettings(store Store, logger *zap.Logger) *Settings {
	logger = logger.Named("settings")
	logChannels := LoadOrDefault(store, LogChannelsDoc, func() map[string]string {
		return make(map[string]string)
	}, logger)
	muteConfig := LoadOrDefault(store, MuteConfigDoc, func() map[string]*MuteChannels {
		return make(map[string]*MuteChannels)
	}, logger)

	return &Settings{
		store:       store,
		logChannels: logChannels,
		muteConfig:  muteConfig,
	}
}

// SetLogChannel - Set the moderation log channel for a guild
func (s *Settings) SetLogChannel(guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logChannels[guildID] = channelID
	if err := s.store.Save(LogChannelsDoc, s.logChannels); err != nil {
		return fmt.Errorf("failed to save log channels: %w", err)
	}
	return nil
}

// LogChannel - Moderation log channel for a guild, if one is set
func (s *Settings) LogChannel(guildID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.logChannels[guildID]
	return id, ok && id != ""
}

// SetAppealChannels - Replace the appeal channels muted users may write in
func (s *Settings) SetAppealChannels(guildID string, channelIDs []string) error {
	return s.updateMuteConfig(guildID, func(mc *MuteChannels) {
		mc.Appeal = append([]string{}, channelIDs...)
	})
}

// SetTicketChannels - Replace the ticket channels muted users may write in
func (s *Settings) SetTicketChannels(guildID string, channelIDs []string) error {
	return s.updateMuteConfig(guildID, func(mc *MuteChannels) {
		mc.Tickets = append([]string{}, channelIDs...)
	})
}

func (s *Settings) updateMuteConfig(guildID string, fn func(mc *MuteChannels)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.muteConfig[guildID]
	if !ok || mc == nil {
		mc = &MuteChannels{Appeal: []string{}, Tickets: []string{}}
		s.muteConfig[guildID] = mc
	}
	fn(mc)

	if err := s.store.Save(MuteConfigDoc, s.muteConfig); err != nil {
		return fmt.Errorf("failed to save mute config: %w", err)
	}
	return nil
}

// MuteChannels - Copy of the mute channel config for a guild
func (s *Settings) MuteChannels(guildID string) MuteChannels {
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.muteConfig[guildID]
	if !ok || mc == nil {
		return MuteChannels{}
	}
	return MuteChannels{
		Appeal:  append([]string(nil), mc.Appeal...),
		Tickets: append([]string(nil), mc.Tickets...),
	}
}
