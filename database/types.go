package database

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// LiveCount - Message counter for a guild
type LiveCount struct {
	Count   int64 `json:"count"`
	Scanned bool  `json:"scanned"`
}

// ChannelCheckpoint - How far the history scan got in one channel
type ChannelCheckpoint struct {
	Done bool `json:"done"`
	// Oldest message already processed, nil to start from the newest
	LastMessageID *string `json:"lastMessageId"`
}

// ScanProgress - Per-channel scan state for a guild
type ScanProgress struct {
	Channels map[string]*ChannelCheckpoint `json:"channels"`
	Complete bool                          `json:"complete"`
}

// GuildMessageRecord - DB record for a guild's message count and scan state
type GuildMessageRecord struct {
	Live     *LiveCount    `json:"live,omitempty"`
	Progress *ScanProgress `json:"progress,omitempty"`

	// Flat fields written by older versions, folded into Live on load
	LegacyCount   *int64      `json:"count,omitempty"`
	LegacyScanned *legacyFlag `json:"scanned,omitempty"`
}

// legacyFlag - Older files stored scanned as either a bool or a number
type legacyFlag bool

func (f *legacyFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*f = true
		return nil
	case "false", "null":
		*f = false
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = n != 0
	return nil
}

func (f legacyFlag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

// NewScanProgress - Empty progress with no known channels
func NewScanProgress() *ScanProgress {
	return &ScanProgress{Channels: make(map[string]*ChannelCheckpoint)}
}

// NewGuildMessageRecord - Record for a guild seen for the first time
func NewGuildMessageRecord() *GuildMessageRecord {
	return &GuildMessageRecord{
		Live:     &LiveCount{},
		Progress: NewScanProgress(),
	}
}

// Normalize - Migrate older shapes and repair broken progress in place.
// Returns true if anything changed.
func (r *GuildMessageRecord) Normalize() bool {
	changed := false

	if r.Live == nil {
		r.Live = &LiveCount{}
		if r.LegacyCount != nil && *r.LegacyCount > 0 {
			r.Live.Count = *r.LegacyCount
		}
		if r.LegacyScanned != nil {
			r.Live.Scanned = bool(*r.LegacyScanned)
		}
		changed = true
	}
	if r.LegacyCount != nil || r.LegacyScanned != nil {
		r.LegacyCount = nil
		r.LegacyScanned = nil
		changed = true
	}

	if r.Progress == nil {
		r.Progress = NewScanProgress()
		changed = true
	}
	if r.Progress.Channels == nil {
		r.Progress.Channels = make(map[string]*ChannelCheckpoint)
		changed = true
	}
	for id, cp := range r.Progress.Channels {
		if cp == nil {
			r.Progress.Channels[id] = &ChannelCheckpoint{}
			changed = true
		}
	}

	// complete must agree with the checkpoints; a record claiming completion
	// with pending channels is treated as corrupt and rescanned
	if r.Progress.Complete && !r.Progress.AllDone() {
		r.Progress = NewScanProgress()
		r.Live.Scanned = false
		changed = true
	}
	if r.Progress.Complete && !r.Live.Scanned {
		r.Live.Scanned = true
		changed = true
	}
	// Migrated records that were already scanned have no checkpoints left to do
	if r.Live.Scanned && !r.Progress.Complete && len(r.Progress.Channels) == 0 {
		r.Progress.Complete = true
		changed = true
	}

	return changed
}

// AllDone - True when every known checkpoint is done
func (p *ScanProgress) AllDone() bool {
	for _, cp := range p.Channels {
		if !cp.Done {
			return false
		}
	}
	return true
}

// ChannelsDone - Done and total checkpoint counts
func (r GuildMessageRecord) ChannelsDone() (done, total int) {
	if r.Progress == nil {
		return 0, 0
	}
	for _, cp := range r.Progress.Channels {
		if cp.Done {
			done++
		}
	}
	return done, len(r.Progress.Channels)
}

// Clone - Deep copy safe to hand out of the repository lock
func (r *GuildMessageRecord) Clone() GuildMessageRecord {
	out := GuildMessageRecord{}
	if r.Live != nil {
		live := *r.Live
		out.Live = &live
	}
	if r.Progress != nil {
		p := &ScanProgress{
			Channels: make(map[string]*ChannelCheckpoint, len(r.Progress.Channels)),
			Complete: r.Progress.Complete,
		}
		for id, cp := range r.Progress.Channels {
			c := *cp
			if cp.LastMessageID != nil {
				last := *cp.LastMessageID
				c.LastMessageID = &last
			}
			p.Channels[id] = &c
		}
		out.Progress = p
	}
	return out
}

// AutopunishRule - Automatic mute applied when a user reaches an exact warning count
type AutopunishRule struct {
	Warnings int    `json:"warnings"`
	Duration string `json:"duration"`
	// May contain {duration}, replaced with Duration when the rule fires
	Reason string `json:"reason,omitempty"`
}

// GuildWarnings - Warning counts and autopunish rules for a guild
type GuildWarnings struct {
	Warnings   map[string]int   `json:"warnings"`
	Autopunish []AutopunishRule `json:"autopunish"`
}

// MuteChannels - Channels muted users may still write in
type MuteChannels struct {
	Appeal  []string `json:"appeal"`
	Tickets []string `json:"tickets"`
}

// MuteEntry - An active timed or indefinite sanction
type MuteEntry struct {
	GuildID     string `json:"-"` // Filled from the document keys
	UserID      string `json:"-"`
	RoleID      string `json:"roleId,omitempty"`
	Expires     int64  `json:"expires,omitempty"` // Unix milliseconds, 0 for no expiry
	Reason      string `json:"reason"`
	ModeratorID string `json:"moderatorId"`
	CaseID      string `json:"caseId,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
	Automatic   bool   `json:"automatic,omitempty"`
}

// ExpiresAt - Expiry as a time, zero when the entry never expires
func (m MuteEntry) ExpiresAt() time.Time {
	if m.Expires == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Expires)
}

// Expired - True once now has reached the expiry
func (m MuteEntry) Expired(now time.Time) bool {
	return m.Expires != 0 && now.UnixMilli() >= m.Expires
}
