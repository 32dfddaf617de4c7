package scanner

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNoAccess - The bot may not read a channel's history. Sources wrap it so
// the engine can stop scanning the channel instead of retrying forever.
var ErrNoAccess = errors.New("no access to channel history")

// Message - The parts of a chat message the scan needs
type Message struct {
	ID                string
	AuthorID          string
	AuthorIsAutomated bool
	IsWebhook         bool
	Regular           bool // Ordinary user content, not a join/pin/system message
	Timestamp         time.Time
}

// Human - Messages that count towards a guild's total
func (m Message) Human() bool {
	return !m.AuthorIsAutomated && !m.IsWebhook && m.Regular
}

// MessageSource - Paged access to channel history
type MessageSource interface {
	// FetchPage returns up to limit messages strictly older than beforeID,
	// newest first. An empty beforeID starts from the newest message.
	FetchPage(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error)
}

// GuildDirectory - Guilds the bot is in and their text channels
type GuildDirectory interface {
	Guilds() []string
	// TextChannels returns false when the guild is not currently available
	TextChannels(guildID string) ([]string, bool)
}

// lessID orders snowflake ids numerically without parsing them
func lessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
}
