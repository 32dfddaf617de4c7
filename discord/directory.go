package discord

import (
	"github.com/bwmarrin/discordgo"
)

// Directory - Guilds and channels from the session state cache
type Directory struct {
	state *discordgo.State
}

// NewDirectory - Read guilds from state
func NewDirectory(state *discordgo.State) *Directory {
	return &Directory{state: state}
}

// IsTextBased - Channels that carry a message history
func IsTextBased(c *discordgo.Channel) bool {
	switch c.Type {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildVoice,
		discordgo.ChannelTypeGuildStageVoice:
		return true
	default:
		return false
	}
}

// Guilds - Ids of every available guild
func (d *Directory) Guilds() []string {
	d.state.RLock()
	defer d.state.RUnlock()

	ids := make([]string, 0, len(d.state.Guilds))
	for _, g := range d.state.Guilds {
		if g.Unavailable {
			continue
		}
		ids = append(ids, g.ID)
	}
	return ids
}

// readHistory - Permissions the scan needs in a channel
const readHistory = discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory

// TextChannels - Text based channels of a guild the bot can read, false while
// the guild is unavailable
func (d *Directory) TextChannels(guildID string) ([]string, bool) {
	ids, botID, ok := d.textChannels(guildID)
	if !ok || botID == "" {
		return ids, ok
	}

	readable := ids[:0]
	for _, id := range ids {
		perms, err := d.state.UserChannelPermissions(botID, id)
		if err != nil {
			// Member not cached yet; a forbidden fetch skips the channel later
			readable = append(readable, id)
			continue
		}
		if perms&readHistory == readHistory {
			readable = append(readable, id)
		}
	}
	return readable, true
}

func (d *Directory) textChannels(guildID string) ([]string, string, bool) {
	d.state.RLock()
	defer d.state.RUnlock()

	botID := ""
	if d.state.User != nil {
		botID = d.state.User.ID
	}

	for _, g := range d.state.Guilds {
		if g.ID != guildID {
			continue
		}
		if g.Unavailable {
			return nil, botID, false
		}
		ids := make([]string, 0, len(g.Channels))
		for _, c := range g.Channels {
			if IsTextBased(c) {
				ids = append(ids, c.ID)
			}
		}
		return ids, botID, true
	}
	return nil, botID, false
}
