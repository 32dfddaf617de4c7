package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/punish"
	"go.uber.org/zap"
)

const (
	colorSanction = 0xff0000
	colorRelease  = 0x00ff00
	colorNotice   = 0xffa500
)

// embedAPI - Subset of the session used to post log embeds
type embedAPI interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// AuditLog - Posts moderation events to each guild's log channel
type AuditLog struct {
	api      embedAPI
	settings *database.Settings
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuditLog - Create an audit log sink
func NewAuditLog(api embedAPI, settings *database.Settings, logger *zap.Logger) *AuditLog {
	return &AuditLog{
		api:      api,
		settings: settings,
		logger:   logger.Named("audit_log"),
		now:      time.Now,
	}
}

func eventTitle(kind punish.EventKind) (string, int) {
	switch kind {
	case punish.EventMute:
		return "Member Muted", colorSanction
	case punish.EventAutoMute:
		return "Member Auto-Muted", colorSanction
	case punish.EventUnmute:
		return "Member Unmuted", colorRelease
	case punish.EventAutoUnmute:
		return "Auto Unmute", colorRelease
	case punish.EventWarn:
		return "Member Warned", colorNotice
	case punish.EventClearWarns:
		return "Warnings Cleared", colorRelease
	default:
		return "Moderation Action", colorNotice
	}
}

func moderatorName(id string) string {
	if id == punish.AutoModeratorID {
		return "Autopunish"
	}
	return fmt.Sprintf("<@%s>", id)
}

// Embed - Log embed for an event
func (a *AuditLog) Embed(e punish.Event) *discordgo.MessageEmbed {
	title, color := eventTitle(e.Kind)

	reason := e.Reason
	if reason == "" {
		reason = "No reason provided"
	}

	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s> (%s)", e.UserID, e.UserID)},
			{Name: "Moderator", Value: moderatorName(e.ModeratorID)},
			{Name: "Reason", Value: reason},
		},
		Timestamp: a.now().Format(time.RFC3339),
	}
	if e.Duration != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Duration", Value: e.Duration})
	}
	if e.CaseID != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Case " + e.CaseID}
	}
	return embed
}

// Record - Send the event to the guild's log channel, if one is set
func (a *AuditLog) Record(ctx context.Context, e punish.Event) {
	channelID, ok := a.settings.LogChannel(e.GuildID)
	if !ok {
		return
	}
	_, err := a.api.ChannelMessageSendEmbed(channelID, a.Embed(e), discordgo.WithContext(ctx))
	if err != nil {
		a.logger.Warn("Failed to send log embed",
			zap.String("guild_id", e.GuildID),
			zap.String("channel_id", channelID),
			zap.String("kind", string(e.Kind)),
			zap.Error(err))
	}
}
