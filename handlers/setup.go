package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/database"
	"github.com/dustin/go-humanize/english"
	"go.uber.org/zap"
)

// setLog - Point moderation events at a channel
func (b *Bot) setLog(guildID string, args SetLogArgs) string {
	if err := b.settings.SetLogChannel(guildID, args.ChannelID); err != nil {
		b.logger.Error("Failed to save log channel", zap.String("guild_id", guildID), zap.Error(err))
		return replySaveFailed
	}
	return fmt.Sprintf("Moderation events will be logged in <#%s>.", args.ChannelID)
}

// setupMute - Set the channels muted members keep access to and refresh the
// muted role's overwrites
func (b *Bot) setupMute(guildID string, args SetupMuteArgs) string {
	if args.AppealChannelID == "" && args.TicketChannelID == "" {
		return "Pick an appeal channel, a ticket channel or both."
	}

	var allowed []string
	if args.AppealChannelID != "" {
		if err := b.settings.SetAppealChannels(guildID, []string{args.AppealChannelID}); err != nil {
			b.logger.Error("Failed to save appeal channel", zap.String("guild_id", guildID), zap.Error(err))
			return replySaveFailed
		}
		allowed = append(allowed, fmt.Sprintf("<#%s>", args.AppealChannelID))
	}
	if args.TicketChannelID != "" {
		if err := b.settings.SetTicketChannels(guildID, []string{args.TicketChannelID}); err != nil {
			b.logger.Error("Failed to save ticket channel", zap.String("guild_id", guildID), zap.Error(err))
			return replySaveFailed
		}
		allowed = append(allowed, fmt.Sprintf("<#%s>", args.TicketChannelID))
	}

	reply := fmt.Sprintf("Muted members can still use %s.", strings.Join(allowed, " and "))
	if b.overwrites != nil {
		if err := b.overwrites.RefreshOverwrites(guildID); err != nil {
			b.logger.Warn("Failed to refresh muted role overwrites", zap.String("guild_id", guildID), zap.Error(err))
			reply += "\nI could not update channel permissions for the muted role, check my permissions."
		}
	}
	return reply
}

// autopunish - /moderator autopunish subcommands
func (b *Bot) autopunish(guildID string, sub *discordgo.ApplicationCommandInteractionDataOption) string {
	switch sub.Name {
	case subRuleAdd:
		args, err := parseRuleArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		rule := database.AutopunishRule{Warnings: args.Warnings, Duration: args.Duration, Reason: args.Reason}
		if err := b.warns.AddRule(guildID, rule); err != nil {
			if errors.Is(err, database.ErrInvalidThreshold) || errors.Is(err, database.ErrInvalidDuration) {
				return invalidInput(err)
			}
			b.logger.Error("Failed to save autopunish rule", zap.String("guild_id", guildID), zap.Error(err))
			return replySaveFailed
		}
		return fmt.Sprintf("Members reaching **%s** will be muted for **%s**.", warningCount(args.Warnings), args.Duration)

	case subRuleRemove:
		args, err := parseRuleRemoveArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		removed, err := b.warns.RemoveRule(guildID, args.Warnings)
		if err != nil {
			b.logger.Error("Failed to remove autopunish rule", zap.String("guild_id", guildID), zap.Error(err))
			return replySaveFailed
		}
		if !removed {
			return fmt.Sprintf("There is no rule for **%s**.", warningCount(args.Warnings))
		}
		return fmt.Sprintf("Removed the rule for **%s**.", warningCount(args.Warnings))

	case subRuleList:
		return rulesReply(b.warns.Rules(guildID))

	case subRuleClear:
		cleared, err := b.warns.ClearRules(guildID)
		if err != nil {
			b.logger.Error("Failed to clear autopunish rules", zap.String("guild_id", guildID), zap.Error(err))
			return replySaveFailed
		}
		if cleared == 0 {
			return replyNoRules
		}
		return fmt.Sprintf("Removed %d autopunish %s.", cleared, english.PluralWord(cleared, "rule", ""))
	}
	return replyUnknownCommand
}
