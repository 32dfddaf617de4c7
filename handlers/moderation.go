package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/punish"
	"github.com/cufee/botto-moderator/scanner"
	"github.com/dustin/go-humanize/english"
	"go.uber.org/zap"
)

const (
	replyUnknownCommand = "Unknown command."
	replyNotInGuild     = "That member is not in this server."
	replyOwnerOnly      = "Only the bot owner can rescan every server."
	replySaveFailed     = "Failed to save the change, try again later."
)

func mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

func invalidInput(err error) string {
	return fmt.Sprintf("Could not run that command: %v.", err)
}

// handleCommand - Run a slash command and return the reply text
func (b *Bot) handleCommand(ctx context.Context, guildID, moderatorID string, data discordgo.ApplicationCommandInteractionData) string {
	if len(data.Options) == 0 {
		return replyUnknownCommand
	}
	sub := data.Options[0]

	switch data.Name {
	case cmdMessages:
		switch sub.Name {
		case subStatus:
			return statusReply(b.scan.Status(guildID))
		case subCount, subUsers:
			args, err := parseWindowArgs(sub.Options)
			if err != nil {
				return invalidInput(err)
			}
			return b.window(ctx, sub.Name, args)
		}
		return replyUnknownCommand

	case cmdModerator:
		if sub.Type == discordgo.ApplicationCommandOptionSubCommandGroup {
			if sub.Name != groupAutopunish || len(sub.Options) == 0 {
				return replyUnknownCommand
			}
			return b.autopunish(guildID, sub.Options[0])
		}
		return b.moderate(ctx, guildID, moderatorID, sub)
	}
	return replyUnknownCommand
}

func (b *Bot) moderate(ctx context.Context, guildID, moderatorID string, sub *discordgo.ApplicationCommandInteractionDataOption) string {
	switch sub.Name {
	case subWarn:
		args, err := parseWarnArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		return b.warn(ctx, guildID, moderatorID, args)

	case subWarnings:
		args, err := parseUserArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		n := b.warns.Warnings(guildID, args.UserID)
		return fmt.Sprintf("%s has **%s**.", mention(args.UserID), warningCount(n))

	case subClearWarns:
		args, err := parseUserArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		return b.clearWarns(ctx, guildID, moderatorID, args)

	case subMute:
		args, err := parseMuteArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		return b.mute(ctx, guildID, moderatorID, args)

	case subUnmute:
		args, err := parseUnmuteArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		return b.unmute(ctx, guildID, moderatorID, args)

	case subSetLog:
		args, err := parseSetLogArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		return b.setLog(guildID, args)

	case subSetupMute:
		args, err := parseSetupMuteArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		return b.setupMute(guildID, args)

	case subRescan:
		args, err := parseRescanArgs(sub.Options)
		if err != nil {
			return invalidInput(err)
		}
		return b.rescan(guildID, moderatorID, args)
	}
	return replyUnknownCommand
}

func (b *Bot) window(ctx context.Context, sub string, args WindowArgs) string {
	w, err := b.scan.CountWindow(ctx, args.ChannelID, time.Now().Add(-args.Span))
	switch {
	case errors.Is(err, scanner.ErrNoAccess):
		return fmt.Sprintf("I can't read the message history of <#%s>.", args.ChannelID)
	case err != nil:
		b.logger.Warn("Failed to count messages", zap.String("channel_id", args.ChannelID), zap.Error(err))
		return "Failed to count messages, try again later."
	}
	if sub == subUsers {
		return usersReply(args, w)
	}
	return countReply(args, w)
}

func (b *Bot) warn(ctx context.Context, guildID, moderatorID string, args WarnArgs) string {
	count, err := b.warns.AddWarning(guildID, args.UserID)
	if err != nil {
		b.logger.Error("Failed to save warning", zap.String("guild_id", guildID), zap.String("user_id", args.UserID), zap.Error(err))
		return replySaveFailed
	}

	b.auditor.Record(ctx, punish.Event{
		Kind:        punish.EventWarn,
		GuildID:     guildID,
		UserID:      args.UserID,
		ModeratorID: moderatorID,
		Reason:      args.Reason,
	})

	reply := fmt.Sprintf("Warned %s. They now have **%s**.", mention(args.UserID), warningCount(count))
	outcome := b.punisher.Evaluate(ctx, guildID, args.UserID, count)
	if outcome.Message != "" {
		reply += "\n" + outcome.Message
	}
	return reply
}

func (b *Bot) clearWarns(ctx context.Context, guildID, moderatorID string, args UserArgs) string {
	cleared, err := b.warns.ClearWarnings(guildID, args.UserID)
	if err != nil {
		b.logger.Error("Failed to clear warnings", zap.String("guild_id", guildID), zap.String("user_id", args.UserID), zap.Error(err))
		return replySaveFailed
	}
	if cleared == 0 {
		return fmt.Sprintf("%s has no warnings.", mention(args.UserID))
	}

	b.auditor.Record(ctx, punish.Event{
		Kind:        punish.EventClearWarns,
		GuildID:     guildID,
		UserID:      args.UserID,
		ModeratorID: moderatorID,
		Reason:      fmt.Sprintf("Cleared %s", warningCount(cleared)),
	})
	return fmt.Sprintf("Cleared **%s** for %s.", warningCount(cleared), mention(args.UserID))
}

func (b *Bot) mute(ctx context.Context, guildID, moderatorID string, args MuteArgs) string {
	entry, err := b.punisher.Mute(ctx, punish.MuteRequest{
		GuildID:     guildID,
		UserID:      args.UserID,
		ModeratorID: moderatorID,
		Duration:    args.Duration,
		Reason:      args.Reason,
	})
	switch {
	case errors.Is(err, punish.ErrAlreadyMuted):
		return fmt.Sprintf("%s is already muted.", mention(args.UserID))
	case errors.Is(err, punish.ErrMemberNotFound):
		return replyNotInGuild
	case errors.Is(err, punish.ErrInvalidDuration):
		return invalidInput(ErrInvalidDuration)
	case err != nil:
		b.logger.Warn("Failed to mute", zap.String("guild_id", guildID), zap.String("user_id", args.UserID), zap.Error(err))
		return fmt.Sprintf("Failed to mute %s. Check that I have permission to manage their roles.", mention(args.UserID))
	}

	if args.Duration == "" {
		return fmt.Sprintf("Muted %s until unmuted. Case `%s`", mention(args.UserID), entry.CaseID)
	}
	return fmt.Sprintf("Muted %s for **%s**. Case `%s`", mention(args.UserID), args.Duration, entry.CaseID)
}

func (b *Bot) unmute(ctx context.Context, guildID, moderatorID string, args UnmuteArgs) string {
	err := b.punisher.Unmute(ctx, guildID, args.UserID, moderatorID, args.Reason)
	switch {
	case errors.Is(err, punish.ErrNotMuted):
		return fmt.Sprintf("%s is not muted.", mention(args.UserID))
	case errors.Is(err, punish.ErrMemberNotFound):
		return replyNotInGuild
	case err != nil:
		b.logger.Warn("Failed to unmute", zap.String("guild_id", guildID), zap.String("user_id", args.UserID), zap.Error(err))
		return fmt.Sprintf("Failed to unmute %s.", mention(args.UserID))
	}
	return fmt.Sprintf("Unmuted %s.", mention(args.UserID))
}

func (b *Bot) rescan(guildID, moderatorID string, args RescanArgs) string {
	if args.All {
		if b.cfg.OwnerID == "" || moderatorID != b.cfg.OwnerID {
			return replyOwnerOnly
		}
		n, err := b.scan.RescanAll()
		if err != nil {
			b.logger.Error("Failed to reset scan progress", zap.Error(err))
			return replySaveFailed
		}
		return fmt.Sprintf("Rescanning **%s**. Counts restart at 0 and fill in as the scan runs.", english.Plural(n, "server", ""))
	}

	if err := b.scan.Rescan(guildID); err != nil {
		b.logger.Error("Failed to reset scan progress", zap.String("guild_id", guildID), zap.Error(err))
		return replySaveFailed
	}
	return "Message history will be scanned again. The count restarts at 0 and fills in as the scan runs."
}
