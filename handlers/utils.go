package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/scanner"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"go.uber.org/zap"
)

const (
	replyNoRules   = "No autopunish rules are set."
	maxRankedUsers = 25
)

func warningCount(n int) string {
	return english.Plural(n, "warning", "")
}

// statusReply - Message count and scan progress for a guild
func statusReply(st scanner.Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "This server has **%s** %s.", humanize.Comma(st.Count), english.PluralWord(int(st.Count), "message", ""))
	switch {
	case st.Scanned:
		sb.WriteString("\nHistory scan complete.")
	case st.ChannelsTotal == 0:
		sb.WriteString("\nHistory scan has not started yet, only new messages are counted so far.")
	default:
		fmt.Fprintf(&sb, "\nHistory scan in progress: %d of %d channels done.", st.ChannelsDone, st.ChannelsTotal)
	}
	return sb.String()
}

// countReply - Messages in a channel over a period
func countReply(args WindowArgs, w scanner.Window) string {
	return fmt.Sprintf("**%s %s** in <#%s> over **%s**.", humanize.Comma(int64(w.Total)), english.PluralWord(w.Total, "message", ""), args.ChannelID, args.Period)
}

// usersReply - Most active members of a channel over a period
func usersReply(args WindowArgs, w scanner.Window) string {
	ranking := w.Ranking()
	if len(ranking) == 0 {
		return fmt.Sprintf("No messages in <#%s> over **%s**.", args.ChannelID, args.Period)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Users active in <#%s> over **%s**:", args.ChannelID, args.Period)
	for i, a := range ranking {
		if i == maxRankedUsers {
			rest := len(ranking) - i
			fmt.Fprintf(&sb, "\n…and %d more %s", rest, english.PluralWord(rest, "user", ""))
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s: %s", i+1, mention(a.AuthorID), english.Plural(a.Count, "message", ""))
	}
	return sb.String()
}

// rulesReply - Autopunish rules as a list
func rulesReply(rules []database.AutopunishRule) string {
	if len(rules) == 0 {
		return replyNoRules
	}
	var sb strings.Builder
	sb.WriteString("Autopunish rules:")
	for _, r := range rules {
		fmt.Fprintf(&sb, "\n• **%s**: mute for **%s**", warningCount(r.Warnings), r.Duration)
		if r.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", r.Reason)
		}
	}
	return sb.String()
}

// replyDel - Reply and delete the reply after a delay
func replyDel(ctx *exrouter.Context, msg string, after time.Duration) error {
	newMsg, err := ctx.Reply(msg)
	if err != nil {
		return err
	}
	time.AfterFunc(after, func() {
		ctx.Ses.ChannelMessageDelete(ctx.Msg.ChannelID, newMsg.ID)
	})
	return nil
}

// newRouter - Prefix commands
func (b *Bot) newRouter() *exrouter.Route {
	router := exrouter.New()

	router.On("ping", func(ctx *exrouter.Context) {
		if err := replyDel(ctx, "Pong!", 15*time.Second); err != nil {
			b.logger.Warn("Failed to reply", zap.String("command", "ping"), zap.Error(err))
		}
	})

	router.On("count", func(ctx *exrouter.Context) {
		if _, err := ctx.Reply(statusReply(b.scan.Status(ctx.Msg.GuildID))); err != nil {
			b.logger.Warn("Failed to reply", zap.String("command", "count"), zap.Error(err))
		}
	})

	return router
}

// deferReply - Acknowledge an interaction so the reply can take longer than 3 seconds
func deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// editReply - Fill in a deferred reply
func editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	return err
}
