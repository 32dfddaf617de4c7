package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/discord"
	"go.uber.org/zap"
)

const commandTimeout = 2 * time.Minute

// Register - Attach all handlers to the session
func (b *Bot) Register(s *discordgo.Session) {
	s.AddHandler(b.Ready)
	s.AddHandler(b.GuildCreate)
	s.AddHandler(b.MessageCreate)
	s.AddHandler(b.InteractionCreate)
}

// Ready - Log the connection and register slash commands
func (b *Bot) Ready(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("Connected", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	if !b.cfg.RegisterCommands {
		return
	}
	cmds, err := s.ApplicationCommandBulkOverwrite(r.User.ID, "", Commands())
	if err != nil {
		b.logger.Error("Failed to register commands", zap.Error(err))
		return
	}
	b.logger.Info("Registered commands", zap.Int("count", len(cmds)))
}

// GuildCreate - Make sure every joined guild has a message record
func (b *Bot) GuildCreate(s *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	if err := b.messages.Ensure(e.ID); err != nil {
		b.logger.Error("Failed to create message record", zap.String("guild_id", e.ID), zap.Error(err))
	}
}

// MessageCreate - Count live messages and run prefix commands
func (b *Bot) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID == "" || m.Author == nil {
		return
	}

	if _, _, err := b.scan.ObserveLive(m.GuildID, discord.ToMessage(m.Message)); err != nil {
		b.logger.Warn("Failed to count message", zap.String("guild_id", m.GuildID), zap.Error(err))
	}

	if m.Author.Bot || b.cfg.Prefix == "" || !strings.HasPrefix(m.Content, b.cfg.Prefix) {
		return
	}
	if err := b.router.FindAndExecute(s, b.cfg.Prefix, s.State.User.ID, m.Message); err != nil {
		b.logger.Debug("Prefix command not handled", zap.String("content", m.Content), zap.Error(err))
	}
}

// InteractionCreate - Dispatch slash commands
func (b *Bot) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return
	}
	data := i.ApplicationCommandData()
	logger := b.logger.With(zap.String("command", data.Name), zap.String("guild_id", i.GuildID), zap.String("user_id", i.Member.User.ID))

	if err := deferReply(s, i); err != nil {
		logger.Warn("Failed to acknowledge interaction", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	reply := b.handleCommand(ctx, i.GuildID, i.Member.User.ID, data)
	if err := editReply(s, i, reply); err != nil {
		logger.Warn("Failed to send reply", zap.Error(err))
	}
}
