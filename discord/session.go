// Package discord adapts a discordgo session to the scanner and punish packages.
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/retry"
	"go.uber.org/zap"
)

var ErrMissingToken = errors.New("discord token is not set")

// Intents - Gateway events the bot needs
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsMessageContent

// NewSession - Create a session without connecting
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = Intents
	s.State.MaxMessageCount = 0
	return s, nil
}

// Open - Connect the session, retrying transient gateway failures
func Open(ctx context.Context, s *discordgo.Session, logger *zap.Logger) error {
	attempt := 0
	return retry.Do(ctx, func() error {
		attempt++
		err := s.Open()
		if err == nil {
			return nil
		}
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == 401 {
			return retry.Permanent(fmt.Errorf("invalid token: %w", err))
		}
		logger.Warn("Failed to open gateway", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, retry.GatewayOptions())
}
