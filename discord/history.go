package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/config"
	"github.com/cufee/botto-moderator/scanner"
	"golang.org/x/time/rate"
)

// historyAPI - Subset of the session used to read channel history
type historyAPI interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// ToMessage - Reduce a platform message to what the scanner counts
func ToMessage(m *discordgo.Message) scanner.Message {
	return scanner.Message{
		ID:                m.ID,
		AuthorID:          authorID(m),
		AuthorIsAutomated: m.Author != nil && m.Author.Bot,
		IsWebhook:         m.WebhookID != "",
		Regular:           m.Type == discordgo.MessageTypeDefault,
		Timestamp:         m.Timestamp,
	}
}

func authorID(m *discordgo.Message) string {
	if m.Author == nil {
		return ""
	}
	return m.Author.ID
}

// noAccess - True for errors meaning the bot may not read the channel
func noAccess(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}

// Source - Channel history pages, capped at a fixed request rate on top of
// whatever pacing the scanner applies
type Source struct {
	api     historyAPI
	limiter *rate.Limiter
}

// NewSource - Create a history source allowing fetchRate requests per second
func NewSource(api historyAPI, cfg config.Scan) *Source {
	burst := cfg.FetchBurst
	if burst < 1 {
		burst = 1
	}
	return &Source{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.FetchRate), burst),
	}
}

// FetchPage - Fetch up to limit messages older than beforeID
func (s *Source) FetchPage(ctx context.Context, channelID string, limit int, beforeID string) ([]scanner.Message, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msgs, err := s.api.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		if noAccess(err) {
			return nil, fmt.Errorf("%w: %s: %v", scanner.ErrNoAccess, channelID, err)
		}
		return nil, fmt.Errorf("failed to fetch messages for %s: %w", channelID, err)
	}

	page := make([]scanner.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		page = append(page, ToMessage(m))
	}
	return page, nil
}
