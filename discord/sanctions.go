package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/config"
	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/punish"
	"go.uber.org/zap"
)

// MaxTimeout - Longest timeout the platform accepts
const MaxTimeout = 28 * 24 * time.Hour

// timeoutSlack - How much earlier than the recorded expiry a timeout may end
// and still be the one the entry describes
const timeoutSlack = time.Minute

// mutedRoleColor - Grey used for the generated muted role
const mutedRoleColor = 0x555555

// mutedDeny - Permissions taken away from the muted role in every channel
const mutedDeny = discordgo.PermissionSendMessages |
	discordgo.PermissionAddReactions |
	discordgo.PermissionVoiceSpeak |
	discordgo.PermissionVoiceConnect |
	discordgo.PermissionSendMessagesInThreads |
	discordgo.PermissionCreatePublicThreads |
	discordgo.PermissionCreatePrivateThreads

// mutedAllow - Permissions kept in appeal and ticket channels
const mutedAllow = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages

var ErrUnsupportedDuration = errors.New("duration is not supported by native timeouts")

// memberAPI - Subset of the session used to mute members
type memberAPI interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
}

// isNotFound - True for errors meaning the member is no longer in the guild
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func memberError(err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %v", punish.ErrMemberNotFound, err)
	}
	return err
}

// NewSanction - Sanction for the configured strategy
func NewSanction(api memberAPI, settings *database.Settings, cfg config.Punish, logger *zap.Logger) punish.Sanction {
	if cfg.Strategy == config.StrategyTimeout {
		return NewTimeoutSanction(api)
	}
	return NewRoleSanction(api, settings, cfg.MutedRoleName, logger)
}

// RoleSanction - Mutes by granting a role that is denied speaking everywhere
type RoleSanction struct {
	api      memberAPI
	settings *database.Settings
	roleName string
	logger   *zap.Logger

	mu    sync.Mutex
	roles map[string]string // guild id to muted role id
}

// NewRoleSanction - Create a role sanction using roleName
func NewRoleSanction(api memberAPI, settings *database.Settings, roleName string, logger *zap.Logger) *RoleSanction {
	return &RoleSanction{
		api:      api,
		settings: settings,
		roleName: roleName,
		logger:   logger.Named("role_sanction"),
		roles:    make(map[string]string),
	}
}

// Strategy - config.StrategyRole
func (r *RoleSanction) Strategy() string {
	return config.StrategyRole
}

// MutedRole - Find or create the muted role for a guild
func (r *RoleSanction) MutedRole(guildID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.roles[guildID]; ok {
		return id, nil
	}

	roles, err := r.api.GuildRoles(guildID)
	if err != nil {
		return "", fmt.Errorf("failed to list roles: %w", err)
	}
	for _, role := range roles {
		if role.Name == r.roleName {
			r.roles[guildID] = role.ID
			return role.ID, nil
		}
	}

	color := mutedRoleColor
	perms := int64(0)
	role, err := r.api.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        r.roleName,
		Color:       &color,
		Permissions: &perms,
	}, discordgo.WithAuditLogReason("Muted role for moderation"))
	if err != nil {
		return "", fmt.Errorf("failed to create muted role: %w", err)
	}
	r.roles[guildID] = role.ID
	r.applyOverwrites(guildID, role.ID)

	return role.ID, nil
}

// applyOverwrites - Deny the muted role in every channel except appeal and ticket channels
func (r *RoleSanction) applyOverwrites(guildID, roleID string) {
	channels, err := r.api.GuildChannels(guildID)
	if err != nil {
		r.logger.Warn("Failed to list channels for muted role", zap.String("guild_id", guildID), zap.Error(err))
		return
	}

	mc := r.settings.MuteChannels(guildID)
	for _, c := range channels {
		var allow, deny int64 = 0, mutedDeny
		if slices.Contains(mc.Appeal, c.ID) || slices.Contains(mc.Tickets, c.ID) {
			allow, deny = mutedAllow, 0
		}
		err := r.api.ChannelPermissionSet(c.ID, roleID, discordgo.PermissionOverwriteTypeRole, allow, deny)
		if err != nil {
			r.logger.Debug("Failed to set muted role overwrite", zap.String("channel_id", c.ID), zap.Error(err))
		}
	}
}

// RefreshOverwrites - Reapply the muted role's channel overwrites, after the
// appeal or ticket channels change
func (r *RoleSanction) RefreshOverwrites(guildID string) error {
	roleID, err := r.MutedRole(guildID)
	if err != nil {
		return err
	}
	r.applyOverwrites(guildID, roleID)
	return nil
}

// Apply - Grant the muted role. Expiry is left to the sweep.
func (r *RoleSanction) Apply(ctx context.Context, guildID, userID string, _ time.Duration, reason string) (string, error) {
	roleID, err := r.MutedRole(guildID)
	if err != nil {
		return "", err
	}
	err = r.api.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return "", memberError(err)
	}
	return roleID, nil
}

func (r *RoleSanction) roleFor(entry database.MuteEntry) (string, error) {
	if entry.RoleID != "" {
		return entry.RoleID, nil
	}
	return r.MutedRole(entry.GuildID)
}

// Holds - True while the member still has the muted role
func (r *RoleSanction) Holds(ctx context.Context, entry database.MuteEntry) (bool, error) {
	roleID, err := r.roleFor(entry)
	if err != nil {
		return false, err
	}
	member, err := r.api.GuildMember(entry.GuildID, entry.UserID, discordgo.WithContext(ctx))
	if err != nil {
		return false, memberError(err)
	}
	return slices.Contains(member.Roles, roleID), nil
}

// Lift - Remove the muted role
func (r *RoleSanction) Lift(ctx context.Context, entry database.MuteEntry, reason string) error {
	roleID, err := r.roleFor(entry)
	if err != nil {
		return err
	}
	err = r.api.GuildMemberRoleRemove(entry.GuildID, entry.UserID, roleID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return memberError(err)
}

// TimeoutSanction - Mutes with the platform's native member timeout
type TimeoutSanction struct {
	api memberAPI
	now func() time.Time
}

// NewTimeoutSanction - Create a timeout sanction
func NewTimeoutSanction(api memberAPI) *TimeoutSanction {
	return &TimeoutSanction{api: api, now: time.Now}
}

// Strategy - config.StrategyTimeout
func (t *TimeoutSanction) Strategy() string {
	return config.StrategyTimeout
}

// Apply - Time the member out for d. Indefinite and over-long timeouts are rejected.
func (t *TimeoutSanction) Apply(ctx context.Context, guildID, userID string, d time.Duration, reason string) (string, error) {
	if d <= 0 || d > MaxTimeout {
		return "", ErrUnsupportedDuration
	}
	until := t.now().Add(d)
	err := t.api.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return "", memberError(err)
	}
	return "", nil
}

// Holds - True while the member's timeout has not run out, or when it ran out
// at the entry's recorded expiry. Discord ends timeouts on its own, so a
// timeout that lasted its full length still has to be lifted and logged. A
// timeout cleared or cut short by hand does not hold.
func (t *TimeoutSanction) Holds(ctx context.Context, entry database.MuteEntry) (bool, error) {
	member, err := t.api.GuildMember(entry.GuildID, entry.UserID, discordgo.WithContext(ctx))
	if err != nil {
		return false, memberError(err)
	}
	until := member.CommunicationDisabledUntil
	if until == nil {
		return false, nil
	}
	if until.After(t.now()) {
		return true, nil
	}
	expires := entry.ExpiresAt()
	return !expires.IsZero() && !until.Before(expires.Add(-timeoutSlack)), nil
}

// Lift - Clear the timeout
func (t *TimeoutSanction) Lift(ctx context.Context, entry database.MuteEntry, reason string) error {
	err := t.api.GuildMemberTimeout(entry.GuildID, entry.UserID, nil, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return memberError(err)
}
