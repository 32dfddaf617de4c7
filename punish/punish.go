// Package punish applies and lifts mutes, both manual and triggered by
// autopunish rules, and keeps every timed sanction in the store until it is lifted.
package punish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cufee/botto-moderator/config"
	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/duration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrAlreadyMuted    = errors.New("member is already muted")
	ErrNotMuted        = errors.New("member is not muted")
	ErrApplyFailed     = errors.New("could not apply the mute")
	ErrInvalidDuration = fmt.Errorf("mute duration: %w", duration.ErrInvalid)
)

// AutoModeratorID - Moderator recorded for sanctions applied by rules
const AutoModeratorID = "autopunish"

// Lift reasons
const (
	ReasonAutoExpired  = "Auto-mute duration expired"
	ReasonTimedExpired = "Timed mute expired"
)

// Outcome messages returned to the moderator who issued the warning
const (
	MessageApplyFailed = "Attempted auto-mute but lacked permissions."
	messageApplied     = "Auto-mute applied for **%s**."
	messageOutlasted   = "Already muted for longer, auto-mute for **%s** skipped."
)

// Sanction - A way of muting a member on the platform
type Sanction interface {
	Strategy() string
	// Apply mutes the member for d, or indefinitely when d is zero. The returned
	// role id is empty for strategies that do not use a role.
	Apply(ctx context.Context, guildID, userID string, d time.Duration, reason string) (string, error)
	// Holds reports whether the member is still under the sanction described
	// by entry. Returns ErrMemberNotFound when the member left the guild.
	Holds(ctx context.Context, entry database.MuteEntry) (bool, error)
	Lift(ctx context.Context, entry database.MuteEntry, reason string) error
}

// EventKind - Type of moderation event written to the audit log
type EventKind string

const (
	EventMute       EventKind = "mute"
	EventAutoMute   EventKind = "auto_mute"
	EventUnmute     EventKind = "unmute"
	EventAutoUnmute EventKind = "auto_unmute"
	EventWarn       EventKind = "warn"
	EventClearWarns EventKind = "clear_warns"
)

// Event - A moderation action to record
type Event struct {
	Kind        EventKind
	GuildID     string
	UserID      string
	ModeratorID string
	Reason      string
	Duration    string // Empty for indefinite mutes and unmutes
	CaseID      string
}

// Auditor - Receives moderation events. Implementations must not block for long.
type Auditor interface {
	Record(ctx context.Context, event Event)
}

// Status - Result of evaluating autopunish rules
type Status int

const (
	NoAction Status = iota
	Applied
	Failed
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	default:
		return "no_action"
	}
}

// Outcome - What Evaluate did and the message to show the moderator
type Outcome struct {
	Status  Status
	Rule    database.AutopunishRule
	Message string
}

// Engine - Applies and lifts sanctions
type Engine struct {
	warns         *database.Warns
	mutes         *database.Mutes
	sanction      Sanction
	auditor       Auditor
	defaultReason string
	logger        *zap.Logger
	now           func() time.Time
}

// NewEngine - Create a punishment engine
func NewEngine(cfg config.Punish, warns *database.Warns, mutes *database.Mutes, sanction Sanction, auditor Auditor, logger *zap.Logger) *Engine {
	reason := cfg.DefaultReason
	if reason == "" {
		reason = config.DefaultAutopunishReason
	}
	return &Engine{
		warns:         warns,
		mutes:         mutes,
		sanction:      sanction,
		auditor:       auditor,
		defaultReason: reason,
		logger:        logger.Named("punish"),
		now:           time.Now,
	}
}

// Evaluate - Apply the rule whose threshold equals warnings exactly, if any
func (e *Engine) Evaluate(ctx context.Context, guildID, userID string, warnings int) Outcome {
	logger := e.logger.With(zap.String("guild_id", guildID), zap.String("user_id", userID))

	rule, ok := e.warns.RuleFor(guildID, warnings)
	if !ok {
		return Outcome{Status: NoAction}
	}

	d, err := duration.Parse(rule.Duration)
	if err != nil || d == 0 {
		logger.Warn("Autopunish rule has an unusable duration", zap.Int("warnings", rule.Warnings), zap.String("duration", rule.Duration))
		return Outcome{Status: NoAction, Rule: rule}
	}

	template := rule.Reason
	if template == "" {
		template = e.defaultReason
	}
	reason := strings.Replace(template, "{duration}", rule.Duration, 1)

	expires := e.now().Add(d).UnixMilli()
	if existing, ok := e.mutes.Get(guildID, userID); ok && outlasts(existing, expires) {
		logger.Info("Member is already muted for longer, skipping auto-mute",
			zap.String("duration", rule.Duration), zap.String("case_id", existing.CaseID))
		return Outcome{Status: NoAction, Rule: rule, Message: fmt.Sprintf(messageOutlasted, rule.Duration)}
	}

	roleID, err := e.sanction.Apply(ctx, guildID, userID, d, reason)
	if err != nil {
		logger.Warn("Failed to apply auto-mute", zap.Error(err))
		return Outcome{Status: Failed, Rule: rule, Message: MessageApplyFailed}
	}

	entry := database.MuteEntry{
		GuildID:     guildID,
		UserID:      userID,
		RoleID:      roleID,
		Expires:     expires,
		Reason:      reason,
		ModeratorID: AutoModeratorID,
		CaseID:      uuid.NewString(),
		Strategy:    e.sanction.Strategy(),
		Automatic:   true,
	}
	if err := e.mutes.Add(entry); err != nil {
		// The sanction is in place; the sweep will not see it after a restart
		logger.Error("Failed to persist auto-mute", zap.Error(err))
	}

	e.auditor.Record(ctx, Event{
		Kind:        EventAutoMute,
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: AutoModeratorID,
		Reason:      reason,
		Duration:    rule.Duration,
		CaseID:      entry.CaseID,
	})
	logger.Info("Auto-mute applied", zap.String("duration", rule.Duration), zap.String("case_id", entry.CaseID))

	return Outcome{Status: Applied, Rule: rule, Message: fmt.Sprintf(messageApplied, rule.Duration)}
}

// outlasts reports whether an existing mute ends no earlier than expires.
// Indefinite mutes outlast everything.
func outlasts(existing database.MuteEntry, expires int64) bool {
	return existing.Expires == 0 || existing.Expires >= expires
}

// MuteRequest - A moderator's request to mute a member
type MuteRequest struct {
	GuildID     string
	UserID      string
	ModeratorID string
	Duration    string // Empty for an indefinite mute
	Reason      string
}

// Mute - Apply a manual mute. Invalid durations and members that are already
// muted are rejected before anything changes.
func (e *Engine) Mute(ctx context.Context, req MuteRequest) (database.MuteEntry, error) {
	var d time.Duration
	if req.Duration != "" {
		parsed, err := duration.Parse(req.Duration)
		if err != nil || parsed == 0 {
			return database.MuteEntry{}, ErrInvalidDuration
		}
		d = parsed
	}

	if _, ok := e.mutes.Get(req.GuildID, req.UserID); ok {
		return database.MuteEntry{}, ErrAlreadyMuted
	}

	roleID, err := e.sanction.Apply(ctx, req.GuildID, req.UserID, d, req.Reason)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return database.MuteEntry{}, ErrMemberNotFound
		}
		return database.MuteEntry{}, fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}

	entry := database.MuteEntry{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		RoleID:      roleID,
		Reason:      req.Reason,
		ModeratorID: req.ModeratorID,
		CaseID:      uuid.NewString(),
		Strategy:    e.sanction.Strategy(),
	}
	if d > 0 {
		entry.Expires = e.now().Add(d).UnixMilli()
	}
	if err := e.mutes.Add(entry); err != nil {
		e.logger.Error("Failed to persist mute", zap.String("guild_id", req.GuildID), zap.String("user_id", req.UserID), zap.Error(err))
	}

	e.auditor.Record(ctx, Event{
		Kind:        EventMute,
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Reason:      req.Reason,
		Duration:    req.Duration,
		CaseID:      entry.CaseID,
	})
	return entry, nil
}

// Unmute - Lift a mute early
func (e *Engine) Unmute(ctx context.Context, guildID, userID, moderatorID, reason string) error {
	entry, recorded := e.mutes.Get(guildID, userID)
	if !recorded {
		entry = database.MuteEntry{GuildID: guildID, UserID: userID, Strategy: e.sanction.Strategy()}
	}

	held, err := e.sanction.Holds(ctx, entry)
	if err != nil {
		return err
	}
	if !held {
		if recorded {
			e.forget(guildID, userID)
		}
		return ErrNotMuted
	}

	if err := e.sanction.Lift(ctx, entry, reason); err != nil {
		return fmt.Errorf("failed to lift mute: %w", err)
	}
	e.forget(guildID, userID)

	e.auditor.Record(ctx, Event{
		Kind:        EventUnmute,
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		CaseID:      entry.CaseID,
	})
	return nil
}

func (e *Engine) forget(guildID, userID string) {
	if _, err := e.mutes.Remove(guildID, userID); err != nil {
		e.logger.Error("Failed to remove mute entry", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
}
