package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-moderator/duration"
)

var (
	ErrMissingOption   = errors.New("missing option")
	ErrInvalidOption   = errors.New("invalid option")
	ErrInvalidDuration = fmt.Errorf("%w: use a number followed by s, m, h or d, like 10m", duration.ErrInvalid)
)

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) user(name string) (string, error) {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionUser {
		return "", fmt.Errorf("%w: %s", ErrMissingOption, name)
	}
	return opt.UserValue(nil).ID, nil
}

func (o options) channel(name string) (string, bool) {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionChannel {
		return "", false
	}
	return opt.ChannelValue(nil).ID, true
}

func (o options) str(name string) string {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return strings.TrimSpace(opt.StringValue())
}

func (o options) integer(name string) (int, bool) {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionInteger {
		return 0, false
	}
	return int(opt.IntValue()), true
}

func (o options) boolean(name string) bool {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionBoolean {
		return false
	}
	return opt.BoolValue()
}

// UserArgs - Commands that only target a member
type UserArgs struct {
	UserID string
}

func parseUserArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (UserArgs, error) {
	userID, err := optionMap(opts).user(optUser)
	return UserArgs{UserID: userID}, err
}

// WarnArgs - /moderator warn
type WarnArgs struct {
	UserID string
	Reason string
}

func parseWarnArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (WarnArgs, error) {
	m := optionMap(opts)
	userID, err := m.user(optUser)
	if err != nil {
		return WarnArgs{}, err
	}
	return WarnArgs{UserID: userID, Reason: m.str(optReason)}, nil
}

// MuteArgs - /moderator mute. An empty Duration mutes until lifted by hand.
type MuteArgs struct {
	UserID   string
	Duration string
	Reason   string
}

func parseMuteArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (MuteArgs, error) {
	m := optionMap(opts)
	userID, err := m.user(optUser)
	if err != nil {
		return MuteArgs{}, err
	}
	args := MuteArgs{UserID: userID, Duration: m.str(optDuration), Reason: m.str(optReason)}
	if args.Duration != "" && !duration.Valid(args.Duration) {
		return MuteArgs{}, ErrInvalidDuration
	}
	return args, nil
}

// UnmuteArgs - /moderator unmute
type UnmuteArgs struct {
	UserID string
	Reason string
}

func parseUnmuteArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (UnmuteArgs, error) {
	m := optionMap(opts)
	userID, err := m.user(optUser)
	if err != nil {
		return UnmuteArgs{}, err
	}
	return UnmuteArgs{UserID: userID, Reason: m.str(optReason)}, nil
}

// SetLogArgs - /moderator setlog
type SetLogArgs struct {
	ChannelID string
}

func parseSetLogArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (SetLogArgs, error) {
	id, ok := optionMap(opts).channel(optChannel)
	if !ok {
		return SetLogArgs{}, fmt.Errorf("%w: %s", ErrMissingOption, optChannel)
	}
	return SetLogArgs{ChannelID: id}, nil
}

// WindowArgs - /messages count and /messages users
type WindowArgs struct {
	ChannelID string
	Period    string
	Span      time.Duration
}

func parseWindowArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (WindowArgs, error) {
	m := optionMap(opts)
	id, ok := m.channel(optChannel)
	if !ok {
		return WindowArgs{}, fmt.Errorf("%w: %s", ErrMissingOption, optChannel)
	}
	period := m.str(optPeriod)
	d, err := duration.Parse(period)
	if err != nil || d <= 0 {
		return WindowArgs{}, ErrInvalidDuration
	}
	return WindowArgs{ChannelID: id, Period: period, Span: d}, nil
}

// SetupMuteArgs - /moderator setupmute. Empty ids leave the setting unchanged.
type SetupMuteArgs struct {
	AppealChannelID string
	TicketChannelID string
}

func parseSetupMuteArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (SetupMuteArgs, error) {
	m := optionMap(opts)
	appeal, _ := m.channel(optAppeal)
	tickets, _ := m.channel(optTickets)
	return SetupMuteArgs{AppealChannelID: appeal, TicketChannelID: tickets}, nil
}

// RescanArgs - /moderator rescan
type RescanArgs struct {
	All bool
}

func parseRescanArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (RescanArgs, error) {
	return RescanArgs{All: optionMap(opts).boolean(optAll)}, nil
}

// RuleArgs - /moderator autopunish add
type RuleArgs struct {
	Warnings int
	Duration string
	Reason   string
}

func parseRuleArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (RuleArgs, error) {
	m := optionMap(opts)
	warnings, ok := m.integer(optWarnings)
	if !ok {
		return RuleArgs{}, fmt.Errorf("%w: %s", ErrMissingOption, optWarnings)
	}
	if warnings <= 0 {
		return RuleArgs{}, fmt.Errorf("%w: warnings must be at least 1", ErrInvalidOption)
	}
	args := RuleArgs{Warnings: warnings, Duration: m.str(optDuration), Reason: m.str(optReason)}
	if !duration.Valid(args.Duration) {
		return RuleArgs{}, ErrInvalidDuration
	}
	return args, nil
}

// RuleRemoveArgs - /moderator autopunish remove
type RuleRemoveArgs struct {
	Warnings int
}

func parseRuleRemoveArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) (RuleRemoveArgs, error) {
	warnings, ok := optionMap(opts).integer(optWarnings)
	if !ok {
		return RuleRemoveArgs{}, fmt.Errorf("%w: %s", ErrMissingOption, optWarnings)
	}
	return RuleRemoveArgs{Warnings: warnings}, nil
}
