package handlers

import (
	"github.com/bwmarrin/discordgo"
)

// Command and option names
const (
	cmdMessages  = "messages"
	cmdModerator = "moderator"

	subStatus     = "status"
	subCount      = "count"
	subUsers      = "users"
	subWarn       = "warn"
	subWarnings   = "warnings"
	subClearWarns = "clearwarns"
	subMute       = "mute"
	subUnmute     = "unmute"
	subSetLog     = "setlog"
	subSetupMute  = "setupmute"
	subRescan     = "rescan"

	groupAutopunish = "autopunish"
	subRuleAdd      = "add"
	subRuleRemove   = "remove"
	subRuleList     = "list"
	subRuleClear    = "clear"

	optUser     = "user"
	optReason   = "reason"
	optDuration = "duration"
	optChannel  = "channel"
	optAppeal   = "appeal"
	optTickets  = "tickets"
	optWarnings = "warnings"
	optAll      = "all"
	optPeriod   = "period"
)

var moderatorPermission int64 = discordgo.PermissionModerateMembers

func userOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        optUser,
		Description: description,
		Required:    true,
	}
}

func reasonOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optReason,
		Description: "Reason shown in the log",
	}
}

func durationOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optDuration,
		Description: "Duration like 10m, 2h or 1d",
		Required:    required,
	}
}

func textChannelOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     required,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
	}
}

func warningsOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        optWarnings,
		Description: "Exact warning count that triggers the rule",
		Required:    true,
		MinValue:    func() *float64 { v := 1.0; return &v }(),
	}
}

func periodOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optPeriod,
		Description: "How far back to count, like 1h, 24h or 7d",
		Required:    true,
	}
}

func subcommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     options,
	}
}

// Commands - Slash commands registered on ready
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdMessages,
			Description: "Message counts for this server",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand(subStatus, "Show the message count and history scan progress"),
				subcommand(subCount, "Count messages sent in a channel recently",
					textChannelOption(optChannel, "Channel to count", true), periodOption()),
				subcommand(subUsers, "Rank the most active members of a channel",
					textChannelOption(optChannel, "Channel to count", true), periodOption()),
			},
		},
		{
			Name:                     cmdModerator,
			Description:              "Moderation tools",
			DefaultMemberPermissions: &moderatorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand(subWarn, "Warn a member", userOption("Member to warn"), reasonOption()),
				subcommand(subWarnings, "Show a member's warnings", userOption("Member to look up")),
				subcommand(subClearWarns, "Clear a member's warnings", userOption("Member to clear")),
				subcommand(subMute, "Mute a member", userOption("Member to mute"), durationOption(false), reasonOption()),
				subcommand(subUnmute, "Unmute a member", userOption("Member to unmute"), reasonOption()),
				subcommand(subSetLog, "Set the moderation log channel", textChannelOption(optChannel, "Log channel", true)),
				subcommand(subSetupMute, "Set channels muted members can still use",
					textChannelOption(optAppeal, "Appeal channel", false),
					textChannelOption(optTickets, "Ticket channel", false),
				),
				subcommand(subRescan, "Scan the message history again",
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        optAll,
						Description: "Rescan every server (owner only)",
					},
				),
				{
					Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
					Name:        groupAutopunish,
					Description: "Automatic mutes at warning thresholds",
					Options: []*discordgo.ApplicationCommandOption{
						subcommand(subRuleAdd, "Add or replace a rule", warningsOption(), durationOption(true), reasonOption()),
						subcommand(subRuleRemove, "Remove a rule", warningsOption()),
						subcommand(subRuleList, "List rules"),
						subcommand(subRuleClear, "Remove every rule"),
					},
				},
			},
		},
	}
}
