// Package handlers wires gateway events, slash commands and prefix commands
// to the scanner and punish engines.
package handlers

import (
	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/cufee/botto-moderator/config"
	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/punish"
	"github.com/cufee/botto-moderator/scanner"
	"go.uber.org/zap"
)

// overwriteRefresher - Sanctions that keep per-channel permission overwrites
type overwriteRefresher interface {
	RefreshOverwrites(guildID string) error
}

// Deps - Everything the handlers need
type Deps struct {
	Config   config.Discord
	Messages *database.Messages
	Warns    *database.Warns
	Settings *database.Settings
	Scanner  *scanner.Engine
	Punisher *punish.Engine
	Auditor  punish.Auditor
	// Optional, set when the sanction strategy uses a muted role
	Overwrites overwriteRefresher
	Logger     *zap.Logger
}

// Bot - Event and command handlers bound to their dependencies
type Bot struct {
	cfg        config.Discord
	messages   *database.Messages
	warns      *database.Warns
	settings   *database.Settings
	scan       *scanner.Engine
	punisher   *punish.Engine
	auditor    punish.Auditor
	overwrites overwriteRefresher
	router     *exrouter.Route
	logger     *zap.Logger
}

// New - Create handlers
func New(d Deps) *Bot {
	b := &Bot{
		cfg:        d.Config,
		messages:   d.Messages,
		warns:      d.Warns,
		settings:   d.Settings,
		scan:       d.Scanner,
		punisher:   d.Punisher,
		auditor:    d.Auditor,
		overwrites: d.Overwrites,
		logger:     d.Logger.Named("handlers"),
	}
	b.router = b.newRouter()
	return b
}
