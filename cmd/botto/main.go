package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cufee/botto-moderator/backup"
	"github.com/cufee/botto-moderator/config"
	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/discord"
	"github.com/cufee/botto-moderator/handlers"
	"github.com/cufee/botto-moderator/logging"
	"github.com/cufee/botto-moderator/pacing"
	"github.com/cufee/botto-moderator/punish"
	"github.com/cufee/botto-moderator/scanner"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "botto",
		Usage: "Discord moderation bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config.toml, searched for in the default locations when empty",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect to Discord and start the bot",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runBot(ctx, c.String("config"))
				},
			},
			{
				Name:  "backup",
				Usage: "Write a snapshot of every stored document and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Directory to write the snapshot under, defaults to backup.dir",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runBackup(c.String("config"), c.String("out"))
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, os.Args)
}

func runBot(ctx context.Context, configPath string) error {
	cfg, usedPath, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, sessionDir, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level, cfg.Logging.MaxSessions)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	logger.Info("Starting", zap.String("config", usedPath), zap.String("log_dir", sessionDir))

	store, err := database.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	messages := database.NewMessages(store, logger)
	warns := database.NewWarns(store, logger)
	settings := database.NewSettings(store, logger)
	mutes := database.NewMutes(store, logger)

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}

	sanction := discord.NewSanction(session, settings, cfg.Punish, logger)
	auditor := discord.NewAuditLog(session, settings, logger)
	punisher := punish.NewEngine(cfg.Punish, warns, mutes, sanction, auditor, logger)

	pacer := pacing.New()
	scan := scanner.NewEngine(messages, discord.NewSource(session, cfg.Scan), discord.NewDirectory(session.State), pacer, logger)

	deps := handlers.Deps{
		Config:   cfg.Discord,
		Messages: messages,
		Warns:    warns,
		Settings: settings,
		Scanner:  scan,
		Punisher: punisher,
		Auditor:  auditor,
		Logger:   logger,
	}
	if role, ok := sanction.(*discord.RoleSanction); ok {
		deps.Overwrites = role
	}
	handlers.New(deps).Register(session)

	if err := discord.Open(ctx, session, logger); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer session.Close()

	p := pool.New().WithContext(ctx)
	if cfg.Scan.Enabled {
		p.Go(scanner.NewScheduler(scan, logger).Run)
	}
	p.Go(punish.NewSweeper(punisher, cfg.Punish.SweepInterval, logger).Run)
	if cfg.Backup.Enabled {
		p.Go(backup.NewRunner(store, database.Documents, cfg.Backup.Dir, cfg.Backup.Interval, cfg.Backup.Keep, logger).Run)
	}

	logger.Info("Bot is running, press Ctrl+C to stop")
	err = p.Wait()
	logger.Info("Shutting down")
	return err
}

func runBackup(configPath, out string) error {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := database.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	var dir string
	if out != "" {
		dir, err = backup.Snapshot(store, database.Documents, out, time.Now())
	} else {
		dir, err = backup.NewRunner(store, database.Documents, cfg.Backup.Dir, cfg.Backup.Interval, cfg.Backup.Keep, zap.NewNop()).Once()
	}
	if err != nil {
		return err
	}
	fmt.Println("Snapshot written to", dir)
	return nil
}
