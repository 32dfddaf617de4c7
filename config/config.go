package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrInvalidBackend  = errors.New("unknown storage backend")
	ErrInvalidStrategy = errors.New("unknown sanction strategy")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// ConfigFileName - File searched for in ConfigPaths when no explicit path is given
const ConfigFileName = "config.toml"

// Storage backends
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Sanction strategies
const (
	StrategyRole    = "role"
	StrategyTimeout = "timeout"
)

// Scan pacing tunables

// LatencyWindow - Number of fetch latency samples kept for the rolling average
const LatencyWindow int = 20

// DefaultLatency - Average latency assumed before any fetch was timed
const DefaultLatency = 200 * time.Millisecond

// FetchPenalty - Latency recorded for a failed page fetch
const FetchPenalty = 2000 * time.Millisecond

// BurstWindow - How long a live message counts towards the burst counter
const BurstWindow = 5 * time.Second

// BurstThreshold - Live messages within BurstWindow above which scanning backs off
const BurstThreshold int = 20

// MaxPageSize - Platform limit for a single message history page
const MaxPageSize int = 100

// DefaultAutopunishReason - Reason template used when a rule has none
const DefaultAutopunishReason string = "Muted for {duration} due to warning threshold."

// Config - Application configuration
type Config struct {
	Discord Discord `koanf:"discord"`
	Storage Storage `koanf:"storage"`
	Logging Logging `koanf:"logging"`
	Scan    Scan    `koanf:"scan"`
	Punish  Punish  `koanf:"punish"`
	Backup  Backup  `koanf:"backup"`
}

// Discord - Bot account settings
type Discord struct {
	Token            string `koanf:"token"`             // Bot token, DISCORD_TOKEN overrides
	OwnerID          string `koanf:"owner_id"`          // User allowed to rescan, OWNER_ID overrides
	Prefix           string `koanf:"prefix"`            // Prefix for text commands
	RegisterCommands bool   `koanf:"register_commands"` // Overwrite slash commands on ready
}

// Storage - Persistent store settings
type Storage struct {
	Backend  string `koanf:"backend"`   // file or bolt
	Dir      string `koanf:"dir"`       // Directory for JSON documents
	BoltPath string `koanf:"bolt_path"` // Database file for the bolt backend
}

// Logging - Log output settings
type Logging struct {
	Level       string `koanf:"level"`        // debug, info, warn, error
	Dir         string `koanf:"dir"`          // Root directory for session logs
	MaxSessions int    `koanf:"max_sessions"` // Session directories kept on disk
}

// Scan - Historical scan settings
type Scan struct {
	Enabled    bool    `koanf:"enabled"`
	FetchRate  float64 `koanf:"fetch_rate"`  // Hard cap on history fetches per second
	FetchBurst int     `koanf:"fetch_burst"` // Burst allowance for the fetch cap
}

// Punish - Sanction settings
type Punish struct {
	Strategy      string        `koanf:"strategy"`        // role or timeout
	MutedRoleName string        `koanf:"muted_role_name"` // Role created for the role strategy
	SweepInterval time.Duration `koanf:"sweep_interval"`  // How often expired sanctions are lifted
	DefaultReason string        `koanf:"default_reason"`  // Reason template for rules without one
}

// Backup - Snapshot settings
type Backup struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	Dir      string        `koanf:"dir"`
	Keep     int           `koanf:"keep"`
}

// Default - Configuration used for any key the config file leaves out
func Default() Config {
	return Config{
		Discord: Discord{
			Prefix:           "!",
			RegisterCommands: true,
		},
		Storage: Storage{
			Backend:  BackendFile,
			Dir:      "data",
			BoltPath: "data/data.db",
		},
		Logging: Logging{
			Level:       "info",
			Dir:         "logs",
			MaxSessions: 10,
		},
		Scan: Scan{
			Enabled:    true,
			FetchRate:  5,
			FetchBurst: 1,
		},
		Punish: Punish{
			Strategy:      StrategyRole,
			MutedRoleName: "Muted",
			SweepInterval: 30 * time.Second,
			DefaultReason: DefaultAutopunishReason,
		},
		Backup: Backup{
			Enabled:  true,
			Interval: 24 * time.Hour,
			Dir:      "backups",
			Keep:     7,
		},
	}
}

// ConfigPaths - Directories searched for ConfigFileName
func ConfigPaths() []string {
	paths := []string{".", "config"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".botto"))
	}
	return append(paths, "/etc/botto")
}

// Load - Load configuration from path, or from the first config file found in
// ConfigPaths when path is empty. Returns the config and the file used, which
// is empty when only defaults and environment were applied.
func Load(path string) (*Config, string, error) {
	// Secrets usually live in .env next to the binary
	_ = godotenv.Load()

	cfg := Default()
	k := koanf.New(".")

	usedPath := ""
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, "", fmt.Errorf("failed to load config %s: %w", path, err)
		}
		usedPath = path
	} else {
		for _, dir := range ConfigPaths() {
			candidate := filepath.Join(dir, ConfigFileName)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if err := k.Load(file.Provider(candidate), toml.Parser()); err != nil {
				return nil, "", fmt.Errorf("failed to load config %s: %w", candidate, err)
			}
			usedPath = candidate
			break
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if owner := os.Getenv("OWNER_ID"); owner != "" {
		cfg.Discord.OwnerID = owner
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, usedPath, nil
}

// Validate - Check values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendBolt:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Storage.Backend)
	}

	switch c.Punish.Strategy {
	case StrategyRole, StrategyTimeout:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, c.Punish.Strategy)
	}

	if c.Punish.SweepInterval <= 0 {
		return fmt.Errorf("%w: punish.sweep_interval", ErrInvalidInterval)
	}
	if c.Backup.Enabled && c.Backup.Interval <= 0 {
		return fmt.Errorf("%w: backup.interval", ErrInvalidInterval)
	}
	if c.Scan.FetchRate <= 0 {
		return fmt.Errorf("%w: scan.fetch_rate", ErrInvalidInterval)
	}
	return nil
}
