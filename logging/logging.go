package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SessionLayout - Directory name format for one process run
const SessionLayout = "2006-01-02_15-04-05"

// New - Create a session log directory under dir and build a logger writing
// to <session>/main.log and stderr. Old sessions beyond maxSessions are removed.
func New(dir string, level string, maxSessions int) (*zap.Logger, string, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, "", fmt.Errorf("invalid log level: %w", err)
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	// Leave room for the session about to be created
	if err := Rotate(dir, maxSessions-1); err != nil {
		return nil, "", fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	sessionDir, err := newSessionDir(dir, time.Now())
	if err != nil {
		return nil, "", err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{filepath.Join(sessionDir, "main.log"), "stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, sessionDir, nil
}

func newSessionDir(dir string, now time.Time) (string, error) {
	name := now.Format(SessionLayout)
	sessionDir := filepath.Join(dir, name)

	// Two runs within the same second get a numbered suffix
	for i := 1; ; i++ {
		err := os.Mkdir(sessionDir, os.ModePerm)
		if err == nil {
			return sessionDir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create session directory: %w", err)
		}
		sessionDir = filepath.Join(dir, fmt.Sprintf("%s_%d", name, i))
	}
}

// Rotate - Remove the oldest session directories so at most keep remain.
// Session names sort by creation time.
func Rotate(dir string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var sessions []string
	for _, e := range entries {
		if e.IsDir() {
			sessions = append(sessions, e.Name())
		}
	}
	if len(sessions) <= keep {
		return nil
	}

	sort.Strings(sessions)
	for _, name := range sessions[:len(sessions)-keep] {
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
