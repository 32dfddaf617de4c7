// Package backup writes point-in-time copies of every stored document.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cufee/botto-moderator/database"
	"go.uber.org/zap"
)

// SnapshotLayout - Directory name format for one snapshot
const SnapshotLayout = "2006-01-02_15-04-05"

// Snapshot - Copy the named documents into <dir>/<timestamp>/<name>.json.
// Documents that were never written are skipped. Returns the snapshot directory.
func Snapshot(store database.Store, names []string, dir string, now time.Time) (string, error) {
	snapshotDir, err := newSnapshotDir(dir, now)
	if err != nil {
		return "", err
	}

	for _, name := range names {
		var raw json.RawMessage
		err := store.Load(name, &raw)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return snapshotDir, fmt.Errorf("failed to read %s: %w", name, err)
		}

		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err != nil {
			return snapshotDir, fmt.Errorf("failed to format %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(snapshotDir, name+".json"), out.Bytes(), 0o644); err != nil {
			return snapshotDir, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return snapshotDir, nil
}

func newSnapshotDir(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := now.UTC().Format(SnapshotLayout)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d", name, i))
	}
}

// Prune - Remove the oldest snapshots so at most keep remain. Returns how many were removed.
func Prune(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var snapshots []string
	for _, e := range entries {
		if e.IsDir() {
			snapshots = append(snapshots, e.Name())
		}
	}
	if len(snapshots) <= keep {
		return 0, nil
	}

	sort.Strings(snapshots)
	stale := snapshots[:len(snapshots)-keep]
	for _, name := range stale {
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// Runner - Takes snapshots on a fixed interval
type Runner struct {
	store    database.Store
	names    []string
	dir      string
	interval time.Duration
	keep     int
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner - Create a runner for the given documents
func NewRunner(store database.Store, names []string, dir string, interval time.Duration, keep int, logger *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		names:    names,
		dir:      dir,
		interval: interval,
		keep:     keep,
		logger:   logger.Named("backup"),
		now:      time.Now,
	}
}

// Once - Take one snapshot and prune old ones
func (r *Runner) Once() (string, error) {
	path, err := Snapshot(r.store, r.names, r.dir, r.now())
	if err != nil {
		return path, err
	}
	removed, err := Prune(r.dir, r.keep)
	if err != nil {
		r.logger.Warn("Failed to prune old snapshots", zap.Error(err))
	}
	r.logger.Info("Snapshot written", zap.String("path", path), zap.Int("pruned", removed))
	return path, nil
}

// Run - Snapshot every interval until ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Once(); err != nil {
				r.logger.Error("Scheduled snapshot failed", zap.Error(err))
			}
		}
	}
}
