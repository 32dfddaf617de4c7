package punish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cufee/botto-moderator/config"
	"github.com/cufee/botto-moderator/database"
	"github.com/cufee/botto-moderator/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type applyCall struct {
	guildID  string
	userID   string
	duration time.Duration
	reason   string
}

type fakeSanction struct {
	mu        sync.Mutex
	held      map[string]bool
	gone      map[string]bool
	applyErr  error
	liftErrs  []error // consumed one per Lift call
	applied   []applyCall
	lifted    []string
	liftCalls int
}

func newFakeSanction() *fakeSanction {
	return &fakeSanction{held: make(map[string]bool), gone: make(map[string]bool)}
}

func key(guildID, userID string) string { return guildID + "/" + userID }

func (f *fakeSanction) Strategy() string { return config.StrategyRole }

func (f *fakeSanction) Apply(_ context.Context, guildID, userID string, d time.Duration, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[key(guildID, userID)] {
		return "", ErrMemberNotFound
	}
	if f.applyErr != nil {
		return "", f.applyErr
	}
	f.applied = append(f.applied, applyCall{guildID: guildID, userID: userID, duration: d, reason: reason})
	f.held[key(guildID, userID)] = true
	return "muted-role", nil
}

func (f *fakeSanction) Holds(_ context.Context, entry database.MuteEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[key(entry.GuildID, entry.UserID)] {
		return false, ErrMemberNotFound
	}
	return f.held[key(entry.GuildID, entry.UserID)], nil
}

func (f *fakeSanction) Lift(_ context.Context, entry database.MuteEntry, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liftCalls++
	if len(f.liftErrs) > 0 {
		err := f.liftErrs[0]
		f.liftErrs = f.liftErrs[1:]
		if err != nil {
			return err
		}
	}
	delete(f.held, key(entry.GuildID, entry.UserID))
	f.lifted = append(f.lifted, reason)
	return nil
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []Event
}

func (a *fakeAuditor) Record(_ context.Context, e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *fakeAuditor) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Event(nil), a.events...)
}

type harness struct {
	store    *database.FileStore
	warns    *database.Warns
	mutes    *database.Mutes
	sanction *fakeSanction
	auditor  *fakeAuditor
	engine   *Engine
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := database.NewFileStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		store:    store,
		warns:    database.NewWarns(store, zap.NewNop()),
		mutes:    database.NewMutes(store, zap.NewNop()),
		sanction: newFakeSanction(),
		auditor:  &fakeAuditor{},
		now:      time.UnixMilli(1_700_000_000_000),
	}
	h.engine = NewEngine(config.Default().Punish, h.warns, h.mutes, h.sanction, h.auditor, zap.NewNop())
	h.engine.now = func() time.Time { return h.now }
	return h
}

func (h *harness) sweeper() *Sweeper {
	s := NewSweeper(h.engine, time.Minute, zap.NewNop())
	s.retry = retry.Options{
		MaxElapsedTime:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxRetries:      2,
	}
	return s
}

func TestEvaluateFiresOnExactThreshold(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.warns.AddRule("g1", database.AutopunishRule{Warnings: 3, Duration: "1h"}))

	for _, n := range []int{1, 2, 4} {
		out := h.engine.Evaluate(ctx, "g1", "u1", n)
		assert.Equal(t, NoAction, out.Status, "warnings=%d", n)
	}
	assert.Empty(t, h.sanction.applied)

	out := h.engine.Evaluate(ctx, "g1", "u1", 3)
	assert.Equal(t, Applied, out.Status)
	assert.Equal(t, "Auto-mute applied for **1h**.", out.Message)
	assert.Equal(t, 3, out.Rule.Warnings)

	require.Len(t, h.sanction.applied, 1)
	assert.Equal(t, time.Hour, h.sanction.applied[0].duration)
	assert.Equal(t, "Muted for 1h due to warning threshold.", h.sanction.applied[0].reason)

	entry, ok := h.mutes.Get("g1", "u1")
	require.True(t, ok)
	assert.True(t, entry.Automatic)
	assert.Equal(t, h.now.Add(time.Hour).UnixMilli(), entry.Expires)
	assert.Equal(t, "muted-role", entry.RoleID)
	assert.NotEmpty(t, entry.CaseID)

	events := h.auditor.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAutoMute, events[0].Kind)
	assert.Equal(t, entry.CaseID, events[0].CaseID)
}

func TestEvaluateReasonTemplate(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.warns.AddRule("g1", database.AutopunishRule{Warnings: 2, Duration: "30m", Reason: "Cool off for {duration}"}))

	out := h.engine.Evaluate(context.Background(), "g1", "u1", 2)
	require.Equal(t, Applied, out.Status)
	assert.Equal(t, "Cool off for 30m", h.sanction.applied[0].reason)
}

func TestEvaluateUsesReplacedRule(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.warns.AddRule("g1", database.AutopunishRule{Warnings: 3, Duration: "1h"}))
	require.NoError(t, h.warns.AddRule("g1", database.AutopunishRule{Warnings: 3, Duration: "2d"}))

	out := h.engine.Evaluate(context.Background(), "g1", "u1", 3)
	require.Equal(t, Applied, out.Status)
	assert.Equal(t, 48*time.Hour, h.sanction.applied[0].duration)
	assert.Len(t, h.warns.Rules("g1"), 1)
}

func TestEvaluateZeroDurationIsNoAction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.warns.AddRule("g1", database.AutopunishRule{Warnings: 1, Duration: "0m"}))

	out := h.engine.Evaluate(context.Background(), "g1", "u1", 1)
	assert.Equal(t, NoAction, out.Status)
	assert.Empty(t, h.sanction.applied)
}

func TestEvaluateKeepsLongerManualMute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name     string
		manual   string
		keepsOld bool
	}{
		{"indefinite", "", true},
		{"longer", "2d", true},
		{"equal", "1h", true},
		{"shorter", "10m", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			require.NoError(t, h.warns.AddRule("g1", database.AutopunishRule{Warnings: 3, Duration: "1h"}))

			manual, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Duration: tt.manual, Reason: "raid"})
			require.NoError(t, err)
			require.Len(t, h.sanction.applied, 1)

			out := h.engine.Evaluate(ctx, "g1", "u1", 3)
			entry, ok := h.mutes.Get("g1", "u1")
			require.True(t, ok)

			if tt.keepsOld {
				assert.Equal(t, NoAction, out.Status)
				assert.Equal(t, "Already muted for longer, auto-mute for **1h** skipped.", out.Message)
				assert.Equal(t, manual, entry)
				assert.Len(t, h.sanction.applied, 1)
				assert.Len(t, h.auditor.Events(), 1)
				return
			}
			assert.Equal(t, Applied, out.Status)
			assert.True(t, entry.Automatic)
			assert.Equal(t, h.now.Add(time.Hour).UnixMilli(), entry.Expires)
			assert.Len(t, h.sanction.applied, 2)
		})
	}
}

func TestEvaluateApplyFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.sanction.applyErr = errors.New("missing permissions")
	require.NoError(t, h.warns.AddRule("g1", database.AutopunishRule{Warnings: 1, Duration: "1h"}))

	out := h.engine.Evaluate(context.Background(), "g1", "u1", 1)
	assert.Equal(t, Failed, out.Status)
	assert.Equal(t, "Attempted auto-mute but lacked permissions.", out.Message)

	_, ok := h.mutes.Get("g1", "u1")
	assert.False(t, ok, "nothing scheduled")
	assert.Empty(t, h.auditor.Events())
}

func TestManualMute(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u1", ModeratorID: "m1", Duration: "10 minutes"})
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.Empty(t, h.sanction.applied)

	entry, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u1", ModeratorID: "m1", Duration: "10m", Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, h.now.Add(10*time.Minute).UnixMilli(), entry.Expires)
	assert.False(t, entry.Automatic)

	_, err = h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u1", ModeratorID: "m1"})
	assert.ErrorIs(t, err, ErrAlreadyMuted)

	forever, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u2", ModeratorID: "m1"})
	require.NoError(t, err)
	assert.Zero(t, forever.Expires)

	h.sanction.gone[key("g1", "u3")] = true
	_, err = h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u3", ModeratorID: "m1"})
	assert.ErrorIs(t, err, ErrMemberNotFound)

	h.sanction.applyErr = errors.New("forbidden")
	_, err = h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u4", ModeratorID: "m1"})
	assert.ErrorIs(t, err, ErrApplyFailed)
}

func TestManualUnmute(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.engine.Unmute(ctx, "g1", "u1", "m1", "sorry"), ErrNotMuted)

	_, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u1", ModeratorID: "m1", Duration: "1d"})
	require.NoError(t, err)

	require.NoError(t, h.engine.Unmute(ctx, "g1", "u1", "m1", "appeal accepted"))
	_, ok := h.mutes.Get("g1", "u1")
	assert.False(t, ok)
	assert.Equal(t, []string{"appeal accepted"}, h.sanction.lifted)

	events := h.auditor.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventUnmute, events[1].Kind)
}

func TestSweeperLiftsExpiredMutes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.warns.AddRule("g1", database.AutopunishRule{Warnings: 1, Duration: "1h"}))

	require.Equal(t, Applied, h.engine.Evaluate(ctx, "g1", "auto", 1).Status)
	_, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "timed", ModeratorID: "m1", Duration: "2h"})
	require.NoError(t, err)
	_, err = h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "forever", ModeratorID: "m1"})
	require.NoError(t, err)

	s := h.sweeper()
	assert.Zero(t, s.Sweep(ctx))

	h.now = h.now.Add(90 * time.Minute)
	assert.Equal(t, 1, s.Sweep(ctx))
	assert.Equal(t, []string{ReasonAutoExpired}, h.sanction.lifted)

	h.now = h.now.Add(time.Hour)
	assert.Equal(t, 1, s.Sweep(ctx))
	assert.Equal(t, []string{ReasonAutoExpired, ReasonTimedExpired}, h.sanction.lifted)

	all := h.mutes.All()
	require.Len(t, all, 1)
	assert.Equal(t, "forever", all[0].UserID)

	var kinds []EventKind
	for _, e := range h.auditor.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventAutoMute, EventMute, EventMute, EventAutoUnmute, EventAutoUnmute}, kinds)
}

func TestSweeperSurvivesRestart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u1", ModeratorID: "m1", Duration: "5m"})
	require.NoError(t, err)

	// A new process only has what was persisted
	h.mutes = database.NewMutes(h.store, zap.NewNop())
	h.engine = NewEngine(config.Default().Punish, h.warns, h.mutes, h.sanction, h.auditor, zap.NewNop())
	h.engine.now = func() time.Time { return h.now.Add(time.Hour) }

	assert.Equal(t, 1, h.sweeper().Sweep(ctx))
	assert.Empty(t, h.mutes.All())
}

func TestSweeperDropsSilently(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "left", ModeratorID: "m1", Duration: "1m"})
	require.NoError(t, err)
	_, err = h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "lifted", ModeratorID: "m1", Duration: "1m"})
	require.NoError(t, err)

	h.sanction.gone[key("g1", "left")] = true
	delete(h.sanction.held, key("g1", "lifted"))
	h.now = h.now.Add(time.Hour)

	before := len(h.auditor.Events())
	assert.Zero(t, h.sweeper().Sweep(ctx))
	assert.Empty(t, h.mutes.All())
	assert.Zero(t, h.sanction.liftCalls)
	assert.Len(t, h.auditor.Events(), before)
}

func TestSweeperRetriesLift(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u1", ModeratorID: "m1", Duration: "1m"})
	require.NoError(t, err)
	h.now = h.now.Add(time.Hour)

	h.sanction.liftErrs = []error{errors.New("502"), nil}
	assert.Equal(t, 1, h.sweeper().Sweep(ctx))
	assert.Equal(t, 2, h.sanction.liftCalls)

	// Lifting that keeps failing leaves the entry for the next sweep
	_, err = h.engine.Mute(ctx, MuteRequest{GuildID: "g1", UserID: "u2", ModeratorID: "m1", Duration: "1m"})
	require.NoError(t, err)
	h.now = h.now.Add(time.Hour)
	h.sanction.liftErrs = []error{errors.New("a"), errors.New("b"), errors.New("c")}
	assert.Zero(t, h.sweeper().Sweep(ctx))
	_, ok := h.mutes.Get("g1", "u2")
	assert.True(t, ok)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sweeper().Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
