package database

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cufee/botto-moderator/duration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestMessagesConcurrentIncrements(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	msgs := NewMessages(store, zap.NewNop())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_, err := msgs.Increment("g1")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), msgs.Get("g1").Live.Count)

	// Every increment reached the disk
	reloaded := NewMessages(store, zap.NewNop())
	assert.Equal(t, int64(200), reloaded.Get("g1").Live.Count)
}

func TestMessagesUpdateAndReset(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	msgs := NewMessages(store, zap.NewNop())

	err := msgs.Update("g1", func(rec *GuildMessageRecord) bool {
		rec.Live.Count = 50
		rec.Progress.Channels["c1"] = &ChannelCheckpoint{Done: true}
		rec.Progress.Complete = true
		rec.Live.Scanned = true
		return true
	})
	require.NoError(t, err)

	// Returning false leaves the stored copy untouched
	require.NoError(t, msgs.Update("g1", func(rec *GuildMessageRecord) bool {
		return false
	}))
	assert.True(t, NewMessages(store, zap.NewNop()).Get("g1").Live.Scanned)

	require.NoError(t, msgs.Reset("g1"))
	rec := msgs.Get("g1")
	assert.Zero(t, rec.Live.Count)
	assert.False(t, rec.Live.Scanned)
	assert.False(t, rec.Progress.Complete)
	assert.Empty(t, rec.Progress.Channels)

	reloaded := NewMessages(store, zap.NewNop()).Get("g1")
	assert.False(t, reloaded.Live.Scanned)
	assert.Empty(t, reloaded.Progress.Channels)
}

func TestMessagesGuildIDsSorted(t *testing.T) {
	t.Parallel()

	msgs := NewMessages(newFileStore(t), zap.NewNop())
	for _, id := range []string{"30", "10", "20"} {
		require.NoError(t, msgs.Ensure(id))
	}
	assert.Equal(t, []string{"10", "20", "30"}, msgs.GuildIDs())
}

func TestWarnings(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	warns := NewWarns(store, zap.NewNop())

	for want := 1; want <= 3; want++ {
		got, err := warns.AddWarning("g1", "u1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 3, warns.Warnings("g1", "u1"))
	assert.Zero(t, warns.Warnings("g1", "u2"))
	assert.Zero(t, warns.Warnings("g2", "u1"))

	assert.Equal(t, 3, NewWarns(store, zap.NewNop()).Warnings("g1", "u1"))

	cleared, err := warns.ClearWarnings("g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, cleared)
	assert.Zero(t, warns.Warnings("g1", "u1"))

	cleared, err = warns.ClearWarnings("g1", "u1")
	require.NoError(t, err)
	assert.Zero(t, cleared)
}

func TestAutopunishRules(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	warns := NewWarns(store, zap.NewNop())

	require.NoError(t, warns.AddRule("g1", AutopunishRule{Warnings: 5, Duration: "1d"}))
	require.NoError(t, warns.AddRule("g1", AutopunishRule{Warnings: 3, Duration: "1h"}))
	require.NoError(t, warns.AddRule("g1", AutopunishRule{Warnings: 3, Duration: "2h", Reason: "again"}))

	rules := warns.Rules("g1")
	require.Len(t, rules, 2, "same threshold replaces")
	assert.Equal(t, AutopunishRule{Warnings: 3, Duration: "2h", Reason: "again"}, rules[0])
	assert.Equal(t, 5, rules[1].Warnings)

	rule, ok := warns.RuleFor("g1", 3)
	require.True(t, ok)
	assert.Equal(t, "2h", rule.Duration)
	_, ok = warns.RuleFor("g1", 4)
	assert.False(t, ok)

	assert.Equal(t, rules, NewWarns(store, zap.NewNop()).Rules("g1"))

	removed, err := warns.RemoveRule("g1", 4)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = warns.RemoveRule("g1", 5)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Len(t, warns.Rules("g1"), 1)

	cleared, err := warns.ClearRules("g1")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
	assert.Empty(t, warns.Rules("g1"))
}

func TestAutopunishRuleValidation(t *testing.T) {
	t.Parallel()

	warns := NewWarns(newFileStore(t), zap.NewNop())

	assert.ErrorIs(t, warns.AddRule("g1", AutopunishRule{Warnings: 0, Duration: "1h"}), ErrInvalidThreshold)
	assert.ErrorIs(t, warns.AddRule("g1", AutopunishRule{Warnings: -1, Duration: "1h"}), ErrInvalidThreshold)

	err := warns.AddRule("g1", AutopunishRule{Warnings: 2, Duration: "1 hour"})
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.ErrorIs(t, err, duration.ErrInvalid)

	assert.Empty(t, warns.Rules("g1"))
}

func TestSettings(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	settings := NewSettings(store, zap.NewNop())

	_, ok := settings.LogChannel("g1")
	assert.False(t, ok)

	require.NoError(t, settings.SetLogChannel("g1", "c1"))
	require.NoError(t, settings.SetAppealChannels("g1", []string{"a1", "a2"}))
	require.NoError(t, settings.SetTicketChannels("g1", []string{"t1"}))

	reloaded := NewSettings(store, zap.NewNop())
	id, ok := reloaded.LogChannel("g1")
	assert.True(t, ok)
	assert.Equal(t, "c1", id)
	assert.Equal(t, MuteChannels{Appeal: []string{"a1", "a2"}, Tickets: []string{"t1"}}, reloaded.MuteChannels("g1"))
	assert.Equal(t, MuteChannels{}, reloaded.MuteChannels("g2"))
}

func TestMutes(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	mutes := NewMutes(store, zap.NewNop())
	now := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, mutes.Add(MuteEntry{GuildID: "g1", UserID: "u1", Expires: now.Add(-time.Minute).UnixMilli(), Reason: "a"}))
	require.NoError(t, mutes.Add(MuteEntry{GuildID: "g1", UserID: "u2", Expires: now.Add(time.Minute).UnixMilli(), Reason: "b"}))
	require.NoError(t, mutes.Add(MuteEntry{GuildID: "g2", UserID: "u1", Expires: now.UnixMilli(), Reason: "c"}))
	require.NoError(t, mutes.Add(MuteEntry{GuildID: "g2", UserID: "u3", Reason: "forever"}))

	reloaded := NewMutes(store, zap.NewNop())
	expired := reloaded.Expired(now)
	require.Len(t, expired, 2)
	assert.Equal(t, "a", expired[0].Reason)
	assert.Equal(t, "g2", expired[1].GuildID)
	assert.Equal(t, "u1", expired[1].UserID)
	assert.Len(t, reloaded.All(), 4)

	removed, err := reloaded.Remove("g1", "u1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = reloaded.Remove("g1", "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	e, ok := reloaded.Get("g2", "u3")
	require.True(t, ok)
	assert.True(t, e.ExpiresAt().IsZero())
	assert.False(t, e.Expired(now.Add(1000*time.Hour)))
}

func TestNullDocumentsLoadAsEmpty(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	for _, name := range Documents {
		require.NoError(t, os.WriteFile(store.Path(name), []byte("null"), 0o644))
	}
	logger := zap.NewNop()

	count, err := NewMessages(store, logger).Increment("g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	warnings, err := NewWarns(store, logger).AddWarning("g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, warnings)

	settings := NewSettings(store, logger)
	require.NoError(t, settings.SetLogChannel("g1", "c1"))
	require.NoError(t, settings.SetAppealChannels("g1", []string{"c2"}))

	mutes := NewMutes(store, logger)
	require.NoError(t, mutes.Add(MuteEntry{GuildID: "g1", UserID: "u1"}))
	_, ok := mutes.Get("g1", "u1")
	assert.True(t, ok)
}

func TestBoltNullDocumentFallsBackToDefault(t *testing.T) {
	t.Parallel()

	store, err := NewBoltStore(t.TempDir() + "/botto.db")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(MessageCountsDoc, nil))
	var got map[string]*GuildMessageRecord
	assert.ErrorIs(t, store.Load(MessageCountsDoc, &got), ErrCorrupt)

	_, err = NewMessages(store, zap.NewNop()).Increment("g1")
	assert.NoError(t, err)
}
