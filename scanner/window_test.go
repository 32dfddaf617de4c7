package scanner

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/cufee/botto-moderator/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillTimed adds n messages one minute apart, newest at now, cycling authors a, b, c
func (f *fakeSource) fillTimed(channelID string, base, n int, now time.Time) {
	authors := []string{"a", "b", "c"}
	msgs := make([]Message, 0, n)
	for i := n - 1; i >= 0; i-- {
		msgs = append(msgs, Message{
			ID:        strconv.Itoa(base + i),
			AuthorID:  authors[i%3],
			Regular:   true,
			Timestamp: now.Add(-time.Duration(n-1-i) * time.Minute),
		})
	}
	f.channels[channelID] = msgs
}

func TestCountWindowStopsAtCutoff(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.source.fillTimed("100", 1000, 500, now)

	// Messages 0..249 minutes old are inside the window
	w, err := h.engine.CountWindow(context.Background(), "100", now.Add(-249*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 250, w.Total)
	assert.Equal(t, 3, w.Pages, "the third page crosses the cutoff")

	calls := h.source.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, config.MaxPageSize, c.limit)
	}
	assert.Equal(t, "", calls[0].beforeID)

	total := 0
	for _, row := range w.Ranking() {
		total += row.Count
	}
	assert.Equal(t, 250, total)
}

func TestCountWindowWholeChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := time.Now()
	h.source.fillTimed("100", 1000, 7, now)

	w, err := h.engine.CountWindow(context.Background(), "100", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 7, w.Total)
	assert.Equal(t, 2, w.Pages, "ends on an empty page")

	// Authors of ids 1000..1006 cycle a, b, c so a has 3, b and c have 2
	assert.Equal(t, []AuthorCount{{"a", 3}, {"b", 2}, {"c", 2}}, w.Ranking())
}

func TestCountWindowFetchError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.source.errs["100"] = errors.New("boom")

	_, err := h.engine.CountWindow(context.Background(), "100", time.Now().Add(-time.Hour))
	assert.Error(t, err)
}
