package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/cufee/botto-moderator/config"
	"go.uber.org/zap"
)

// Window - Messages in one channel newer than a cutoff
type Window struct {
	Total    int
	ByAuthor map[string]int
	Pages    int
}

// AuthorCount - One row of a window ranking
type AuthorCount struct {
	AuthorID string
	Count    int
}

// Ranking - Authors by message count, most active first. Ties keep id order.
func (w Window) Ranking() []AuthorCount {
	rows := make([]AuthorCount, 0, len(w.ByAuthor))
	for id, n := range w.ByAuthor {
		rows = append(rows, AuthorCount{AuthorID: id, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return lessID(rows[i].AuthorID, rows[j].AuthorID)
	})
	return rows
}

// CountWindow - Page back through a channel's history until messages are
// older than since. Every message in the window is counted, bots included.
// Nothing is persisted and the guild's scan progress is not touched.
func (e *Engine) CountWindow(ctx context.Context, channelID string, since time.Time) (Window, error) {
	w := Window{ByAuthor: make(map[string]int)}
	before := ""
	for {
		page, err := e.source.FetchPage(ctx, channelID, config.MaxPageSize, before)
		if err != nil {
			return Window{}, err
		}
		w.Pages++
		if len(page) == 0 {
			break
		}

		for _, m := range page {
			if m.Timestamp.Before(since) {
				continue
			}
			w.Total++
			if m.AuthorID != "" {
				w.ByAuthor[m.AuthorID]++
			}
		}

		last := page[len(page)-1]
		if last.Timestamp.Before(since) {
			break
		}
		before = last.ID
	}

	e.logger.Debug("Counted message window",
		zap.String("channel_id", channelID),
		zap.Time("since", since),
		zap.Int("messages", w.Total),
		zap.Int("pages", w.Pages))
	return w, nil
}
