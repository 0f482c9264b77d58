// Package leaderboard ranks finished games by final assets. The engine
// hands it a result tuple on EndGame; ranking, ordering, and storage all
// live here, outside the game core.
package leaderboard

import (
	"context"
	"sort"
	"sync"

	"github.com/tradequest/game-engine/internal/model"
)

// Board receives finished-game entries and serves ranked listings.
type Board interface {
	// Submit records one player's finished game. A later submission for
	// the same player replaces the earlier one when it scores higher and
	// always bumps the games-played counter.
	Submit(ctx context.Context, entry model.RankEntry) error

	// Top returns up to n entries ordered by total assets, best first,
	// with Rank fields filled in starting at 1.
	Top(ctx context.Context, n int) ([]model.RankEntry, error)
}

// MemoryBoard implements Board with an in-memory map. Used when no Redis
// backend is configured, and in tests.
type MemoryBoard struct {
	mu      sync.RWMutex
	entries map[string]model.RankEntry // playerID → best entry
}

// NewMemoryBoard creates an empty in-memory board.
func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{entries: make(map[string]model.RankEntry)}
}

func (b *MemoryBoard) Submit(_ context.Context, entry model.RankEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.entries[entry.PlayerID]
	if ok {
		entry.GamesPlayed = prev.GamesPlayed + 1
		if prev.TotalAssets.GreaterThan(entry.TotalAssets) {
			// Keep the better score, bump the counter.
			prev.GamesPlayed = entry.GamesPlayed
			b.entries[entry.PlayerID] = prev
			return nil
		}
	} else {
		entry.GamesPlayed = 1
	}
	b.entries[entry.PlayerID] = entry
	return nil
}

func (b *MemoryBoard) Top(_ context.Context, n int) ([]model.RankEntry, error) {
	b.mu.RLock()
	out := make([]model.RankEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].TotalAssets.GreaterThan(out[j].TotalAssets)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}
