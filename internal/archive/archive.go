// Package archive keeps durable records of finished games: the final
// result tuple plus the full transaction ledger. The game core itself is
// in-memory only; archiving happens once, at EndGame, from a completed
// and immutable ledger.
package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/tradequest/game-engine/internal/model"
)

// Archive stores finished games. Implementations: in-memory (default)
// and PostgreSQL.
type Archive interface {
	// SaveResult records a finished game and its ledger.
	SaveResult(ctx context.Context, result model.GameResult, ledger []model.Transaction) error

	// Results returns the most recently finished games, newest first.
	Results(ctx context.Context, limit int) ([]model.GameResult, error)

	// Ledger returns the archived transactions for one game, oldest first.
	Ledger(ctx context.Context, gameID string) ([]model.Transaction, error)
}

// MemoryArchive implements Archive with in-memory slices.
type MemoryArchive struct {
	mu      sync.RWMutex
	results []model.GameResult
	ledgers map[string][]model.Transaction
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{ledgers: make(map[string][]model.Transaction)}
}

func (a *MemoryArchive) SaveResult(_ context.Context, result model.GameResult, ledger []model.Transaction) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.ledgers[result.GameID]; ok {
		return fmt.Errorf("archive: game %s already archived", result.GameID)
	}
	a.results = append(a.results, result)
	stored := make([]model.Transaction, len(ledger))
	copy(stored, ledger)
	a.ledgers[result.GameID] = stored
	return nil
}

func (a *MemoryArchive) Results(_ context.Context, limit int) ([]model.GameResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]model.GameResult, 0, len(a.results))
	for i := len(a.results) - 1; i >= 0; i-- {
		out = append(out, a.results[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (a *MemoryArchive) Ledger(_ context.Context, gameID string) ([]model.Transaction, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ledger, ok := a.ledgers[gameID]
	if !ok {
		return nil, fmt.Errorf("archive: game %s not found", gameID)
	}
	out := make([]model.Transaction, len(ledger))
	copy(out, ledger)
	return out, nil
}
