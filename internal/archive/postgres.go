package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradequest/game-engine/internal/model"
)

// Schema is the DDL for the archive tables. Monetary columns are NUMERIC
// for exact decimal precision.
const Schema = `
CREATE TABLE IF NOT EXISTS game_results (
	game_id        TEXT PRIMARY KEY,
	player_id      TEXT NOT NULL,
	final_assets   NUMERIC NOT NULL,
	profit         NUMERIC NOT NULL,
	profit_percent NUMERIC NOT NULL,
	ended_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS game_transactions (
	id            TEXT PRIMARY KEY,
	game_id       TEXT NOT NULL REFERENCES game_results(game_id),
	type          TEXT NOT NULL,
	instrument_id TEXT NOT NULL,
	quantity      NUMERIC NOT NULL,
	price         NUMERIC NOT NULL,
	fee           NUMERIC NOT NULL,
	realized_pnl  NUMERIC NOT NULL,
	status        TEXT NOT NULL,
	ts            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_game_transactions_game
	ON game_transactions(game_id, ts);
`

// PostgresArchive implements Archive on PostgreSQL.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a PostgreSQL-backed archive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// Init creates the archive tables when they do not exist.
func (a *PostgresArchive) Init(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("archive: create schema: %w", err)
	}
	return nil
}

func (a *PostgresArchive) SaveResult(ctx context.Context, result model.GameResult, ledger []model.Transaction) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO game_results (game_id, player_id, final_assets, profit, profit_percent, ended_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
		result.GameID, result.PlayerID,
		result.FinalAssets.String(), result.Profit.String(), result.ProfitPercent.String(),
		result.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("archive: insert result: %w", err)
	}

	for _, t := range ledger {
		_, err = tx.Exec(ctx,
			`INSERT INTO game_transactions (id, game_id, type, instrument_id, quantity, price, fee, realized_pnl, status, ts)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
			t.ID, result.GameID, t.Type, t.InstrumentID,
			t.Quantity.String(), t.Price.String(), t.Fee.String(), t.RealizedPnL.String(),
			t.Status, t.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("archive: insert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Results(ctx context.Context, limit int) ([]model.GameResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.pool.Query(ctx,
		`SELECT game_id, player_id,
		        final_assets::TEXT, profit::TEXT, profit_percent::TEXT,
		        ended_at
		 FROM game_results
		 ORDER BY ended_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query results: %w", err)
	}
	defer rows.Close()

	var results []model.GameResult
	for rows.Next() {
		var r model.GameResult
		var finalAssets, profit, profitPct string
		if err := rows.Scan(&r.GameID, &r.PlayerID, &finalAssets, &profit, &profitPct, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("archive: scan result: %w", err)
		}
		if r.FinalAssets, err = decimal.NewFromString(finalAssets); err != nil {
			return nil, fmt.Errorf("archive: parse final assets: %w", err)
		}
		if r.Profit, err = decimal.NewFromString(profit); err != nil {
			return nil, fmt.Errorf("archive: parse profit: %w", err)
		}
		if r.ProfitPercent, err = decimal.NewFromString(profitPct); err != nil {
			return nil, fmt.Errorf("archive: parse profit percent: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (a *PostgresArchive) Ledger(ctx context.Context, gameID string) ([]model.Transaction, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT id, type, instrument_id,
		        quantity::TEXT, price::TEXT, fee::TEXT, realized_pnl::TEXT,
		        status, ts
		 FROM game_transactions
		 WHERE game_id = $1
		 ORDER BY ts ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("archive: query ledger: %w", err)
	}
	defer rows.Close()

	var ledger []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var qty, price, fee, pnl string
		if err := rows.Scan(&t.ID, &t.Type, &t.InstrumentID, &qty, &price, &fee, &pnl, &t.Status, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("archive: scan transaction: %w", err)
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("archive: parse quantity: %w", err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("archive: parse price: %w", err)
		}
		if t.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("archive: parse fee: %w", err)
		}
		if t.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("archive: parse realized pnl: %w", err)
		}
		ledger = append(ledger, t)
	}
	if len(ledger) == 0 {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		// Distinguish "unknown game" from "game with no trades".
		var exists bool
		if err := a.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM game_results WHERE game_id = $1)`, gameID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("archive: check game: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("archive: game %s not found", gameID)
		}
	}
	return ledger, rows.Err()
}
