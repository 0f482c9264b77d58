// Package model defines the core domain types shared across the game engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset classes. One Instrument shape covers commodities, funds, stocks
// and crypto; the class tag tells them apart.
const (
	ClassCommodity = "COM"
	ClassCrypto    = "CRY"
	ClassStock     = "STOCK"
	ClassFund      = "FUND"
)

// Transaction types.
const (
	TxBuy  = "BUY"
	TxSell = "SELL"
)

// Transaction statuses. The engine only ever stores COMPLETED entries;
// a rejected command leaves the account untouched and writes nothing.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Game states.
const (
	GameActive = "ACTIVE"
	GameEnded  = "ENDED"
)

// Instrument is a tradable asset with a market-maintained current price.
// Everything except CurrentPrice is fixed at catalog creation.
type Instrument struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Class        string          `json:"class" db:"class"`
	Category     string          `json:"category" db:"category"`
	CurrentPrice decimal.Decimal `json:"current_price" db:"current_price"`
	MinPrice     decimal.Decimal `json:"min_price" db:"min_price"`
	MaxPrice     decimal.Decimal `json:"max_price" db:"max_price"`
}

// Position is a player's open holding in one instrument. Quantity is
// always positive; a holding sold down to zero is removed, never kept as
// a zero row. AvgPurchasePrice is the weighted average of all buy fills
// and is never recomputed on sells.
type Position struct {
	InstrumentID     string          `json:"instrument_id"`
	InstrumentName   string          `json:"instrument_name"`
	Quantity         decimal.Decimal `json:"quantity"`
	AvgPurchasePrice decimal.Decimal `json:"avg_purchase_price"`
	OpenedAt         time.Time       `json:"opened_at"`
}

// Transaction is an immutable ledger record of one fill.
// RealizedPnL is set on SELL entries only.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	Type         string          `json:"type" db:"type"`
	InstrumentID string          `json:"instrument_id" db:"instrument_id"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Fee          decimal.Decimal `json:"fee" db:"fee"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	Status       string          `json:"status" db:"status"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// Account is one player's trading state: cash, open positions, and the
// append-only ledger. Positions keep insertion order so snapshots render
// stably.
type Account struct {
	PlayerID     string
	Cash         decimal.Decimal
	StartingCash decimal.Decimal
	MaxPositions int
	Positions    []Position
	Ledger       []Transaction
	Progress     int
	Status       string
	CreatedAt    time.Time
}

// OpenPositions returns the number of open (non-zero) positions.
func (a *Account) OpenPositions() int {
	return len(a.Positions)
}

// FindPosition returns the index of the position for instrumentID,
// or -1 when the instrument is not held.
func (a *Account) FindPosition(instrumentID string) int {
	for i := range a.Positions {
		if a.Positions[i].InstrumentID == instrumentID {
			return i
		}
	}
	return -1
}

// PositionView is a fully valued position as shown on the dashboard.
type PositionView struct {
	InstrumentID         string          `json:"instrument_id"`
	InstrumentName       string          `json:"instrument_name"`
	Quantity             decimal.Decimal `json:"quantity"`
	AvgPurchasePrice     decimal.Decimal `json:"avg_purchase_price"`
	CurrentPrice         decimal.Decimal `json:"current_price"`
	MarketValue          decimal.Decimal `json:"market_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
}

// AccountSnapshot is the read model handed to the presentation layer.
// It is a value copy: mutating it never touches the session.
type AccountSnapshot struct {
	PlayerID            string          `json:"player_id"`
	Cash                decimal.Decimal `json:"cash"`
	TotalAssets         decimal.Decimal `json:"total_assets"`
	Positions           []PositionView  `json:"positions"`
	OpenPositions       int             `json:"open_positions"`
	MaxPositions        int             `json:"max_positions"`
	TransactionProgress int             `json:"transaction_progress"`
	Status              string          `json:"status"`
}

// Quote is an instrument plus its movement since the previous tick,
// as shown on the commodity list.
type Quote struct {
	Instrument
	PriceChange        decimal.Decimal `json:"price_change"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
}

// GameResult is the tuple produced when a game ends.
type GameResult struct {
	GameID        string          `json:"game_id" db:"game_id"`
	PlayerID      string          `json:"player_id" db:"player_id"`
	FinalAssets   decimal.Decimal `json:"final_assets" db:"final_assets"`
	Profit        decimal.Decimal `json:"profit" db:"profit"`
	ProfitPercent decimal.Decimal `json:"profit_percent" db:"profit_percent"`
	EndedAt       time.Time       `json:"ended_at" db:"ended_at"`
}

// RankEntry is one leaderboard row.
type RankEntry struct {
	PlayerID      string          `json:"player_id"`
	Username      string          `json:"username"`
	TotalAssets   decimal.Decimal `json:"total_assets"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
	Rank          int             `json:"rank"`
	GamesPlayed   int             `json:"games_played"`
}
