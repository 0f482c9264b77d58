// Package game drives the turn-based progression of one trading game:
// starting, trading, expanding the position limit, advancing years, and
// ending with a final score.
//
// Each session owns a private market clone and serializes its commands
// behind a mutex, so every player intent runs to completion before the
// next is accepted and concurrent sessions never share mutable state.
package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradequest/game-engine/internal/market"
	"github.com/tradequest/game-engine/internal/model"
	"github.com/tradequest/game-engine/internal/portfolio"
)

// ErrGameEnded is returned by every command issued after EndGame.
var ErrGameEnded = errors.New("game: game has ended")

// Config holds the game's tunable rules. Defaults: $100,000 starting
// cash, $2 registration fee, 5 position slots, 1% fee, expansion at
// min($10, 50% of total assets), years advancing progress in steps of
// 25 up to 100.
type Config struct {
	StartingCash    decimal.Decimal
	RegistrationFee decimal.Decimal
	MaxPositions    int
	FeeRate         decimal.Decimal
	ExpandCap       decimal.Decimal
	ExpandRate      decimal.Decimal
	YearStep        int
	TickRule        market.Rule
}

// DefaultConfig returns the stock rule set with a time-seeded random
// walk at 5% per-tick volatility.
func DefaultConfig() Config {
	return Config{
		StartingCash:    decimal.NewFromInt(100000),
		RegistrationFee: decimal.NewFromInt(2),
		MaxPositions:    5,
		FeeRate:         decimal.NewFromFloat(0.01),
		ExpandCap:       decimal.NewFromInt(10),
		ExpandRate:      decimal.NewFromFloat(0.5),
		YearStep:        25,
		TickRule:        market.NewRandomWalk(decimal.NewFromFloat(0.05), time.Now().UnixNano()),
	}
}

// Session is one running game: a player account plus a private market.
type Session struct {
	ID string

	mu      sync.Mutex
	cfg     Config
	account model.Account
	market  *market.Market
	result  *model.GameResult // set once on EndGame
}

// New starts a game for playerID against a clone of the base market.
// The registration fee is debited from the starting allotment; in this
// domain the fee is nominal, but the contract still checks it.
func New(cfg Config, playerID string, base *market.Market) (*Session, error) {
	if cfg.RegistrationFee.GreaterThan(cfg.StartingCash) {
		return nil, fmt.Errorf("%w: registration fee %s exceeds starting cash %s",
			portfolio.ErrInsufficientFunds, cfg.RegistrationFee, cfg.StartingCash)
	}

	s := &Session{
		ID:     uuid.New().String(),
		cfg:    cfg,
		market: base.Clone(),
	}
	s.account = s.newAccount(playerID)
	return s, nil
}

func (s *Session) newAccount(playerID string) model.Account {
	return model.Account{
		PlayerID:     playerID,
		Cash:         s.cfg.StartingCash.Sub(s.cfg.RegistrationFee),
		StartingCash: s.cfg.StartingCash,
		MaxPositions: s.cfg.MaxPositions,
		Status:       model.GameActive,
		CreatedAt:    time.Now().UTC(),
	}
}

// Buy purchases qty units of an instrument.
func (s *Session) Buy(instrumentID string, qty decimal.Decimal) (model.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.active(); err != nil {
		return model.AccountSnapshot{}, err
	}
	if _, err := portfolio.Buy(&s.account, s.market, instrumentID, qty, s.cfg.FeeRate); err != nil {
		return model.AccountSnapshot{}, err
	}
	return s.snapshot(), nil
}

// SellPartial sells qty units of a held instrument.
func (s *Session) SellPartial(instrumentID string, qty decimal.Decimal) (model.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.active(); err != nil {
		return model.AccountSnapshot{}, err
	}
	if _, err := portfolio.Sell(&s.account, s.market, instrumentID, qty, s.cfg.FeeRate); err != nil {
		return model.AccountSnapshot{}, err
	}
	return s.snapshot(), nil
}

// SellAll closes the full position in one instrument.
func (s *Session) SellAll(instrumentID string) (model.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.active(); err != nil {
		return model.AccountSnapshot{}, err
	}
	idx := s.account.FindPosition(instrumentID)
	if idx < 0 {
		return model.AccountSnapshot{}, fmt.Errorf("%w: %s", portfolio.ErrPositionNotFound, instrumentID)
	}
	qty := s.account.Positions[idx].Quantity
	if _, err := portfolio.Sell(&s.account, s.market, instrumentID, qty, s.cfg.FeeRate); err != nil {
		return model.AccountSnapshot{}, err
	}
	return s.snapshot(), nil
}

// ExpandLimit buys one more position slot. The cost is recomputed fresh
// from current total assets on every call: min(cap, totalAssets*rate).
func (s *Session) ExpandLimit() (model.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.active(); err != nil {
		return model.AccountSnapshot{}, err
	}

	cost := s.expandCost()
	if cost.GreaterThan(s.account.Cash) {
		return model.AccountSnapshot{}, fmt.Errorf("%w: expansion costs %s, have %s",
			portfolio.ErrInsufficientFunds, cost, s.account.Cash)
	}

	s.account.Cash = s.account.Cash.Sub(cost)
	s.account.MaxPositions++
	return s.snapshot(), nil
}

// ExpandCost reports what ExpandLimit would charge right now.
func (s *Session) ExpandCost() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expandCost()
}

func (s *Session) expandCost() decimal.Decimal {
	cost := portfolio.ValueAccount(&s.account, s.market).Mul(s.cfg.ExpandRate)
	if cost.GreaterThan(s.cfg.ExpandCap) {
		cost = s.cfg.ExpandCap
	}
	return cost
}

// AdvanceYear ticks the market so positions revalue against the new
// year's prices, then bumps transaction progress by the configured step,
// clamped to 100. Progress is a display metric only; reaching 100 does
// not end the game.
func (s *Session) AdvanceYear() (model.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.active(); err != nil {
		return model.AccountSnapshot{}, err
	}

	s.market.AdvanceTick(s.cfg.TickRule)

	s.account.Progress += s.cfg.YearStep
	if s.account.Progress > 100 {
		s.account.Progress = 100
	}
	return s.snapshot(), nil
}

// EndGame closes the session and returns the final result. Every command
// after this fails with ErrGameEnded; the final snapshot stays frozen.
func (s *Session) EndGame() (model.GameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.active(); err != nil {
		return model.GameResult{}, err
	}

	final := portfolio.ValueAccount(&s.account, s.market)
	profit := final.Sub(s.account.StartingCash)
	pct := decimal.Zero
	if !s.account.StartingCash.IsZero() {
		pct = profit.Div(s.account.StartingCash).Mul(decimal.NewFromInt(100))
	}

	s.account.Status = model.GameEnded
	s.result = &model.GameResult{
		GameID:        s.ID,
		PlayerID:      s.account.PlayerID,
		FinalAssets:   final,
		Profit:        profit,
		ProfitPercent: pct,
		EndedAt:       time.Now().UTC(),
	}
	return *s.result, nil
}

// Reset discards all state and starts a fresh Active account with the
// configured starting cash, zero positions, and zero progress.
func (s *Session) Reset(base *market.Market) model.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	playerID := s.account.PlayerID
	s.account = s.newAccount(playerID)
	s.market = base.Clone()
	s.result = nil
	return s.snapshot()
}

// Snapshot returns the current read model.
func (s *Session) Snapshot() model.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Quotes returns the session market's current quote board.
func (s *Session) Quotes() []model.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.market.Quotes()
}

// Ledger returns a copy of the completed-transaction ledger, oldest first.
func (s *Session) Ledger() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Transaction, len(s.account.Ledger))
	copy(out, s.account.Ledger)
	return out
}

// Active reports whether the game is still accepting commands.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.Status == model.GameActive
}

// Result returns the final result once the game has ended.
func (s *Session) Result() (model.GameResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return model.GameResult{}, false
	}
	return *s.result, true
}

func (s *Session) active() error {
	if s.account.Status != model.GameActive {
		return ErrGameEnded
	}
	return nil
}

// snapshot builds the read model. Callers hold s.mu.
func (s *Session) snapshot() model.AccountSnapshot {
	views := make([]model.PositionView, 0, len(s.account.Positions))
	total := s.account.Cash

	for _, pos := range s.account.Positions {
		price, err := s.market.GetPrice(pos.InstrumentID)
		if err != nil {
			continue
		}
		v := portfolio.ValuePosition(pos, price)
		total = total.Add(v.MarketValue)
		views = append(views, model.PositionView{
			InstrumentID:         pos.InstrumentID,
			InstrumentName:       pos.InstrumentName,
			Quantity:             pos.Quantity,
			AvgPurchasePrice:     pos.AvgPurchasePrice,
			CurrentPrice:         price,
			MarketValue:          v.MarketValue,
			UnrealizedPnL:        v.UnrealizedPnL,
			UnrealizedPnLPercent: v.UnrealizedPnLPercent,
		})
	}

	return model.AccountSnapshot{
		PlayerID:            s.account.PlayerID,
		Cash:                s.account.Cash,
		TotalAssets:         total,
		Positions:           views,
		OpenPositions:       s.account.OpenPositions(),
		MaxPositions:        s.account.MaxPositions,
		TransactionProgress: s.account.Progress,
		Status:              s.account.Status,
	}
}
