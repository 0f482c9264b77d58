// Package portfolio executes buys and sells against one player's account
// and derives position and account valuations.
//
// Every operation is atomic with respect to the account: inputs are
// validated in full before anything mutates, so a rejected command leaves
// cash, positions, and the ledger exactly as they were.
//
// All monetary values use shopspring/decimal — never float64 for money.
package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradequest/game-engine/internal/market"
	"github.com/tradequest/game-engine/internal/model"
)

var (
	// ErrInsufficientFunds is returned when a buy's cost plus fee exceeds
	// available cash.
	ErrInsufficientFunds = errors.New("portfolio: insufficient funds")

	// ErrPositionLimitExceeded is returned when opening a new instrument
	// position while already holding the maximum number of positions.
	ErrPositionLimitExceeded = errors.New("portfolio: position limit exceeded")

	// ErrPositionNotFound is returned when selling an instrument with no
	// open position.
	ErrPositionNotFound = errors.New("portfolio: position not found")

	// ErrInsufficientQuantity is returned when selling more units than the
	// position holds.
	ErrInsufficientQuantity = errors.New("portfolio: insufficient quantity")

	// ErrInvalidQuantity is returned for zero or negative trade quantities.
	ErrInvalidQuantity = errors.New("portfolio: quantity must be positive")
)

var hundred = decimal.NewFromInt(100)

// Valuation is the derived view of one position at a given price.
type Valuation struct {
	MarketValue          decimal.Decimal
	UnrealizedPnL        decimal.Decimal
	UnrealizedPnLPercent decimal.Decimal
}

// Buy purchases qty units of an instrument at the current market price,
// debiting cost plus fee and upserting the position with a recomputed
// weighted-average purchase price. Returns the updated position.
//
// The position-limit check runs before the funds check: opening a new
// instrument at the limit is rejected with ErrPositionLimitExceeded no
// matter how much cash is available.
func Buy(acct *model.Account, mkt *market.Market, instrumentID string, qty, feeRate decimal.Decimal) (model.Position, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return model.Position{}, ErrInvalidQuantity
	}

	inst, err := mkt.Get(instrumentID)
	if err != nil {
		return model.Position{}, err
	}

	idx := acct.FindPosition(instrumentID)
	if idx < 0 && acct.OpenPositions() >= acct.MaxPositions {
		return model.Position{}, fmt.Errorf("%w: %d/%d open", ErrPositionLimitExceeded,
			acct.OpenPositions(), acct.MaxPositions)
	}

	price := inst.CurrentPrice
	cost := qty.Mul(price)
	fee := cost.Mul(feeRate)
	total := cost.Add(fee)

	if total.GreaterThan(acct.Cash) {
		return model.Position{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds,
			total, acct.Cash)
	}

	// Validation complete; mutate.
	now := time.Now().UTC()
	acct.Cash = acct.Cash.Sub(total)

	if idx < 0 {
		acct.Positions = append(acct.Positions, model.Position{
			InstrumentID:     instrumentID,
			InstrumentName:   inst.Name,
			Quantity:         qty,
			AvgPurchasePrice: price,
			OpenedAt:         now,
		})
		idx = len(acct.Positions) - 1
	} else {
		pos := &acct.Positions[idx]
		oldQty := pos.Quantity
		newQty := oldQty.Add(qty)
		// Weighted average: (oldQty*oldAvg + qty*price) / (oldQty+qty)
		pos.AvgPurchasePrice = oldQty.Mul(pos.AvgPurchasePrice).Add(qty.Mul(price)).Div(newQty)
		pos.Quantity = newQty
	}

	acct.Ledger = append(acct.Ledger, model.Transaction{
		ID:           uuid.New().String(),
		Type:         model.TxBuy,
		InstrumentID: instrumentID,
		Quantity:     qty,
		Price:        price,
		Fee:          fee,
		Status:       model.StatusCompleted,
		Timestamp:    now,
	})

	return acct.Positions[idx], nil
}

// Sell disposes of qty units at the current market price, crediting
// proceeds minus fee and recording the realized P&L on the ledger entry.
// The average purchase price is never recomputed on a sell; a position
// sold to zero is removed outright.
func Sell(acct *model.Account, mkt *market.Market, instrumentID string, qty, feeRate decimal.Decimal) (model.Transaction, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return model.Transaction{}, ErrInvalidQuantity
	}

	inst, err := mkt.Get(instrumentID)
	if err != nil {
		return model.Transaction{}, err
	}

	idx := acct.FindPosition(instrumentID)
	if idx < 0 {
		return model.Transaction{}, fmt.Errorf("%w: %s", ErrPositionNotFound, instrumentID)
	}
	pos := &acct.Positions[idx]
	if qty.GreaterThan(pos.Quantity) {
		return model.Transaction{}, fmt.Errorf("%w: have %s, selling %s", ErrInsufficientQuantity,
			pos.Quantity, qty)
	}

	price := inst.CurrentPrice
	proceeds := qty.Mul(price)
	fee := proceeds.Mul(feeRate)
	realized := qty.Mul(price.Sub(pos.AvgPurchasePrice)).Sub(fee)

	// Validation complete; mutate.
	acct.Cash = acct.Cash.Add(proceeds.Sub(fee))
	pos.Quantity = pos.Quantity.Sub(qty)
	if pos.Quantity.IsZero() {
		acct.Positions = append(acct.Positions[:idx], acct.Positions[idx+1:]...)
	}

	tx := model.Transaction{
		ID:           uuid.New().String(),
		Type:         model.TxSell,
		InstrumentID: instrumentID,
		Quantity:     qty,
		Price:        price,
		Fee:          fee,
		RealizedPnL:  realized,
		Status:       model.StatusCompleted,
		Timestamp:    time.Now().UTC(),
	}
	acct.Ledger = append(acct.Ledger, tx)

	return tx, nil
}

// ValuePosition marks one position to the given price. Pure.
// The percent is defined as 0 when the cost basis is 0.
func ValuePosition(pos model.Position, currentPrice decimal.Decimal) Valuation {
	marketValue := pos.Quantity.Mul(currentPrice)
	pnl := pos.Quantity.Mul(currentPrice.Sub(pos.AvgPurchasePrice))

	costBasis := pos.Quantity.Mul(pos.AvgPurchasePrice)
	pct := decimal.Zero
	if !costBasis.IsZero() {
		pct = pnl.Div(costBasis).Mul(hundred)
	}

	return Valuation{
		MarketValue:          marketValue,
		UnrealizedPnL:        pnl,
		UnrealizedPnLPercent: pct,
	}
}

// ValueAccount returns total assets: cash plus the market value of every
// open position. Pure.
func ValueAccount(acct *model.Account, mkt *market.Market) decimal.Decimal {
	total := acct.Cash
	for _, pos := range acct.Positions {
		price, err := mkt.GetPrice(pos.InstrumentID)
		if err != nil {
			// Positions are only ever opened against catalog instruments,
			// and instruments are never deleted during a session.
			continue
		}
		total = total.Add(pos.Quantity.Mul(price))
	}
	return total
}
