package market

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tradequest/game-engine/internal/model"
)

// Rule produces the next price for an instrument on a tick. Rules are
// stateless with respect to the market — they see one instrument at a
// time and return its new price.
type Rule interface {
	Next(inst model.Instrument) decimal.Decimal
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(inst model.Instrument) decimal.Decimal

// Next calls f.
func (f RuleFunc) Next(inst model.Instrument) decimal.Decimal { return f(inst) }

// RandomWalk is a bounded random walk: each tick moves the price by a
// uniform fraction of itself in [-volatility, +volatility], clamped to
// the instrument's [MinPrice, MaxPrice] band.
type RandomWalk struct {
	volatility decimal.Decimal

	mu  sync.Mutex // one rule instance may serve many session markets
	rng *rand.Rand
}

// NewRandomWalk creates a walk with the given per-tick volatility
// (e.g. 0.05 for ±5%). The seed makes runs reproducible.
func NewRandomWalk(volatility decimal.Decimal, seed int64) *RandomWalk {
	return &RandomWalk{
		volatility: volatility,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Next returns the instrument's next price. Safe for concurrent use.
func (w *RandomWalk) Next(inst model.Instrument) decimal.Decimal {
	// Uniform in [-1, 1), scaled by volatility.
	w.mu.Lock()
	f := w.rng.Float64()*2 - 1
	w.mu.Unlock()
	drift := inst.CurrentPrice.Mul(w.volatility).Mul(decimal.NewFromFloat(f))
	next := inst.CurrentPrice.Add(drift)

	if next.LessThan(inst.MinPrice) {
		return inst.MinPrice
	}
	if next.GreaterThan(inst.MaxPrice) {
		return inst.MaxPrice
	}
	return next
}

// Hold is a rule that leaves every price unchanged. Useful for tests and
// for advancing the game clock without market movement.
var Hold = RuleFunc(func(inst model.Instrument) decimal.Decimal {
	return inst.CurrentPrice
})
