// Package market holds the catalog of tradable instruments and their
// current prices. It is the leaf component of the engine: it mutates
// prices and nothing else, and never touches an account.
package market

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tradequest/game-engine/internal/model"
)

// ErrInstrumentNotFound is returned when an unknown instrument ID is
// queried. It is the market's only failure mode.
var ErrInstrumentNotFound = errors.New("market: instrument not found")

// Market is an insertion-ordered catalog of instruments. Reads return
// copies so callers can never mutate stored state directly.
type Market struct {
	mu          sync.RWMutex
	instruments map[string]*model.Instrument
	order       []string
	prev        map[string]decimal.Decimal // price before the latest tick
}

// New creates an empty market.
func New() *Market {
	return &Market{
		instruments: make(map[string]*model.Instrument),
		prev:        make(map[string]decimal.Decimal),
	}
}

// NewWithDefaults creates a market seeded with the stock commodity catalog.
func NewWithDefaults() *Market {
	m := New()
	for _, inst := range DefaultInstruments() {
		// Seed data is static and has no duplicate IDs.
		_ = m.Add(inst)
	}
	return m
}

// Add registers a new instrument. Instruments are never removed during
// a session.
func (m *Market) Add(inst model.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instruments[inst.ID]; ok {
		return fmt.Errorf("market: instrument %s already registered", inst.ID)
	}
	stored := inst
	m.instruments[inst.ID] = &stored
	m.order = append(m.order, inst.ID)
	m.prev[inst.ID] = inst.CurrentPrice
	return nil
}

// GetPrice returns the current price for one instrument.
func (m *Market) GetPrice(instrumentID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instruments[instrumentID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrumentID)
	}
	return inst.CurrentPrice, nil
}

// Get returns a copy of one instrument.
func (m *Market) Get(instrumentID string) (model.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instruments[instrumentID]
	if !ok {
		return model.Instrument{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrumentID)
	}
	return *inst, nil
}

// ListInstruments returns all instruments in insertion order.
func (m *Market) ListInstruments() []model.Instrument {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Instrument, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.instruments[id])
	}
	return out
}

// Quotes returns all instruments in insertion order together with the
// price movement since the previous tick.
func (m *Market) Quotes() []model.Quote {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hundred := decimal.NewFromInt(100)
	out := make([]model.Quote, 0, len(m.order))
	for _, id := range m.order {
		inst := *m.instruments[id]
		prev := m.prev[id]
		change := inst.CurrentPrice.Sub(prev)
		pct := decimal.Zero
		if !prev.IsZero() {
			pct = change.Div(prev).Mul(hundred)
		}
		out = append(out, model.Quote{
			Instrument:         inst,
			PriceChange:        change,
			PriceChangePercent: pct,
		})
	}
	return out
}

// AdvanceTick evolves every instrument's price through the supplied rule.
// Prices are the only state it touches.
func (m *Market) AdvanceTick(rule Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		inst := m.instruments[id]
		m.prev[id] = inst.CurrentPrice
		inst.CurrentPrice = rule.Next(*inst)
	}
}

// Clone returns an independent market with the same catalog and prices.
// Sessions each hold their own clone so ticks never leak across games.
func (m *Market) Clone() *Market {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := New()
	for _, id := range m.order {
		inst := *m.instruments[id]
		c.instruments[id] = &inst
		c.order = append(c.order, id)
		c.prev[id] = m.prev[id]
	}
	return c
}

// DefaultInstruments is the stock commodity catalog: five commodities
// with their published price ranges.
func DefaultInstruments() []model.Instrument {
	d := decimal.NewFromFloat
	return []model.Instrument{
		{ID: "crude-oil", Name: "Crude Oil", Class: model.ClassCommodity, Category: "Energy",
			CurrentPrice: d(82.45), MinPrice: d(78.30), MaxPrice: d(85.60)},
		{ID: "gold", Name: "Gold", Class: model.ClassCommodity, Category: "Precious Metals",
			CurrentPrice: d(1987.50), MinPrice: d(1945.00), MaxPrice: d(2020.75)},
		{ID: "wheat", Name: "Wheat", Class: model.ClassCommodity, Category: "Agriculture",
			CurrentPrice: d(648.25), MinPrice: d(620.00), MaxPrice: d(675.80)},
		{ID: "natural-gas", Name: "Natural Gas", Class: model.ClassCommodity, Category: "Energy",
			CurrentPrice: d(3.82), MinPrice: d(3.45), MaxPrice: d(4.20)},
		{ID: "copper", Name: "Copper", Class: model.ClassCommodity, Category: "Industrial Metals",
			CurrentPrice: d(4.12), MinPrice: d(3.98), MaxPrice: d(4.35)},
	}
}
