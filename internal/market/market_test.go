package market_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradequest/game-engine/internal/market"
	"github.com/tradequest/game-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testInstrument(id string, price, min, max float64) model.Instrument {
	return model.Instrument{
		ID:           id,
		Name:         id,
		Class:        model.ClassCommodity,
		CurrentPrice: d(price),
		MinPrice:     d(min),
		MaxPrice:     d(max),
	}
}

func TestGetPrice(t *testing.T) {
	m := market.New()
	if err := m.Add(testInstrument("gold", 1987.50, 1945, 2020.75)); err != nil {
		t.Fatalf("add: %v", err)
	}

	price, err := m.GetPrice("gold")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if !price.Equal(d(1987.50)) {
		t.Errorf("expected 1987.50, got %s", price)
	}
}

func TestGetPrice_UnknownInstrument(t *testing.T) {
	m := market.New()

	_, err := m.GetPrice("nope")
	if !errors.Is(err, market.ErrInstrumentNotFound) {
		t.Errorf("expected ErrInstrumentNotFound, got %v", err)
	}
}

func TestAdd_Duplicate(t *testing.T) {
	m := market.New()
	if err := m.Add(testInstrument("gold", 1987.50, 1945, 2020.75)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.Add(testInstrument("gold", 1.0, 0, 2)); err == nil {
		t.Error("expected error registering duplicate instrument")
	}
}

func TestListInstruments_InsertionOrder(t *testing.T) {
	m := market.New()
	ids := []string{"wheat", "gold", "copper", "crude-oil"}
	for i, id := range ids {
		if err := m.Add(testInstrument(id, float64(i+1), 0.5, 10)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	// Order must be stable across repeated calls.
	for n := 0; n < 3; n++ {
		list := m.ListInstruments()
		if len(list) != len(ids) {
			t.Fatalf("expected %d instruments, got %d", len(ids), len(list))
		}
		for i, inst := range list {
			if inst.ID != ids[i] {
				t.Errorf("position %d: expected %s, got %s", i, ids[i], inst.ID)
			}
		}
	}
}

func TestListInstruments_ReturnsCopies(t *testing.T) {
	m := market.New()
	if err := m.Add(testInstrument("gold", 1987.50, 1945, 2020.75)); err != nil {
		t.Fatalf("add: %v", err)
	}

	list := m.ListInstruments()
	list[0].CurrentPrice = d(1)

	price, _ := m.GetPrice("gold")
	if !price.Equal(d(1987.50)) {
		t.Errorf("mutating a listed copy changed the stored price: %s", price)
	}
}

func TestAdvanceTick_AppliesRule(t *testing.T) {
	m := market.New()
	if err := m.Add(testInstrument("gold", 1987.50, 1945, 2020.75)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.Add(testInstrument("copper", 4.12, 3.98, 4.35)); err != nil {
		t.Fatalf("add: %v", err)
	}

	double := market.RuleFunc(func(inst model.Instrument) decimal.Decimal {
		return inst.CurrentPrice.Mul(d(2))
	})
	m.AdvanceTick(double)

	gold, _ := m.GetPrice("gold")
	if !gold.Equal(d(3975.00)) {
		t.Errorf("expected 3975.00, got %s", gold)
	}
	copper, _ := m.GetPrice("copper")
	if !copper.Equal(d(8.24)) {
		t.Errorf("expected 8.24, got %s", copper)
	}
}

func TestAdvanceTick_Hold(t *testing.T) {
	m := market.NewWithDefaults()
	before := m.ListInstruments()

	m.AdvanceTick(market.Hold)

	after := m.ListInstruments()
	for i := range before {
		if !before[i].CurrentPrice.Equal(after[i].CurrentPrice) {
			t.Errorf("%s moved under Hold: %s → %s",
				before[i].ID, before[i].CurrentPrice, after[i].CurrentPrice)
		}
	}
}

func TestRandomWalk_StaysInBounds(t *testing.T) {
	m := market.New()
	if err := m.Add(testInstrument("gas", 3.82, 3.45, 4.20)); err != nil {
		t.Fatalf("add: %v", err)
	}

	// High volatility forces clamping within a few ticks.
	walk := market.NewRandomWalk(d(0.5), 42)
	for i := 0; i < 200; i++ {
		m.AdvanceTick(walk)
		price, _ := m.GetPrice("gas")
		if price.LessThan(d(3.45)) || price.GreaterThan(d(4.20)) {
			t.Fatalf("tick %d: price %s escaped [3.45, 4.20]", i, price)
		}
	}
}

func TestRandomWalk_Deterministic(t *testing.T) {
	run := func() decimal.Decimal {
		m := market.New()
		if err := m.Add(testInstrument("gold", 1987.50, 1945, 2020.75)); err != nil {
			t.Fatalf("add: %v", err)
		}
		walk := market.NewRandomWalk(d(0.05), 7)
		for i := 0; i < 10; i++ {
			m.AdvanceTick(walk)
		}
		price, _ := m.GetPrice("gold")
		return price
	}

	a, b := run(), run()
	if !a.Equal(b) {
		t.Errorf("same seed produced different prices: %s vs %s", a, b)
	}
}

func TestQuotes_TrackLatestMove(t *testing.T) {
	m := market.New()
	if err := m.Add(testInstrument("gold", 100, 50, 300)); err != nil {
		t.Fatalf("add: %v", err)
	}

	m.AdvanceTick(market.RuleFunc(func(inst model.Instrument) decimal.Decimal {
		return d(110)
	}))

	quotes := m.Quotes()
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	if !quotes[0].PriceChange.Equal(d(10)) {
		t.Errorf("expected change 10, got %s", quotes[0].PriceChange)
	}
	if !quotes[0].PriceChangePercent.Equal(d(10)) {
		t.Errorf("expected change 10%%, got %s", quotes[0].PriceChangePercent)
	}
}

func TestClone_Isolated(t *testing.T) {
	m := market.NewWithDefaults()
	c := m.Clone()

	c.AdvanceTick(market.RuleFunc(func(inst model.Instrument) decimal.Decimal {
		return inst.MinPrice
	}))

	orig, _ := m.GetPrice("gold")
	cloned, _ := c.GetPrice("gold")
	if orig.Equal(cloned) {
		t.Error("tick on clone moved the original market")
	}
	if !orig.Equal(d(1987.50)) {
		t.Errorf("original price changed: %s", orig)
	}
}

func TestDefaultInstruments_Catalog(t *testing.T) {
	m := market.NewWithDefaults()
	list := m.ListInstruments()
	if len(list) != 5 {
		t.Fatalf("expected 5 default instruments, got %d", len(list))
	}
	if list[0].ID != "crude-oil" || !list[0].CurrentPrice.Equal(d(82.45)) {
		t.Errorf("unexpected first instrument: %s @ %s", list[0].ID, list[0].CurrentPrice)
	}
	for _, inst := range list {
		if inst.Class != model.ClassCommodity {
			t.Errorf("%s: expected class COM, got %s", inst.ID, inst.Class)
		}
		if inst.MinPrice.GreaterThan(inst.CurrentPrice) || inst.MaxPrice.LessThan(inst.CurrentPrice) {
			t.Errorf("%s: current price %s outside [%s, %s]",
				inst.ID, inst.CurrentPrice, inst.MinPrice, inst.MaxPrice)
		}
	}
}
