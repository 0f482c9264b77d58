package game_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradequest/game-engine/internal/game"
	"github.com/tradequest/game-engine/internal/market"
	"github.com/tradequest/game-engine/internal/model"
	"github.com/tradequest/game-engine/internal/portfolio"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// testConfig is the default rule set with a deterministic tick rule so
// assertions never race a random walk.
func testConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.TickRule = market.Hold
	return cfg
}

func newSession(t *testing.T) *game.Session {
	t.Helper()
	s, err := game.New(testConfig(), "p1", market.NewWithDefaults())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func assertEq(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s: got %s, want %s", name, got, want)
	}
}

func TestNew_DebitsRegistrationFee(t *testing.T) {
	s := newSession(t)

	snap := s.Snapshot()
	assertEq(t, "cash", snap.Cash, d(99998))
	assertEq(t, "total assets", snap.TotalAssets, d(99998))
	if snap.Status != model.GameActive {
		t.Errorf("status: %s", snap.Status)
	}
	if snap.MaxPositions != 5 || snap.OpenPositions != 0 {
		t.Errorf("slots: %d/%d", snap.OpenPositions, snap.MaxPositions)
	}
	if snap.TransactionProgress != 0 {
		t.Errorf("progress: %d", snap.TransactionProgress)
	}
	if s.ID == "" {
		t.Error("session has no ID")
	}
}

func TestNew_FeeExceedsStartingCash(t *testing.T) {
	cfg := testConfig()
	cfg.StartingCash = d(1)
	cfg.RegistrationFee = d(2)

	_, err := game.New(cfg, "p1", market.NewWithDefaults())
	if !errors.Is(err, portfolio.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestBuyAndSellAll(t *testing.T) {
	s := newSession(t)

	snap, err := s.Buy("gold", d(10))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if snap.OpenPositions != 1 {
		t.Fatalf("expected 1 open position, got %d", snap.OpenPositions)
	}
	// 99998 - 10*1987.50*1.01
	assertEq(t, "cash after buy", snap.Cash, d(99998).Sub(d(20073.75)))

	snap, err = s.SellAll("gold")
	if err != nil {
		t.Fatalf("sell all: %v", err)
	}
	if snap.OpenPositions != 0 {
		t.Errorf("position survived sell-all: %d", snap.OpenPositions)
	}
	if len(s.Ledger()) != 2 {
		t.Errorf("ledger entries: %d", len(s.Ledger()))
	}
}

func TestSellAll_NoPosition(t *testing.T) {
	s := newSession(t)

	_, err := s.SellAll("gold")
	if !errors.Is(err, portfolio.ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestExpandLimit(t *testing.T) {
	s := newSession(t)

	// Fresh account: 50% of 99998 is well over the cap.
	assertEq(t, "expand cost", s.ExpandCost(), d(10))

	snap, err := s.ExpandLimit()
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if snap.MaxPositions != 6 {
		t.Errorf("max positions: %d", snap.MaxPositions)
	}
	assertEq(t, "cash after expand", snap.Cash, d(99988))

	// Repeat expansions recompute the cost each time.
	if _, err := s.ExpandLimit(); err != nil {
		t.Fatalf("second expand: %v", err)
	}
	if s.Snapshot().MaxPositions != 7 {
		t.Errorf("max positions after second expand: %d", s.Snapshot().MaxPositions)
	}
}

func TestExpandLimit_PoorAccountPaysHalfAssets(t *testing.T) {
	cfg := testConfig()
	cfg.StartingCash = d(12)
	cfg.RegistrationFee = d(2)
	s, err := game.New(cfg, "p1", market.NewWithDefaults())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	// Total assets are 10, so the cost is min(10, 5) = 5.
	assertEq(t, "expand cost", s.ExpandCost(), d(5))

	snap, err := s.ExpandLimit()
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	assertEq(t, "cash", snap.Cash, d(5))
}

func TestAdvanceYear_ProgressClampsAt100(t *testing.T) {
	s := newSession(t)

	for i := 1; i <= 4; i++ {
		snap, err := s.AdvanceYear()
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if snap.TransactionProgress != i*25 {
			t.Errorf("advance %d: progress %d", i, snap.TransactionProgress)
		}
	}

	// A fifth advance stays clamped and the game stays playable.
	snap, err := s.AdvanceYear()
	if err != nil {
		t.Fatalf("advance past 100: %v", err)
	}
	if snap.TransactionProgress != 100 {
		t.Errorf("progress: %d", snap.TransactionProgress)
	}
	if _, err := s.Buy("copper", d(1)); err != nil {
		t.Errorf("trade at progress 100: %v", err)
	}
}

func TestAdvanceYear_TicksMarketBeforeSnapshot(t *testing.T) {
	cfg := testConfig()
	cfg.TickRule = market.RuleFunc(func(inst model.Instrument) decimal.Decimal {
		return inst.CurrentPrice.Mul(d(2))
	})
	s, err := game.New(cfg, "p1", market.NewWithDefaults())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.Buy("copper", d(100)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	before := s.Snapshot()

	after, err := s.AdvanceYear()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}

	// The snapshot must already reflect the doubled prices.
	if !after.Positions[0].CurrentPrice.Equal(before.Positions[0].CurrentPrice.Mul(d(2))) {
		t.Errorf("snapshot price %s not ticked from %s",
			after.Positions[0].CurrentPrice, before.Positions[0].CurrentPrice)
	}
	if !after.TotalAssets.GreaterThan(before.TotalAssets) {
		t.Errorf("total assets did not rise: %s → %s", before.TotalAssets, after.TotalAssets)
	}
}

func TestEndGame(t *testing.T) {
	s := newSession(t)

	result, err := s.EndGame()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	assertEq(t, "final assets", result.FinalAssets, d(99998))
	assertEq(t, "profit", result.Profit, d(-2))
	assertEq(t, "profit pct", result.ProfitPercent, d(-0.002))
	if result.GameID != s.ID || result.PlayerID != "p1" {
		t.Errorf("result identity: %s/%s", result.GameID, result.PlayerID)
	}

	stored, ok := s.Result()
	if !ok {
		t.Fatal("result not stored")
	}
	assertEq(t, "stored final assets", stored.FinalAssets, result.FinalAssets)
}

func TestEndGame_RejectsFurtherCommands(t *testing.T) {
	s := newSession(t)
	if _, err := s.Buy("gold", d(1)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	frozen, err := s.EndGame()
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	cmds := map[string]func() error{
		"buy":     func() error { _, err := s.Buy("gold", d(1)); return err },
		"sell":    func() error { _, err := s.SellPartial("gold", d(1)); return err },
		"sellAll": func() error { _, err := s.SellAll("gold"); return err },
		"expand":  func() error { _, err := s.ExpandLimit(); return err },
		"advance": func() error { _, err := s.AdvanceYear(); return err },
		"end":     func() error { _, err := s.EndGame(); return err },
	}
	for name, cmd := range cmds {
		if err := cmd(); !errors.Is(err, game.ErrGameEnded) {
			t.Errorf("%s after end: expected ErrGameEnded, got %v", name, err)
		}
	}

	// The final snapshot stays frozen.
	snap := s.Snapshot()
	if snap.Status != model.GameEnded {
		t.Errorf("status: %s", snap.Status)
	}
	assertEq(t, "frozen total assets", snap.TotalAssets, frozen.FinalAssets)
}

func TestReset(t *testing.T) {
	base := market.NewWithDefaults()
	s, err := game.New(testConfig(), "p1", base)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.Buy("gold", d(5)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := s.EndGame(); err != nil {
		t.Fatalf("end: %v", err)
	}

	snap := s.Reset(base)
	assertEq(t, "cash", snap.Cash, d(99998))
	if snap.OpenPositions != 0 || snap.TransactionProgress != 0 {
		t.Errorf("residual state: %d positions, progress %d",
			snap.OpenPositions, snap.TransactionProgress)
	}
	if snap.Status != model.GameActive {
		t.Errorf("status: %s", snap.Status)
	}
	if len(s.Ledger()) != 0 {
		t.Errorf("ledger survived reset: %d entries", len(s.Ledger()))
	}
	if _, ok := s.Result(); ok {
		t.Error("result survived reset")
	}
	if _, err := s.Buy("copper", d(1)); err != nil {
		t.Errorf("trade after reset: %v", err)
	}
}

func TestSnapshot_IsValueCopy(t *testing.T) {
	s := newSession(t)
	if _, err := s.Buy("gold", d(5)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	snap := s.Snapshot()
	snap.Positions[0].Quantity = d(999)
	snap.Cash = decimal.Zero

	fresh := s.Snapshot()
	assertEq(t, "quantity", fresh.Positions[0].Quantity, d(5))
	if fresh.Cash.IsZero() {
		t.Error("mutating a snapshot changed session cash")
	}
}

func TestSessions_MarketsAreIsolated(t *testing.T) {
	base := market.NewWithDefaults()

	cfgA := testConfig()
	cfgA.TickRule = market.RuleFunc(func(inst model.Instrument) decimal.Decimal {
		return inst.MinPrice
	})
	a, err := game.New(cfgA, "p1", base)
	if err != nil {
		t.Fatalf("new a: %v", err)
	}
	b, err := game.New(testConfig(), "p2", base)
	if err != nil {
		t.Fatalf("new b: %v", err)
	}
	if _, err := b.Buy("gold", d(1)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	before := b.Snapshot().Positions[0].CurrentPrice

	if _, err := a.AdvanceYear(); err != nil {
		t.Fatalf("advance a: %v", err)
	}

	if !b.Snapshot().Positions[0].CurrentPrice.Equal(before) {
		t.Error("ticking one session's market moved another's prices")
	}
}

func TestAdvanceYear_ConcurrentSessions(t *testing.T) {
	// DefaultConfig shares one random-walk rule across every session the
	// manager starts; concurrent year advances must not race on its RNG.
	m := game.NewManager(game.DefaultConfig(), market.NewWithDefaults())

	a, err := m.Start("p1")
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	b, err := m.Start("p2")
	if err != nil {
		t.Fatalf("start b: %v", err)
	}

	var wg sync.WaitGroup
	for _, s := range []*game.Session{a, b} {
		wg.Add(1)
		go func(s *game.Session) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := s.AdvanceYear(); err != nil {
					t.Errorf("advance: %v", err)
					return
				}
			}
		}(s)
	}
	wg.Wait()

	for _, s := range []*game.Session{a, b} {
		if got := s.Snapshot().TransactionProgress; got != 100 {
			t.Errorf("progress: %d", got)
		}
	}
}

func TestManager(t *testing.T) {
	m := game.NewManager(testConfig(), market.NewWithDefaults())

	s, err := m.Start("p1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("count: %d", m.Count())
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != s {
		t.Error("Get returned a different session")
	}

	if _, err := m.Get("nope"); !errors.Is(err, game.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	if _, err := s.EndGame(); err != nil {
		t.Fatalf("end: %v", err)
	}
	reset, err := m.Reset(s.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Snapshot().Status != model.GameActive {
		t.Errorf("status after manager reset: %s", reset.Snapshot().Status)
	}
}

func TestManager_RemoveAndActiveCount(t *testing.T) {
	m := game.NewManager(testConfig(), market.NewWithDefaults())

	a, err := m.Start("p1")
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	b, err := m.Start("p2")
	if err != nil {
		t.Fatalf("start b: %v", err)
	}
	if m.ActiveCount() != 2 {
		t.Errorf("active count: %d", m.ActiveCount())
	}

	// An ended game stays registered but no longer counts as active.
	if _, err := a.EndGame(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if m.Count() != 2 {
		t.Errorf("count after end: %d", m.Count())
	}
	if m.ActiveCount() != 1 {
		t.Errorf("active count after end: %d", m.ActiveCount())
	}

	if err := m.Remove(a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("count after remove: %d", m.Count())
	}
	if _, err := m.Get(a.ID); !errors.Is(err, game.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Remove(a.ID); !errors.Is(err, game.ErrSessionNotFound) {
		t.Errorf("double remove: expected ErrSessionNotFound, got %v", err)
	}

	// The surviving session is untouched.
	if !b.Active() {
		t.Error("remaining session no longer active")
	}
}
