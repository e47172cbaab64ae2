package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain"
)

var budgetDay = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newTestBudget(limits BudgetLimits) (*ExtractionBudget, *time.Time) {
	now := budgetDay
	b := NewExtractionBudget("gpt-4o-mini", limits, zap.NewNop())
	b.now = func() time.Time { return now }
	return b, &now
}

type memCounterStore struct {
	mu      sync.Mutex
	vals    map[string]int64
	ends    map[string]time.Time
	loads   int
	loadErr error
	addErr  error
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{vals: map[string]int64{}, ends: map[string]time.Time{}}
}

func (m *memCounterStore) Load(_ context.Context, keys []string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]int64, len(keys))
	for i, k := range keys {
		out[i] = m.vals[k]
	}
	return out, nil
}

func (m *memCounterStore) Add(_ context.Context, key string, n int64, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.vals[key] += n
	m.ends[key] = end
	return nil
}

func TestExtractionBudget_RejectNamesScope(t *testing.T) {
	tests := []struct {
		name   string
		limits BudgetLimits
		scope  string
	}{
		{"daily", BudgetLimits{Daily: 100}, ScopeDaily},
		{"monthly", BudgetLimits{Monthly: 100}, ScopeMonthly},
		{"per store", BudgetLimits{StoreDaily: 100}, ScopeStoreDaily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.limits.Action = BudgetActionReject
			b, _ := newTestBudget(tt.limits)
			b.Record("dsswres", TokenUsage{Prompt: 70, Completion: 30})

			err := b.Check(context.Background(), "dsswres")
			if !errors.Is(err, domain.ErrBudgetExceeded) {
				t.Fatalf("expected ErrBudgetExceeded, got %v", err)
			}
			var berr *BudgetError
			if !errors.As(err, &berr) || berr.Scope != tt.scope || berr.Used != 100 || berr.Limit != 100 {
				t.Errorf("budget error = %+v", berr)
			}
		})
	}
}

func TestExtractionBudget_StoreLimitIsPerStore(t *testing.T) {
	b, _ := newTestBudget(BudgetLimits{StoreDaily: 50, Action: BudgetActionReject})
	b.Record("dsswres", TokenUsage{Prompt: 50})

	if err := b.Check(context.Background(), "dsswres"); err == nil {
		t.Error("dsswres spent its share")
	}
	if err := b.Check(context.Background(), "tosca"); err != nil {
		t.Errorf("tosca has its own share: %v", err)
	}
}

func TestExtractionBudget_WarnLetsCallsThrough(t *testing.T) {
	b, _ := newTestBudget(BudgetLimits{Daily: 10, Action: BudgetActionWarn})
	b.Record("s", TokenUsage{Prompt: 20})
	if err := b.Check(context.Background(), "s"); err != nil {
		t.Fatalf("warn action must not fail, got %v", err)
	}
}

func TestExtractionBudget_UnlimitedAndNonPositive(t *testing.T) {
	b, _ := newTestBudget(BudgetLimits{Action: BudgetActionReject})
	b.Record("s", TokenUsage{Prompt: 1 << 40})
	b.Record("s", TokenUsage{})
	b.Record("s", TokenUsage{Prompt: -5})
	if err := b.Check(context.Background(), "s"); err != nil {
		t.Fatalf("unlimited budget failed: %v", err)
	}
	if got := b.Used(context.Background(), "s")[ScopeDaily]; got != 1<<40 {
		t.Errorf("daily used = %d", got)
	}
}

func TestExtractionBudget_Rollover(t *testing.T) {
	b, now := newTestBudget(BudgetLimits{Daily: 100, Monthly: 1000, Action: BudgetActionReject})
	ctx := context.Background()
	b.Record("s", TokenUsage{Prompt: 100})
	if b.Check(ctx, "s") == nil {
		t.Fatal("expected rejection before rollover")
	}

	*now = budgetDay.Add(24 * time.Hour)
	if err := b.Check(ctx, "s"); err != nil {
		t.Fatalf("new day must start empty: %v", err)
	}
	used := b.Used(ctx, "s")
	if used[ScopeDaily] != 0 || used[ScopeMonthly] != 100 {
		t.Errorf("after day rollover = %v", used)
	}

	*now = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	if got := b.Used(ctx, "s")[ScopeMonthly]; got != 0 {
		t.Errorf("monthly after month rollover = %d", got)
	}
	if len(b.used) != 3 {
		t.Errorf("closed windows kept: %v", b.used)
	}
}

func TestExtractionBudget_StorePersistsAndReloads(t *testing.T) {
	cs := newMemCounterStore()
	b, _ := newTestBudget(BudgetLimits{Daily: 100, Action: BudgetActionReject})
	b.WithStore(cs)
	b.Record("dsswres", TokenUsage{Prompt: 40, Completion: 20})

	wantKeys := map[string]time.Time{
		"swarmkb:budget:gpt-4o-mini:day:2026-10-17":               time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
		"swarmkb:budget:gpt-4o-mini:month:2026-10":                time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		"swarmkb:budget:gpt-4o-mini:store:dsswres:day:2026-10-17": time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
	}
	for k, end := range wantKeys {
		if cs.vals[k] != 60 || !cs.ends[k].Equal(end) {
			t.Errorf("%s = %d ending %v", k, cs.vals[k], cs.ends[k])
		}
	}

	// A restarted node picks the spend up from the store.
	restarted, _ := newTestBudget(BudgetLimits{Daily: 100, Action: BudgetActionReject})
	restarted.WithStore(cs)
	restarted.Record("dsswres", TokenUsage{Completion: 40})
	if err := restarted.Check(context.Background(), "dsswres"); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected reloaded spend to exhaust the day, got %v", err)
	}
	loads := cs.loads
	_ = restarted.Check(context.Background(), "dsswres")
	if cs.loads != loads {
		t.Error("known windows must not be reloaded")
	}
}

func TestExtractionBudget_StoreErrorsDegradeToMemory(t *testing.T) {
	cs := newMemCounterStore()
	cs.loadErr = errors.New("down")
	cs.addErr = errors.New("down")
	b, _ := newTestBudget(BudgetLimits{Daily: 10, Action: BudgetActionReject})
	b.WithStore(cs)

	b.Record("s", TokenUsage{Prompt: 10})
	if err := b.Check(context.Background(), "s"); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Errorf("in-memory spend must still count, got %v", err)
	}
}

func TestParseBudgetAction(t *testing.T) {
	for in, want := range map[string]BudgetAction{"": BudgetActionWarn, "warn": BudgetActionWarn, "REJECT": BudgetActionReject} {
		got, err := ParseBudgetAction(in)
		if err != nil || got != want {
			t.Errorf("ParseBudgetAction(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseBudgetAction("block"); err == nil {
		t.Error("expected error for unknown action")
	}
}
