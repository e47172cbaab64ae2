package enrichment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain"
)

// BudgetAction says what happens to an extraction once a limit is reached.
type BudgetAction string

// Budget actions.
const (
	BudgetActionWarn   BudgetAction = "warn"
	BudgetActionReject BudgetAction = "reject"
)

// ParseBudgetAction maps a config value to an action. Empty means warn.
func ParseBudgetAction(s string) (BudgetAction, error) {
	switch a := BudgetAction(strings.ToLower(s)); a {
	case "":
		return BudgetActionWarn, nil
	case BudgetActionWarn, BudgetActionReject:
		return a, nil
	}
	return "", fmt.Errorf("unknown budget action %q", s)
}

// Budget scopes.
const (
	ScopeDaily      = "daily"
	ScopeMonthly    = "monthly"
	ScopeStoreDaily = "store_daily"
)

// BudgetLimits cap LLM tokens for one model. Zero means unlimited.
// StoreDaily applies to each source store separately.
type BudgetLimits struct {
	Daily      int64
	Monthly    int64
	StoreDaily int64
	Action     BudgetAction
}

// TokenUsage is what one completion consumed.
type TokenUsage struct {
	Prompt     int64
	Completion int64
}

// Total is prompt plus completion tokens.
func (u TokenUsage) Total() int64 { return u.Prompt + u.Completion }

// BudgetError reports the first exhausted scope. It unwraps to domain.ErrBudgetExceeded.
type BudgetError struct {
	Scope string
	Store string
	Used  int64
	Limit int64
}

func (e *BudgetError) Error() string {
	if e.Scope == ScopeStoreDaily {
		return fmt.Sprintf("llm %s token budget for store %s exhausted (%d/%d)", e.Scope, e.Store, e.Used, e.Limit)
	}
	return fmt.Sprintf("llm %s token budget exhausted (%d/%d)", e.Scope, e.Used, e.Limit)
}

func (e *BudgetError) Unwrap() error { return domain.ErrBudgetExceeded }

// CounterStore persists windowed counters.
type CounterStore interface {
	Load(ctx context.Context, keys []string) ([]int64, error)
	Add(ctx context.Context, key string, n int64, windowEnd time.Time) error
}

// window is one counter the current extraction falls into.
type window struct {
	scope string
	key   string
	end   time.Time
	limit int64
}

// ExtractionBudget counts the tokens LLM extraction spends per UTC day, per
// UTC month and per source store per day. Counter keys carry their window,
// so a rollover simply starts new keys.
type ExtractionBudget struct {
	mu     sync.Mutex
	model  string
	limits BudgetLimits
	used   map[string]int64
	store  CounterStore
	now    func() time.Time
	logger *zap.Logger
}

// NewExtractionBudget creates an in-memory budget. Attach a CounterStore with
// WithStore to share spend across restarts.
func NewExtractionBudget(model string, limits BudgetLimits, logger *zap.Logger) *ExtractionBudget {
	if limits.Action == "" {
		limits.Action = BudgetActionWarn
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionBudget{
		model:  model,
		limits: limits,
		used:   map[string]int64{},
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithStore persists counters in s. Windows are loaded lazily on first use.
func (b *ExtractionBudget) WithStore(s CounterStore) *ExtractionBudget {
	b.store = s
	return b
}

func (b *ExtractionBudget) windows(store string) []window {
	now := b.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prefix := domain.KeyPrefix + "budget:" + b.model + ":"
	dayStamp := day.Format("2006-01-02")

	ws := []window{
		{ScopeDaily, prefix + "day:" + dayStamp, day.AddDate(0, 0, 1), b.limits.Daily},
		{ScopeMonthly, prefix + "month:" + month.Format("2006-01"), month.AddDate(0, 1, 0), b.limits.Monthly},
	}
	if store != "" {
		ws = append(ws, window{ScopeStoreDaily, prefix + "store:" + store + ":day:" + dayStamp, day.AddDate(0, 0, 1), b.limits.StoreDaily})
	}
	return ws
}

// load must be called with mu held. It drops counters of closed windows
// (other stores' counters for today survive) and pulls unseen ones from the store.
func (b *ExtractionBudget) load(ctx context.Context, ws []window) {
	today := ws[0].key[strings.LastIndexByte(ws[0].key, ':'):]
	live := make(map[string]bool, len(ws))
	var missing []string
	for _, w := range ws {
		live[w.key] = true
		if _, ok := b.used[w.key]; !ok {
			missing = append(missing, w.key)
		}
	}
	for k := range b.used {
		if !live[k] && !strings.HasSuffix(k, today) {
			delete(b.used, k)
		}
	}
	if len(missing) == 0 {
		return
	}
	if b.store == nil {
		for _, k := range missing {
			b.used[k] = 0
		}
		return
	}
	vals, err := b.store.Load(ctx, missing)
	if err != nil {
		// Counted from zero; the store catches up on the next Add.
		b.logger.Warn("load llm token counters", zap.Strings("keys", missing), zap.Error(err))
		vals = make([]int64, len(missing))
	}
	for i, k := range missing {
		b.used[k] = vals[i]
	}
}

// Check returns a *BudgetError when store may not spend more tokens.
// Under the warn action the overrun is logged and nil is returned.
func (b *ExtractionBudget) Check(ctx context.Context, store string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ws := b.windows(store)
	b.load(ctx, ws)
	for _, w := range ws {
		if w.limit <= 0 || b.used[w.key] < w.limit {
			continue
		}
		berr := &BudgetError{Scope: w.scope, Store: store, Used: b.used[w.key], Limit: w.limit}
		if b.limits.Action == BudgetActionReject {
			return berr
		}
		b.logger.Warn("llm token budget overrun", zap.String("model", b.model), zap.Error(berr))
		return nil
	}
	return nil
}

// Record charges one completion to every window of store.
func (b *ExtractionBudget) Record(store string, u TokenUsage) {
	n := u.Total()
	if n <= 0 {
		return
	}
	b.mu.Lock()
	ws := b.windows(store)
	b.load(context.Background(), ws)
	for _, w := range ws {
		b.used[w.key] += n
	}
	s := b.store
	b.mu.Unlock()

	if s == nil {
		return
	}
	// Detached: tokens spent by a cancelled extraction still count.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, w := range ws {
		if err := s.Add(ctx, w.key, n, w.end); err != nil {
			b.logger.Warn("persist llm token counter", zap.String("key", w.key), zap.Error(err))
		}
	}
}

// Used returns the spend of the current windows, keyed by scope.
func (b *ExtractionBudget) Used(ctx context.Context, store string) map[string]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws := b.windows(store)
	b.load(ctx, ws)
	out := make(map[string]int64, len(ws))
	for _, w := range ws {
		out[w.scope] = b.used[w.key]
	}
	return out
}
