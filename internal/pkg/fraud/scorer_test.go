package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/app/repository/mocks"
	"github.com/obafemi/settlecore/internal/pkg/apperrors"
)

// memCounters is an in-memory CounterStore. Setting failing simulates a
// counter backend outage.
type memCounters struct {
	counts  map[string]int64
	sets    map[string]map[string]bool
	failing bool
}

func newMemCounters() *memCounters {
	return &memCounters{counts: map[string]int64{}, sets: map[string]map[string]bool{}}
}

var errCountersDown = errors.New("counters down")

func (m *memCounters) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.failing {
		return 0, errCountersDown
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memCounters) Count(_ context.Context, key string) (int64, error) {
	if m.failing {
		return 0, errCountersDown
	}
	return m.counts[key], nil
}

func (m *memCounters) AddToSet(_ context.Context, key, member string, _ time.Duration) error {
	if m.failing {
		return errCountersDown
	}
	if m.sets[key] == nil {
		m.sets[key] = map[string]bool{}
	}
	m.sets[key][member] = true
	return nil
}

func (m *memCounters) SetCardinality(_ context.Context, key string) (int64, error) {
	if m.failing {
		return 0, errCountersDown
	}
	return int64(len(m.sets[key])), nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func cleanInput() Input {
	return Input{
		OrderID:          1,
		UserID:           1,
		SourceIP:         "203.0.113.7",
		Amount:           dec("100.00"),
		AccountCreatedAt: time.Now().Add(-30 * 24 * time.Hour),
	}
}

func TestScoreCleanAttempt(t *testing.T) {
	store := mocks.NewStore()
	scorer := NewScorer(newMemCounters(), store.Repositories().Payment, DefaultConfig())

	res, err := scorer.Score(context.Background(), cleanInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Factors) != 0 || res.RequiresReview {
		t.Fatalf("expected no factors, got %+v", res)
	}
}

func TestScoreRapidAttemptsAndFailures(t *testing.T) {
	store := mocks.NewStore()
	counters := newMemCounters()
	scorer := NewScorer(counters, store.Repositories().Payment, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		scorer.RecordAttempt(ctx, 1, "203.0.113.7")
	}
	for i := 0; i < 3; i++ {
		scorer.RecordFailure(ctx, 1, "203.0.113.7")
	}

	res, err := scorer.Score(ctx, cleanInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasFactor(res, FactorRapidAttempts) || !hasFactor(res, FactorRepeatedFailures) {
		t.Fatalf("expected attempt and failure factors, got %v", res.Factors)
	}
	if !res.RequiresReview {
		t.Fatalf("two factors must cross the review threshold")
	}
}

func TestScoreSharedSourceIP(t *testing.T) {
	store := mocks.NewStore()
	counters := newMemCounters()
	scorer := NewScorer(counters, store.Repositories().Payment, DefaultConfig())
	ctx := context.Background()

	for userID := uint(1); userID <= 3; userID++ {
		scorer.RecordAttempt(ctx, userID, "203.0.113.7")
	}

	res, err := scorer.Score(ctx, cleanInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasFactor(res, FactorSharedSourceIP) {
		t.Fatalf("expected shared IP factor, got %v", res.Factors)
	}
}

func TestScoreAmountAboveTrailingAverage(t *testing.T) {
	store := mocks.NewStore()
	userID := store.AddUser(models.User{Email: "ada@example.com"})
	orderID := store.AddOrder(models.Order{UserID: userID, Status: models.OrderStatusPaid})
	store.AddPayment(models.Payment{
		OrderID:   orderID,
		Gateway:   models.GatewayPaystack,
		Reference: "SC-hist-1",
		Amount:    dec("100.00"),
		Status:    models.PaymentStatusPaid,
		CreatedAt: time.Now().Add(-24 * time.Hour),
	})
	scorer := NewScorer(newMemCounters(), store.Repositories().Payment, DefaultConfig())

	in := cleanInput()
	in.UserID = userID
	in.Amount = dec("1000.00") // 10x the trailing average
	res, err := scorer.Score(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasFactor(res, FactorAmountAboveAvg) {
		t.Fatalf("expected amount factor, got %v", res.Factors)
	}
}

func TestScoreNewAccount(t *testing.T) {
	store := mocks.NewStore()
	scorer := NewScorer(newMemCounters(), store.Repositories().Payment, DefaultConfig())

	in := cleanInput()
	in.AccountCreatedAt = time.Now().Add(-time.Hour)
	res, err := scorer.Score(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasFactor(res, FactorNewAccount) {
		t.Fatalf("expected new account factor, got %v", res.Factors)
	}
	if res.RequiresReview {
		t.Fatalf("one factor must not cross the review threshold")
	}
}

func TestCacheOutagePolicySkip(t *testing.T) {
	store := mocks.NewStore()
	counters := newMemCounters()
	counters.failing = true
	scorer := NewScorer(counters, store.Repositories().Payment, DefaultConfig())

	res, err := scorer.Score(context.Background(), cleanInput())
	if err != nil {
		t.Fatalf("skip policy must not surface counter errors, got %v", err)
	}
	if len(res.Factors) != 0 {
		t.Fatalf("expected counter heuristics skipped, got %v", res.Factors)
	}
}

func TestCacheOutagePolicyBlock(t *testing.T) {
	store := mocks.NewStore()
	counters := newMemCounters()
	counters.failing = true
	cfg := DefaultConfig()
	cfg.OnCacheUnavailable = PolicyBlock
	scorer := NewScorer(counters, store.Repositories().Payment, cfg)

	_, err := scorer.Score(context.Background(), cleanInput())
	if !errors.Is(err, apperrors.ErrExternalService) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
}

func TestCacheOutagePolicyUseStale(t *testing.T) {
	store := mocks.NewStore()
	counters := newMemCounters()
	cfg := DefaultConfig()
	cfg.OnCacheUnavailable = PolicyUseStale
	scorer := NewScorer(counters, store.Repositories().Payment, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		scorer.RecordAttempt(ctx, 1, "203.0.113.7")
	}
	if _, err := scorer.Score(ctx, cleanInput()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counters.failing = true
	res, err := scorer.Score(ctx, cleanInput())
	if err != nil {
		t.Fatalf("stale policy must not surface counter errors, got %v", err)
	}
	if !hasFactor(res, FactorRapidAttempts) {
		t.Fatalf("expected stale attempt counter to keep the factor, got %v", res.Factors)
	}
}

func hasFactor(res *Result, name string) bool {
	for _, f := range res.Factors {
		if f == name {
			return true
		}
	}
	return false
}
