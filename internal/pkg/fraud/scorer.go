// Package fraud computes an advisory risk signal before large or rapid
// charges. Triggered heuristics become named factors on the order; past a
// threshold the order is flagged for manual review. The scorer never fails a
// payment on its own authority.
package fraud

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/app/repository"
	"github.com/obafemi/settlecore/internal/pkg/apperrors"
)

// CachePolicy decides what happens when the counter backend is unavailable.
// The source of these heuristics silently continued without the check; here
// the choice is explicit and testable.
type CachePolicy string

const (
	// PolicySkip drops counter-based heuristics for this evaluation.
	PolicySkip CachePolicy = "skip"
	// PolicyBlock fails the evaluation with a retryable error.
	PolicyBlock CachePolicy = "block"
	// PolicyUseStale falls back to the last value seen in this process.
	PolicyUseStale CachePolicy = "use_stale"
)

// Risk factor names attached to order metadata.
const (
	FactorRapidAttempts    = "rapid_attempts"
	FactorRepeatedFailures = "repeated_failures"
	FactorSharedSourceIP   = "shared_source_ip"
	FactorAmountAboveAvg   = "amount_above_trailing_average"
	FactorNewAccount       = "new_account"
)

// Config tunes the heuristics.
type Config struct {
	Window             time.Duration
	MaxAttempts        int64
	MaxFailures        int64
	MaxUsersPerIP      int64
	AmountMultiplier   decimal.Decimal
	TrailingWindow     time.Duration
	MinAccountAge      time.Duration
	ReviewThreshold    int
	OnCacheUnavailable CachePolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Window:             10 * time.Minute,
		MaxAttempts:        5,
		MaxFailures:        3,
		MaxUsersPerIP:      3,
		AmountMultiplier:   decimal.NewFromInt(3),
		TrailingWindow:     30 * 24 * time.Hour,
		MinAccountAge:      24 * time.Hour,
		ReviewThreshold:    2,
		OnCacheUnavailable: PolicySkip,
	}
}

// Input is one charge attempt to evaluate.
type Input struct {
	OrderID          uint
	UserID           uint
	SourceIP         string
	Amount           decimal.Decimal
	AccountCreatedAt time.Time
}

// Result lists the triggered factors. RequiresReview is set when the factor
// count reaches the configured threshold.
type Result struct {
	Factors        []string
	RequiresReview bool
}

// Scorer evaluates risk heuristics over counter and ledger state.
type Scorer struct {
	counters CounterStore
	payments repository.PaymentRepository
	cfg      Config

	mu    sync.Mutex
	stale map[string]int64
}

// NewScorer creates a scorer over the given counter store and payment ledger.
func NewScorer(counters CounterStore, payments repository.PaymentRepository, cfg Config) *Scorer {
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = DefaultConfig().ReviewThreshold
	}
	if cfg.OnCacheUnavailable == "" {
		cfg.OnCacheUnavailable = PolicySkip
	}
	return &Scorer{
		counters: counters,
		payments: payments,
		cfg:      cfg,
		stale:    map[string]int64{},
	}
}

// RecordAttempt bumps the per-user attempt counter and the per-IP user set.
// Counter errors are logged, never surfaced: bookkeeping must not block a
// charge.
func (s *Scorer) RecordAttempt(ctx context.Context, userID uint, sourceIP string) {
	if _, err := s.counters.Increment(ctx, attemptKey(userID), s.cfg.Window); err != nil {
		log.Warnf("[Fraud] attempt counter unavailable: %v", err)
	}
	if sourceIP != "" {
		if err := s.counters.AddToSet(ctx, ipUsersKey(sourceIP), userKeyMember(userID), s.cfg.Window); err != nil {
			log.Warnf("[Fraud] ip set unavailable: %v", err)
		}
	}
}

// RecordFailure bumps the per-user failure counter.
func (s *Scorer) RecordFailure(ctx context.Context, userID uint, sourceIP string) {
	_ = sourceIP
	if _, err := s.counters.Increment(ctx, failureKey(userID), s.cfg.Window); err != nil {
		log.Warnf("[Fraud] failure counter unavailable: %v", err)
	}
}

// Score evaluates all heuristics for one attempt.
func (s *Scorer) Score(ctx context.Context, in Input) (*Result, error) {
	var factors []string

	attempts, ok, err := s.read(ctx, attemptKey(in.UserID), s.counters.Count)
	if err != nil {
		return nil, err
	}
	if ok && attempts >= s.cfg.MaxAttempts {
		factors = append(factors, FactorRapidAttempts)
	}

	failures, ok, err := s.read(ctx, failureKey(in.UserID), s.counters.Count)
	if err != nil {
		return nil, err
	}
	if ok && failures >= s.cfg.MaxFailures {
		factors = append(factors, FactorRepeatedFailures)
	}

	if in.SourceIP != "" {
		ipUsers, ok, err := s.read(ctx, ipUsersKey(in.SourceIP), s.counters.SetCardinality)
		if err != nil {
			return nil, err
		}
		if ok && ipUsers >= s.cfg.MaxUsersPerIP {
			factors = append(factors, FactorSharedSourceIP)
		}
	}

	avg, err := s.payments.AveragePaidAmountSince(in.UserID, time.Now().Add(-s.cfg.TrailingWindow))
	if err != nil {
		return nil, err
	}
	if avg.IsPositive() && in.Amount.GreaterThan(avg.Mul(s.cfg.AmountMultiplier)) {
		factors = append(factors, FactorAmountAboveAvg)
	}

	if !in.AccountCreatedAt.IsZero() && time.Since(in.AccountCreatedAt) < s.cfg.MinAccountAge {
		factors = append(factors, FactorNewAccount)
	}

	return &Result{
		Factors:        factors,
		RequiresReview: len(factors) >= s.cfg.ReviewThreshold,
	}, nil
}

// read applies the cache-unavailability policy to a counter read.
func (s *Scorer) read(ctx context.Context, key string, fn func(context.Context, string) (int64, error)) (int64, bool, error) {
	val, err := fn(ctx, key)
	if err == nil {
		s.mu.Lock()
		s.stale[key] = val
		s.mu.Unlock()
		return val, true, nil
	}

	switch s.cfg.OnCacheUnavailable {
	case PolicyBlock:
		return 0, false, apperrors.ExternalService("risk counters unavailable", err)
	case PolicyUseStale:
		s.mu.Lock()
		val, ok := s.stale[key]
		s.mu.Unlock()
		if ok {
			log.Warnf("[Fraud] counter %s unavailable, using stale value %d", key, val)
			return val, true, nil
		}
		fallthrough
	default:
		log.Warnf("[Fraud] counter %s unavailable, skipping heuristic: %v", key, err)
		return 0, false, nil
	}
}

func userKeyMember(userID uint) string {
	return "u:" + decimal.NewFromInt(int64(userID)).String()
}
