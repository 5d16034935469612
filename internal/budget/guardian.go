// Package budget gates admissions on the monthly provider spend and records the charge of
// each generation in the billing ledger.
package budget

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
)

const (
	HardStopRatio = 1.0
	SoftStopRatio = 0.95
	WarningRatio  = 0.8
)

// Ledger is the read side of the billing ledger the guardian needs.
type Ledger interface {
	SumBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// Alerter delivers budget warnings without blocking. BudgetAlert reports whether the alert
// was accepted for delivery.
type Alerter interface {
	BudgetAlert(info domain.BudgetInfo, message string) bool
}

// Observer receives every admission decision; code is empty when allowed.
type Observer interface {
	ObserveBudget(code string, usagePercent float64)
}

// Caller identifies who is asking for admission.
type Caller struct {
	ProjectID  string
	Privileged bool
}

// Decision is the outcome of CheckBudget.
type Decision struct {
	Allowed           bool
	Budget            domain.BudgetInfo
	Code              domain.ErrorCode
	RetryAfterSeconds int64
}

// Err converts a rejection into a *domain.Error; it returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	var msg string
	switch d.Code {
	case domain.CodeServiceTemporarilyUnavailable:
		msg = "monthly generation budget exhausted"
	case domain.CodeQuotaNearlyExceeded:
		msg = "monthly generation budget nearly exhausted"
	default:
		msg = "budget check unavailable"
	}
	return &domain.Error{Code: d.Code, Message: msg, RetryAfterSeconds: d.RetryAfterSeconds}
}

// Options configures a Guardian.
type Options struct {
	LimitCents int64
	Alerter    Alerter
	Observer   Observer
	Logger     infra.Logger
	Now        func() time.Time
}

// Guardian decides whether a new job may be admitted this month.
type Guardian struct {
	ledger   Ledger
	limit    int64
	alerter  Alerter
	observer Observer
	logger   infra.Logger
	now      func() time.Time

	mu           sync.Mutex
	alertedMonth string
}

func NewGuardian(ledger Ledger, opts Options) *Guardian {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guardian{
		ledger:   ledger,
		limit:    opts.LimitCents,
		alerter:  opts.Alerter,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Status returns the current month's projection of the ledger.
func (g *Guardian) Status(ctx context.Context) (domain.BudgetInfo, error) {
	now := g.now().UTC()
	from, to := domain.MonthBounds(now)
	used, err := g.ledger.SumBetween(ctx, from, to)
	if err != nil {
		return domain.BudgetInfo{}, fmt.Errorf("sum billing events: %w", err)
	}
	return domain.NewBudgetInfo(g.limit, used, domain.MonthKey(now)), nil
}

// CheckBudget runs the admission decision. It never returns an error: ledger failures
// produce a closed SERVICE_UNAVAILABLE decision.
func (g *Guardian) CheckBudget(ctx context.Context, caller Caller) Decision {
	info, err := g.Status(ctx)
	if err != nil {
		g.logger.Error().Err(err).Str("project_id", caller.ProjectID).Msg("budget: ledger unavailable, rejecting")
		d := Decision{Code: domain.CodeServiceUnavailable}
		g.observe(d)
		return d
	}

	d := Decision{Allowed: true, Budget: info}
	ratio := g.ratio(info)
	switch {
	case ratio >= HardStopRatio:
		d.Allowed = false
		d.Code = domain.CodeServiceTemporarilyUnavailable
		d.RetryAfterSeconds = secondsUntilNextMonth(g.now())
	case ratio >= SoftStopRatio && !caller.Privileged:
		d.Allowed = false
		d.Code = domain.CodeQuotaNearlyExceeded
		d.RetryAfterSeconds = secondsUntilNextMonth(g.now())
	}
	if ratio >= WarningRatio {
		g.alert(info, ratio)
	}
	g.observe(d)
	return d
}

func (g *Guardian) ratio(info domain.BudgetInfo) float64 {
	if g.limit <= 0 {
		// a zero budget admits nothing
		return math.Inf(1)
	}
	return float64(info.UsedCents) / float64(g.limit)
}

// alert emits at most one warning per month per process.
func (g *Guardian) alert(info domain.BudgetInfo, ratio float64) {
	if g.alerter == nil {
		return
	}
	g.mu.Lock()
	if g.alertedMonth == info.MonthYear {
		g.mu.Unlock()
		return
	}
	g.alertedMonth = info.MonthYear
	g.mu.Unlock()

	msg := fmt.Sprintf("budget usage at %.1f%% of %d cents for %s", ratio*100, info.TotalCents, info.MonthYear)
	if !g.alerter.BudgetAlert(info, msg) {
		// allow a later check to try again
		g.mu.Lock()
		g.alertedMonth = ""
		g.mu.Unlock()
		g.logger.Warn().Str("month", info.MonthYear).Msg("budget: alert dropped")
		return
	}
	g.logger.Warn().Float64("usage_percent", info.UsagePercent).Str("month", info.MonthYear).Msg("budget: usage warning")
}

func (g *Guardian) observe(d Decision) {
	if g.observer != nil {
		g.observer.ObserveBudget(string(d.Code), d.Budget.UsagePercent)
	}
}

func secondsUntilNextMonth(now time.Time) int64 {
	_, next := domain.MonthBounds(now)
	return int64(math.Ceil(next.Sub(now.UTC()).Seconds()))
}
