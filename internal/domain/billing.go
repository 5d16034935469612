package domain

import (
	"fmt"
	"time"
)

// BillingStatus records what the charged generation ended up as.
type BillingStatus string

const (
	BillingStatusGenerated      BillingStatus = "generated"
	BillingStatusCompleted      BillingStatus = "completed"
	BillingStatusOutputRejected BillingStatus = "output_rejected"
	BillingStatusFailed         BillingStatus = "failed"
)

// BillingEvent is one ledger row; there is at most one per asset.
type BillingEvent struct {
	AssetID   string        `json:"asset_id" db:"asset_id"`
	CostCents int64         `json:"cost_cents" db:"cost_cents"`
	APICalls  int           `json:"api_calls" db:"api_calls"`
	Status    BillingStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// BudgetInfo is a projection of the billing ledger for one calendar month.
type BudgetInfo struct {
	TotalCents   int64   `json:"total_cents"`
	UsedCents    int64   `json:"used_cents"`
	Remaining    int64   `json:"remaining"`
	UsagePercent float64 `json:"usage_percent"`
	MonthYear    string  `json:"month_year"`
}

// NewBudgetInfo derives the projection for the given limit and usage.
func NewBudgetInfo(totalCents, usedCents int64, month string) BudgetInfo {
	remaining := totalCents - usedCents
	if remaining < 0 {
		remaining = 0
	}
	var percent float64
	if totalCents > 0 {
		percent = float64(usedCents) / float64(totalCents) * 100
	} else if usedCents > 0 {
		percent = 100
	}
	return BudgetInfo{
		TotalCents:   totalCents,
		UsedCents:    usedCents,
		Remaining:    remaining,
		UsagePercent: percent,
		MonthYear:    month,
	}
}

// MonthKey formats the ledger month key (YYYY-MM) for t in UTC.
func MonthKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// MonthBounds returns the half-open UTC interval covering the month of t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
