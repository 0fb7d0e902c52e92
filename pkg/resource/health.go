package resource

import (
	"context"
	"fmt"
)

// BudgetHealthCheck reports unhealthy while requests queue for a fully
// spent budget.
type BudgetHealthCheck struct {
	budget *Budget
}

// NewBudgetHealthCheck creates a health check for b.
func NewBudgetHealthCheck(b *Budget) *BudgetHealthCheck {
	return &BudgetHealthCheck{budget: b}
}

// Name returns the name of this health check.
func (r *BudgetHealthCheck) Name() string {
	return "sample_budget"
}

// Check fails when the budget is saturated and requests are waiting.
func (r *BudgetHealthCheck) Check(ctx context.Context) error {
	stats := r.budget.Stats()
	if stats.Waiting > 0 && stats.InFlight*10 >= stats.Capacity*8 {
		return fmt.Errorf("sample budget saturated: %d/%d in flight, %d waiting",
			stats.InFlight, stats.Capacity, stats.Waiting)
	}
	return nil
}
