package aggregate

import (
	"strings"

	"devplan/internal/model"
)

// Uncategorized is the bucket for records without a category.
const Uncategorized = "uncategorized"

// FinanceSummary sums amounts (cents) per category, split by record type.
type FinanceSummary struct {
	Month   string           `json:"month,omitempty"`
	Income  map[string]int64 `json:"income"`
	Expense map[string]int64 `json:"expense"`
	Debt    map[string]int64 `json:"debt"`

	TotalIncome  int64 `json:"total_income"`
	TotalExpense int64 `json:"total_expense"`
	TotalDebt    int64 `json:"total_debt"`
	Balance      int64 `json:"balance"` // income - expense
}

// SummarizeFinance partitions records by type and category. When month
// (YYYY-MM) is not empty, records of other months are ignored.
func SummarizeFinance(records []model.FinancialRecord, month string) FinanceSummary {
	s := FinanceSummary{
		Month:   month,
		Income:  map[string]int64{},
		Expense: map[string]int64{},
		Debt:    map[string]int64{},
	}
	for _, r := range records {
		if month != "" && RecordMonth(r) != month {
			continue
		}
		cat := strings.TrimSpace(r.Category)
		if cat == "" {
			cat = Uncategorized
		}
		switch r.Type {
		case model.FinanceIncome:
			s.Income[cat] += r.AmountCents
			s.TotalIncome += r.AmountCents
		case model.FinanceExpense:
			s.Expense[cat] += r.AmountCents
			s.TotalExpense += r.AmountCents
		case model.FinanceDebt:
			s.Debt[cat] += r.AmountCents
			s.TotalDebt += r.AmountCents
		}
	}
	s.Balance = s.TotalIncome - s.TotalExpense
	return s
}

// RecordMonth returns the YYYY-MM a record belongs to.
func RecordMonth(r model.FinancialRecord) string {
	if r.Month != "" {
		return r.Month
	}
	if r.RecordDate.IsZero() {
		return ""
	}
	return r.RecordDate.Format("2006-01")
}
