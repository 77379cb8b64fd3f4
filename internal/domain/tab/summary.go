package tab

import (
	"sort"
	"time"

	"github.com/cassa/backend/internal/domain/shared/valueobject"
)

// AccountSummary is the folded view of one account
type AccountSummary struct {
	AccountID      string
	Owner          Owner
	Status         AccountStatus
	Saldo          valueobject.Money
	TotalOrdini    valueobject.Money
	TotalPagamenti valueobject.Money
	TotalStorni    valueobject.Money
	MovementCount  int
	OpenedAt       time.Time
	LastMovementAt *time.Time
}

// Summary folds the account's movements
func (a *ScalarAccount) Summary() AccountSummary {
	b := a.Fold()
	s := AccountSummary{
		AccountID:      a.ID,
		Owner:          a.Owner,
		Status:         a.Status(),
		Saldo:          b.Saldo,
		TotalOrdini:    b.Ordini,
		TotalPagamenti: b.Pagamenti,
		TotalStorni:    b.Storni,
		MovementCount:  len(a.Movements),
		OpenedAt:       a.OpenedAt,
	}
	if n := len(a.Movements); n > 0 {
		last := a.Movements[n-1].CreatedAt
		s.LastMovementAt = &last
	}
	return s
}

// TabSummary covers every open account
type TabSummary struct {
	Accounts         []AccountSummary
	TotalOutstanding valueobject.Money
	OpenAccounts     int
	GeneratedAt      time.Time
}

// Summarize folds all open accounts. Accounts are sorted by saldo, largest first.
func Summarize(accounts []*ScalarAccount) TabSummary {
	summary := TabSummary{
		Accounts:    make([]AccountSummary, 0, len(accounts)),
		GeneratedAt: time.Now(),
	}
	for _, a := range accounts {
		if a == nil || a.Status() != AccountOpen || len(a.Movements) == 0 {
			continue
		}
		s := a.Summary()
		summary.Accounts = append(summary.Accounts, s)
		summary.TotalOutstanding = summary.TotalOutstanding.Add(s.Saldo)
	}
	summary.OpenAccounts = len(summary.Accounts)
	sort.SliceStable(summary.Accounts, func(i, j int) bool {
		a, b := summary.Accounts[i], summary.Accounts[j]
		if !a.Saldo.Equals(b.Saldo) {
			return a.Saldo.GreaterThan(b.Saldo)
		}
		return a.AccountID < b.AccountID
	})
	return summary
}
