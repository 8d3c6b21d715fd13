// Package aggregate derives read-only rollups from a ledger snapshot.
// Nothing here touches storage; callers pass in a consistent core.Snapshot.
package aggregate

import (
	"sort"
	"time"

	"khanevadati/internal/core"
)

// DateRange is inclusive on both ends; a zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

const (
	KindIncome      = "income"
	KindExpense     = "expense"
	KindTransferIn  = "transfer_in"
	KindTransferOut = "transfer_out"
)

// Transaction is one row of the recent-activity list.
type Transaction struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	AccountID   string       `json:"accountId"`
	OwnerID     core.OwnerID `json:"ownerId"`
	Description string       `json:"description"`
	Category    string       `json:"category,omitempty"`
	Amount      core.Money   `json:"amount"`
	Date        time.Time    `json:"date"`
}

type Summary struct {
	Owner            core.OwnerID  `json:"owner"`
	TotalIncome      core.Money    `json:"totalIncome"`
	TotalExpense     core.Money    `json:"totalExpense"`
	TotalAssets      core.Money    `json:"totalAssets"`
	TotalLiabilities core.Money    `json:"totalLiabilities"`
	NetWorth         core.Money    `json:"netWorth"`
	Recent           []Transaction `json:"recent"`
}

type OwnerBalance struct {
	Owner   core.OwnerID `json:"owner"`
	Balance core.Money   `json:"balance"`
	Blocked core.Money   `json:"blocked"`
}

func matches(filter, owner core.OwnerID) bool {
	return filter == "" || filter == core.OwnerAll || filter == owner
}

// ComputeSummary totals income and expense inside r, assets and liabilities
// for the owner, and the newest recentLimit transactions.
func ComputeSummary(s core.Snapshot, owner core.OwnerID, r DateRange, recentLimit int) Summary {
	sum := Summary{Owner: owner, Recent: []Transaction{}}
	if sum.Owner == "" {
		sum.Owner = core.OwnerAll
	}

	var recent []Transaction
	for _, inc := range s.Incomes {
		if !matches(owner, inc.OwnerID) || !r.Contains(inc.Date) {
			continue
		}
		sum.TotalIncome = sum.TotalIncome.Add(inc.Amount)
		recent = append(recent, Transaction{
			ID: inc.ID, Kind: KindIncome, AccountID: inc.BankAccountID, OwnerID: inc.OwnerID,
			Description: inc.Description, Category: inc.Category, Amount: inc.Amount, Date: inc.Date,
		})
	}
	for _, exp := range s.Expenses {
		if !matches(owner, exp.OwnerID) || !r.Contains(exp.Date) {
			continue
		}
		sum.TotalExpense = sum.TotalExpense.Add(exp.Amount)
		recent = append(recent, Transaction{
			ID: exp.ID, Kind: KindExpense, AccountID: exp.BankAccountID, OwnerID: exp.OwnerID,
			Description: exp.Description, Category: s.CategoryName(exp.CategoryID), Amount: exp.Amount, Date: exp.Date,
		})
	}

	for _, a := range s.Accounts {
		if matches(owner, a.OwnerID) {
			sum.TotalAssets = sum.TotalAssets.Add(a.Balance)
		}
	}
	for _, c := range s.Checks {
		if c.Status == core.CheckPending && matches(owner, c.OwnerID) {
			sum.TotalLiabilities = sum.TotalLiabilities.Add(c.Amount)
		}
	}
	for _, l := range s.Loans {
		if matches(owner, l.OwnerID) {
			sum.TotalLiabilities = sum.TotalLiabilities.Add(l.RemainingAmount)
		}
	}
	for _, d := range s.Debts {
		if matches(owner, d.OwnerID) {
			sum.TotalLiabilities = sum.TotalLiabilities.Add(d.RemainingAmount)
		}
	}
	sum.NetWorth = sum.TotalAssets.Sub(sum.TotalLiabilities)

	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].Date.Equal(recent[j].Date) {
			return recent[i].Date.After(recent[j].Date)
		}
		return recent[i].ID < recent[j].ID
	})
	if recentLimit > 0 && len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	if recent != nil {
		sum.Recent = recent
	}
	return sum
}

// ComputeOwnerBalances sums balances per owner over every account, ignoring filters.
func ComputeOwnerBalances(s core.Snapshot) []OwnerBalance {
	owners := []core.OwnerID{core.OwnerAli, core.OwnerFatemeh, core.OwnerShared}
	idx := make(map[core.OwnerID]int, len(owners))
	out := make([]OwnerBalance, len(owners))
	for i, o := range owners {
		idx[o] = i
		out[i].Owner = o
	}
	for _, a := range s.Accounts {
		i, ok := idx[a.OwnerID]
		if !ok {
			continue
		}
		out[i].Balance = out[i].Balance.Add(a.Balance)
		out[i].Blocked = out[i].Blocked.Add(a.BlockedBalance)
	}
	return out
}

type CategoryAmount struct {
	CategoryID string     `json:"categoryId"`
	Name       string     `json:"name"`
	Amount     core.Money `json:"amount"`
}

// ComputeCategorySpending totals expenses per category, largest first.
func ComputeCategorySpending(s core.Snapshot, owner core.OwnerID, r DateRange) []CategoryAmount {
	totals := make(map[string]core.Money)
	for _, exp := range s.Expenses {
		if !matches(owner, exp.OwnerID) || !r.Contains(exp.Date) {
			continue
		}
		totals[exp.CategoryID] = totals[exp.CategoryID].Add(exp.Amount)
	}
	out := make([]CategoryAmount, 0, len(totals))
	for id, amount := range totals {
		out = append(out, CategoryAmount{CategoryID: id, Name: s.CategoryName(id), Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[j].Amount.Less(out[i].Amount)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
