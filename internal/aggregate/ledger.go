package aggregate

import (
	"sort"
	"time"

	"khanevadati/internal/core"
)

// LedgerRow is one historical movement of an account with the balance
// replayed around it.
type LedgerRow struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Description   string     `json:"description"`
	Amount        core.Money `json:"amount"`
	Date          time.Time  `json:"date"`
	CreatedAt     time.Time  `json:"createdAt"`
	BalanceBefore core.Money `json:"balanceBefore"`
	BalanceAfter  core.Money `json:"balanceAfter"`
}

func (r LedgerRow) effect() core.Money {
	switch r.Kind {
	case KindIncome, KindTransferIn:
		return r.Amount
	default:
		return core.Money{}.Sub(r.Amount)
	}
}

// ComputeRunningLedger lists every income, expense and transfer touching the
// account, newest first, walking back from the current balance.
func ComputeRunningLedger(s core.Snapshot, accountID string) ([]LedgerRow, error) {
	acc, ok := s.Account(accountID)
	if !ok {
		return nil, core.Errorf(core.KindNotFound, "bank account %q not found", accountID)
	}

	rows := []LedgerRow{}
	for _, inc := range s.Incomes {
		if inc.BankAccountID == accountID {
			rows = append(rows, LedgerRow{ID: inc.ID, Kind: KindIncome, Description: inc.Description,
				Amount: inc.Amount, Date: inc.Date, CreatedAt: inc.CreatedAt})
		}
	}
	for _, exp := range s.Expenses {
		if exp.BankAccountID == accountID {
			rows = append(rows, LedgerRow{ID: exp.ID, Kind: KindExpense, Description: exp.Description,
				Amount: exp.Amount, Date: exp.Date, CreatedAt: exp.CreatedAt})
		}
	}
	for _, tr := range s.Transfers {
		switch accountID {
		case tr.FromBankAccountID:
			rows = append(rows, LedgerRow{ID: tr.ID, Kind: KindTransferOut, Description: tr.Description,
				Amount: tr.Amount, Date: tr.TransferDate, CreatedAt: tr.CreatedAt})
		case tr.ToBankAccountID:
			rows = append(rows, LedgerRow{ID: tr.ID, Kind: KindTransferIn, Description: tr.Description,
				Amount: tr.Amount, Date: tr.TransferDate, CreatedAt: tr.CreatedAt})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	running := acc.Balance
	for i := range rows {
		rows[i].BalanceAfter = running
		rows[i].BalanceBefore = running.Sub(rows[i].effect())
		running = rows[i].BalanceBefore
	}
	return rows, nil
}
