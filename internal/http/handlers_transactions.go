package http

import (
	"khanevadati/internal/core"
	"khanevadati/internal/ledger"
)

type expenseRequest struct {
	BankAccountID string       `json:"bankAccountId"`
	CategoryID    string       `json:"categoryId"`
	PayeeID       string       `json:"payeeId"`
	Amount        Amount       `json:"amount"`
	Date          string       `json:"date"`
	Description   string       `json:"description"`
	ExpenseFor    core.OwnerID `json:"expenseFor"`
}

type incomeRequest struct {
	BankAccountID string `json:"bankAccountId"`
	Amount        Amount `json:"amount"`
	Date          string `json:"date"`
	Source        string `json:"source"`
	Description   string `json:"description"`
	Category      string `json:"category"`
}

type transferRequest struct {
	FromBankAccountID string `json:"fromBankAccountId"`
	ToBankAccountID   string `json:"toBankAccountId"`
	Amount            Amount `json:"amount"`
	Date              string `json:"date"`
	Description       string `json:"description"`
}

func (s *Server) listExpenses(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return filterByAccount(snap.Expenses, c, func(e core.Expense) string { return e.BankAccountID }), nil
}

func (s *Server) recordExpense(c call) (any, error) {
	var req expenseRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	amount, err := req.Amount.Money()
	if err != nil {
		return nil, err
	}
	date, err := timeValue(req.Date)
	if err != nil {
		return nil, err
	}
	return s.engine.RecordExpense(c.ctx(), c.ns, c.userID, ledger.ExpenseInput{
		BankAccountID: req.BankAccountID,
		CategoryID:    req.CategoryID,
		PayeeID:       req.PayeeID,
		Amount:        amount,
		Date:          date,
		Description:   req.Description,
		ExpenseFor:    req.ExpenseFor,
	})
}

func (s *Server) deleteExpense(c call) (any, error) {
	return nil, s.engine.DeleteExpense(c.ctx(), c.ns, c.userID, c.id())
}

func (s *Server) listIncomes(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return filterByAccount(snap.Incomes, c, func(i core.Income) string { return i.BankAccountID }), nil
}

func (s *Server) recordIncome(c call) (any, error) {
	var req incomeRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	amount, err := req.Amount.Money()
	if err != nil {
		return nil, err
	}
	date, err := timeValue(req.Date)
	if err != nil {
		return nil, err
	}
	return s.engine.RecordIncome(c.ctx(), c.ns, c.userID, ledger.IncomeInput{
		BankAccountID: req.BankAccountID,
		Amount:        amount,
		Date:          date,
		Source:        req.Source,
		Description:   req.Description,
		Category:      req.Category,
	})
}

func (s *Server) deleteIncome(c call) (any, error) {
	return nil, s.engine.DeleteIncome(c.ctx(), c.ns, c.userID, c.id())
}

func (s *Server) listTransfers(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	account := c.r.URL.Query().Get("accountId")
	out := []core.Transfer{}
	for _, tr := range snap.Transfers {
		if account == "" || tr.FromBankAccountID == account || tr.ToBankAccountID == account {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (s *Server) recordTransfer(c call) (any, error) {
	var req transferRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	amount, err := req.Amount.Money()
	if err != nil {
		return nil, err
	}
	date, err := timeValue(req.Date)
	if err != nil {
		return nil, err
	}
	return s.engine.Transfer(c.ctx(), c.ns, c.userID, ledger.TransferInput{
		FromBankAccountID: req.FromBankAccountID,
		ToBankAccountID:   req.ToBankAccountID,
		Amount:            amount,
		Date:              date,
		Description:       req.Description,
	})
}

func (s *Server) deleteTransfer(c call) (any, error) {
	return nil, s.engine.DeleteTransfer(c.ctx(), c.ns, c.userID, c.id())
}

// filterByAccount applies the optional ?accountId= filter.
func filterByAccount[T any](items []T, c call, accountOf func(T) string) []T {
	account := c.r.URL.Query().Get("accountId")
	out := make([]T, 0, len(items))
	for _, it := range items {
		if account == "" || accountOf(it) == account {
			out = append(out, it)
		}
	}
	return out
}
