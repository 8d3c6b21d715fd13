package http

import (
	"khanevadati/internal/core"
	"khanevadati/internal/ledger"
)

type loanRequest struct {
	Title                string       `json:"title"`
	OwnerID              core.OwnerID `json:"ownerId"`
	PayeeID              string       `json:"payeeId"`
	Amount               Amount       `json:"amount"`
	InstallmentAmount    Amount       `json:"installmentAmount"`
	NumberOfInstallments int          `json:"numberOfInstallments"`
	PaymentDay           int          `json:"paymentDay"`
	StartDate            string       `json:"startDate"`
	DepositToAccountID   string       `json:"depositToAccountId"`
}

type debtRequest struct {
	OwnerID     core.OwnerID `json:"ownerId"`
	PayeeID     string       `json:"payeeId"`
	Description string       `json:"description"`
	Amount      Amount       `json:"amount"`
	StartDate   string       `json:"startDate"`
}

type paymentRequest struct {
	BankAccountID string `json:"bankAccountId"`
	Amount        Amount `json:"amount"`
	Date          string `json:"date"`
	CategoryID    string `json:"categoryId"`
}

func (req paymentRequest) input() (ledger.PaymentInput, error) {
	amount, err := req.Amount.Money()
	if err != nil {
		return ledger.PaymentInput{}, err
	}
	date, err := timeValue(req.Date)
	if err != nil {
		return ledger.PaymentInput{}, err
	}
	return ledger.PaymentInput{
		BankAccountID: req.BankAccountID,
		Amount:        amount,
		Date:          date,
		CategoryID:    req.CategoryID,
	}, nil
}

func (s *Server) listLoans(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return nonNil(snap.Loans), nil
}

func (s *Server) createLoan(c call) (any, error) {
	var req loanRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	amount, err := req.Amount.Money()
	if err != nil {
		return nil, err
	}
	installment, err := req.InstallmentAmount.OptionalMoney()
	if err != nil {
		return nil, err
	}
	start, err := dateValue(req.StartDate)
	if err != nil {
		return nil, err
	}
	return s.engine.CreateLoan(c.ctx(), c.ns, c.userID, ledger.LoanInput{
		Title:                req.Title,
		OwnerID:              req.OwnerID,
		PayeeID:              req.PayeeID,
		Amount:               amount,
		InstallmentAmount:    installment,
		NumberOfInstallments: req.NumberOfInstallments,
		PaymentDay:           req.PaymentDay,
		StartDate:            start,
		DepositToAccountID:   req.DepositToAccountID,
	})
}

func (s *Server) payInstallment(c call) (any, error) {
	var req paymentRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return s.engine.PayInstallment(c.ctx(), c.ns, c.userID, c.id(), in)
}

func (s *Server) deleteLoan(c call) (any, error) {
	return nil, s.engine.DeleteLoan(c.ctx(), c.ns, c.userID, c.id())
}

func (s *Server) listDebts(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return nonNil(snap.Debts), nil
}

func (s *Server) createDebt(c call) (any, error) {
	var req debtRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	amount, err := req.Amount.Money()
	if err != nil {
		return nil, err
	}
	start, err := dateValue(req.StartDate)
	if err != nil {
		return nil, err
	}
	return s.engine.CreateDebt(c.ctx(), c.ns, c.userID, ledger.DebtInput{
		OwnerID:     req.OwnerID,
		PayeeID:     req.PayeeID,
		Description: req.Description,
		Amount:      amount,
		StartDate:   start,
	})
}

func (s *Server) payDebt(c call) (any, error) {
	var req paymentRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return s.engine.PayDebt(c.ctx(), c.ns, c.userID, c.id(), in)
}

func (s *Server) deleteDebt(c call) (any, error) {
	return nil, s.engine.DeleteDebt(c.ctx(), c.ns, c.userID, c.id())
}
