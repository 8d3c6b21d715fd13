package ledger

import (
	"context"
	"time"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

const (
	loanCategoryName = "Loan Installments"
	debtCategoryName = "Debt Payments"
)

type LoanInput struct {
	Title                string
	OwnerID              core.OwnerID
	PayeeID              string
	Amount               core.Money
	InstallmentAmount    core.Money
	NumberOfInstallments int
	PaymentDay           int
	StartDate            core.Date
	DepositToAccountID   string
}

type DebtInput struct {
	OwnerID     core.OwnerID
	PayeeID     string
	Description string
	Amount      core.Money
	StartDate   core.Date
}

// PaymentInput pays part of a loan or debt from an account. CategoryID is
// optional; the shared installment or debt category is used when empty.
type PaymentInput struct {
	BankAccountID string
	Amount        core.Money
	Date          time.Time
	CategoryID    string
}

type LoanInstallment struct {
	Loan    core.Loan
	Payment core.LoanPayment
	Expense core.Expense
}

type DebtSettlement struct {
	Debt    core.PreviousDebt
	Payment core.DebtPayment
	Expense core.Expense
}

// CreateLoan records a loan. When the principal is deposited into an account
// the account is credited and its owner becomes the loan's owner.
func (e *Engine) CreateLoan(ctx context.Context, ns, userID string, in LoanInput) (core.Loan, error) {
	var loan core.Loan
	err := e.update(ctx, ns, userID, "create_loan", func(u *unit) error {
		loan = core.Loan{
			ID:                   u.newID(),
			RegisteredByUserID:   u.userID,
			OwnerID:              in.OwnerID,
			PayeeID:              in.PayeeID,
			Title:                in.Title,
			Amount:               in.Amount,
			InstallmentAmount:    in.InstallmentAmount,
			RemainingAmount:      in.Amount,
			StartDate:            in.StartDate,
			PaymentDay:           in.PaymentDay,
			NumberOfInstallments: in.NumberOfInstallments,
			DepositToAccountID:   in.DepositToAccountID,
			CreatedAt:            u.now,
		}
		if loan.PaymentDay == 0 {
			loan.PaymentDay = 1
		}
		if loan.StartDate.IsZero() {
			loan.StartDate = core.DateOf(u.now)
		}
		if err := loan.Validate(); err != nil {
			return err
		}
		if loan.PayeeID != "" {
			if err := u.exists(storage.Payees, loan.PayeeID, "payee"); err != nil {
				return err
			}
		}

		var touched []string
		if loan.DepositToAccountID != "" {
			acc, err := u.account(loan.DepositToAccountID)
			if err != nil {
				return err
			}
			if err := credit(&acc, loan.Amount); err != nil {
				return err
			}
			if err := u.saveAccount(acc); err != nil {
				return err
			}
			loan.OwnerID = acc.OwnerID
			touched = append(touched, acc.ID)
		}
		if err := loan.OwnerID.Validate(); err != nil {
			return err
		}
		if err := u.tx.Put(storage.Loans, loan.ID, loan); err != nil {
			return err
		}
		u.emit(core.OpLoanCreated, loan.ID, loan.Amount, touched...)
		return nil
	})
	return loan, err
}

// PayInstallment pays amount of the loan's remaining balance from an account.
func (e *Engine) PayInstallment(ctx context.Context, ns, userID, loanID string, in PaymentInput) (LoanInstallment, error) {
	var res LoanInstallment
	err := e.update(ctx, ns, userID, "pay_installment", func(u *unit) error {
		if err := in.Amount.Validate(); err != nil {
			return err
		}
		var loan core.Loan
		if err := u.tx.Get(storage.Loans, loanID, &loan); err != nil {
			return err
		}
		if loan.RemainingAmount.Less(in.Amount) {
			return core.Errorf(core.KindInvalidAmount,
				"payment %s exceeds remaining loan amount %s", in.Amount, loan.RemainingAmount)
		}
		acc, err := u.account(in.BankAccountID)
		if err != nil {
			return err
		}
		categoryID, err := u.paymentCategory(in.CategoryID, loanCategoryName)
		if err != nil {
			return err
		}

		payment := core.LoanPayment{
			ID:                 u.newID(),
			RegisteredByUserID: u.userID,
			LoanID:             loan.ID,
			BankAccountID:      acc.ID,
			Amount:             in.Amount,
			PaymentDate:        u.dateOr(in.Date),
		}
		exp, err := u.spend(&acc, core.Expense{
			CategoryID:    categoryID,
			PayeeID:       loan.PayeeID,
			Amount:        in.Amount,
			Date:          payment.PaymentDate,
			Description:   "Installment: " + loan.Title,
			LoanPaymentID: payment.ID,
		})
		if err != nil {
			return err
		}
		loan.RemainingAmount = loan.RemainingAmount.Sub(in.Amount)
		loan.PaidInstallments++
		if err := u.tx.Put(storage.LoanPayments, payment.ID, payment); err != nil {
			return err
		}
		if err := u.tx.Put(storage.Loans, loan.ID, loan); err != nil {
			return err
		}
		res = LoanInstallment{Loan: loan, Payment: payment, Expense: exp}
		u.emit(core.OpLoanPaid, loan.ID, in.Amount, acc.ID)
		return nil
	})
	return res, err
}

// DeleteLoan removes a loan without payments and reverses its deposit.
func (e *Engine) DeleteLoan(ctx context.Context, ns, userID, loanID string) error {
	return e.update(ctx, ns, userID, "delete_loan", func(u *unit) error {
		var loan core.Loan
		if err := u.tx.Get(storage.Loans, loanID, &loan); err != nil {
			return err
		}
		if loan.PaidInstallments > 0 {
			return core.Errorf(core.KindHasDependents,
				"loan %q has %d paid installments", loanID, loan.PaidInstallments)
		}
		var touched []string
		if loan.DepositToAccountID != "" {
			acc, err := u.account(loan.DepositToAccountID)
			if err != nil {
				return err
			}
			if err := debit(&acc, loan.Amount); err != nil {
				return err
			}
			if err := u.saveAccount(acc); err != nil {
				return err
			}
			touched = append(touched, acc.ID)
		}
		if err := u.tx.Delete(storage.Loans, loanID); err != nil {
			return err
		}
		u.emit(core.OpLoanDeleted, loanID, loan.Amount, touched...)
		return nil
	})
}

// CreateDebt records a debt owed to a payee.
func (e *Engine) CreateDebt(ctx context.Context, ns, userID string, in DebtInput) (core.PreviousDebt, error) {
	var debt core.PreviousDebt
	err := e.update(ctx, ns, userID, "create_debt", func(u *unit) error {
		debt = core.PreviousDebt{
			ID:                 u.newID(),
			RegisteredByUserID: u.userID,
			OwnerID:            in.OwnerID,
			PayeeID:            in.PayeeID,
			Description:        in.Description,
			Amount:             in.Amount,
			RemainingAmount:    in.Amount,
			StartDate:          in.StartDate,
			CreatedAt:          u.now,
		}
		if debt.StartDate.IsZero() {
			debt.StartDate = core.DateOf(u.now)
		}
		if err := debt.Validate(); err != nil {
			return err
		}
		if err := debt.OwnerID.Validate(); err != nil {
			return err
		}
		if err := u.exists(storage.Payees, debt.PayeeID, "payee"); err != nil {
			return err
		}
		if err := u.tx.Put(storage.PreviousDebts, debt.ID, debt); err != nil {
			return err
		}
		u.emit(core.OpDebtCreated, debt.ID, debt.Amount)
		return nil
	})
	return debt, err
}

// PayDebt pays amount of the debt's remaining balance from an account.
func (e *Engine) PayDebt(ctx context.Context, ns, userID, debtID string, in PaymentInput) (DebtSettlement, error) {
	var res DebtSettlement
	err := e.update(ctx, ns, userID, "pay_debt", func(u *unit) error {
		if err := in.Amount.Validate(); err != nil {
			return err
		}
		var debt core.PreviousDebt
		if err := u.tx.Get(storage.PreviousDebts, debtID, &debt); err != nil {
			return err
		}
		if debt.RemainingAmount.Less(in.Amount) {
			return core.Errorf(core.KindInvalidAmount,
				"payment %s exceeds remaining debt %s", in.Amount, debt.RemainingAmount)
		}
		acc, err := u.account(in.BankAccountID)
		if err != nil {
			return err
		}
		categoryID, err := u.paymentCategory(in.CategoryID, debtCategoryName)
		if err != nil {
			return err
		}

		payment := core.DebtPayment{
			ID:                 u.newID(),
			RegisteredByUserID: u.userID,
			DebtID:             debt.ID,
			BankAccountID:      acc.ID,
			Amount:             in.Amount,
			PaymentDate:        u.dateOr(in.Date),
		}
		description := "Debt payment"
		if debt.Description != "" {
			description += ": " + debt.Description
		}
		exp, err := u.spend(&acc, core.Expense{
			CategoryID:    categoryID,
			PayeeID:       debt.PayeeID,
			Amount:        in.Amount,
			Date:          payment.PaymentDate,
			Description:   description,
			SubType:       core.SubTypeDebtPayment,
			DebtPaymentID: payment.ID,
		})
		if err != nil {
			return err
		}
		debt.RemainingAmount = debt.RemainingAmount.Sub(in.Amount)
		if err := u.tx.Put(storage.DebtPayments, payment.ID, payment); err != nil {
			return err
		}
		if err := u.tx.Put(storage.PreviousDebts, debt.ID, debt); err != nil {
			return err
		}
		res = DebtSettlement{Debt: debt, Payment: payment, Expense: exp}
		u.emit(core.OpDebtPaid, debt.ID, in.Amount, acc.ID)
		return nil
	})
	return res, err
}

// DeleteDebt removes a debt that has not been paid into.
func (e *Engine) DeleteDebt(ctx context.Context, ns, userID, debtID string) error {
	return e.update(ctx, ns, userID, "delete_debt", func(u *unit) error {
		var debt core.PreviousDebt
		if err := u.tx.Get(storage.PreviousDebts, debtID, &debt); err != nil {
			return err
		}
		if debt.RemainingAmount.Less(debt.Amount) {
			return core.Errorf(core.KindHasDependents,
				"debt %q already has %s paid", debtID, debt.Amount.Sub(debt.RemainingAmount))
		}
		if err := u.tx.Delete(storage.PreviousDebts, debtID); err != nil {
			return err
		}
		u.emit(core.OpDebtDeleted, debtID, debt.Amount)
		return nil
	})
}

func (u *unit) paymentCategory(categoryID, fallback string) (string, error) {
	if categoryID == "" {
		return u.ensureCategory(fallback, "")
	}
	if err := u.exists(storage.Categories, categoryID, "category"); err != nil {
		return "", err
	}
	return categoryID, nil
}
