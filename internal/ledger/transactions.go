package ledger

import (
	"context"
	"time"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

type ExpenseInput struct {
	BankAccountID string
	CategoryID    string
	PayeeID       string
	Amount        core.Money
	Date          time.Time
	Description   string
	ExpenseFor    core.OwnerID
}

type IncomeInput struct {
	BankAccountID string
	Amount        core.Money
	Date          time.Time
	Source        string
	Description   string
	Category      string
}

type TransferInput struct {
	FromBankAccountID string
	ToBankAccountID   string
	Amount            core.Money
	Date              time.Time
	Description       string
}

// RecordExpense debits the account and stores the expense with its balance snapshot.
func (e *Engine) RecordExpense(ctx context.Context, ns, userID string, in ExpenseInput) (core.Expense, error) {
	var exp core.Expense
	err := e.update(ctx, ns, userID, "record_expense", func(u *unit) error {
		if err := in.Amount.Validate(); err != nil {
			return err
		}
		if in.CategoryID == "" {
			return core.Errorf(core.KindInvalid, "expense category is required")
		}
		if in.ExpenseFor != "" {
			if err := in.ExpenseFor.Validate(); err != nil {
				return err
			}
		}
		acc, err := u.account(in.BankAccountID)
		if err != nil {
			return err
		}
		if err := u.exists(storage.Categories, in.CategoryID, "category"); err != nil {
			return err
		}
		if in.PayeeID != "" {
			if err := u.exists(storage.Payees, in.PayeeID, "payee"); err != nil {
				return err
			}
		}
		exp, err = u.spend(&acc, core.Expense{
			CategoryID:  in.CategoryID,
			PayeeID:     in.PayeeID,
			Amount:      in.Amount,
			Date:        in.Date,
			Description: in.Description,
			ExpenseFor:  in.ExpenseFor,
		})
		if err != nil {
			return err
		}
		u.emit(core.OpExpenseRecorded, exp.ID, exp.Amount, acc.ID)
		return nil
	})
	return exp, err
}

// DeleteExpense credits the amount back and removes a user-entered expense.
// Expenses created by a check, goal, loan or debt go through their owner.
func (e *Engine) DeleteExpense(ctx context.Context, ns, userID, id string) error {
	return e.update(ctx, ns, userID, "delete_expense", func(u *unit) error {
		var exp core.Expense
		if err := u.tx.Get(storage.Expenses, id, &exp); err != nil {
			return err
		}
		if owner := generatedBy(exp); owner != "" {
			return core.Errorf(core.KindInvalidOperation,
				"expense %q was generated by a %s and must be reversed there", id, owner)
		}
		if err := u.refundExpense(exp); err != nil {
			return err
		}
		u.emit(core.OpExpenseDeleted, id, exp.Amount, exp.BankAccountID)
		return nil
	})
}

func generatedBy(exp core.Expense) string {
	switch {
	case exp.CheckID != "":
		return "check"
	case exp.GoalID != "":
		return "goal"
	case exp.LoanPaymentID != "":
		return "loan payment"
	case exp.DebtPaymentID != "":
		return "debt payment"
	}
	return ""
}

// RecordIncome credits the account unconditionally.
func (e *Engine) RecordIncome(ctx context.Context, ns, userID string, in IncomeInput) (core.Income, error) {
	var inc core.Income
	err := e.update(ctx, ns, userID, "record_income", func(u *unit) error {
		if err := in.Amount.Validate(); err != nil {
			return err
		}
		acc, err := u.account(in.BankAccountID)
		if err != nil {
			return err
		}
		before := acc.Balance
		if err := credit(&acc, in.Amount); err != nil {
			return err
		}
		inc = core.Income{
			ID:                 u.newID(),
			OwnerID:            acc.OwnerID,
			RegisteredByUserID: u.userID,
			BankAccountID:      acc.ID,
			Source:             in.Source,
			Description:        in.Description,
			Category:           in.Category,
			Amount:             in.Amount,
			Date:               u.dateOr(in.Date),
			CreatedAt:          u.now,
			BalanceBefore:      before,
			BalanceAfter:       acc.Balance,
		}
		if err := u.saveAccount(acc); err != nil {
			return err
		}
		if err := u.tx.Put(storage.Incomes, inc.ID, inc); err != nil {
			return err
		}
		u.emit(core.OpIncomeRecorded, inc.ID, inc.Amount, acc.ID)
		return nil
	})
	return inc, err
}

// DeleteIncome takes the amount back out of the account. The reversal may not
// dip into reserved funds.
func (e *Engine) DeleteIncome(ctx context.Context, ns, userID, id string) error {
	return e.update(ctx, ns, userID, "delete_income", func(u *unit) error {
		var inc core.Income
		if err := u.tx.Get(storage.Incomes, id, &inc); err != nil {
			return err
		}
		acc, err := u.account(inc.BankAccountID)
		if err != nil {
			return err
		}
		if err := debit(&acc, inc.Amount); err != nil {
			return err
		}
		if err := u.saveAccount(acc); err != nil {
			return err
		}
		if err := u.tx.Delete(storage.Incomes, id); err != nil {
			return err
		}
		u.emit(core.OpIncomeDeleted, id, inc.Amount, acc.ID)
		return nil
	})
}

// Transfer moves money between two distinct accounts.
func (e *Engine) Transfer(ctx context.Context, ns, userID string, in TransferInput) (core.Transfer, error) {
	var tr core.Transfer
	err := e.update(ctx, ns, userID, "transfer", func(u *unit) error {
		if in.FromBankAccountID == in.ToBankAccountID {
			return core.Errorf(core.KindInvalidOperation, "cannot transfer to the same account")
		}
		if err := in.Amount.Validate(); err != nil {
			return err
		}
		from, err := u.account(in.FromBankAccountID)
		if err != nil {
			return err
		}
		to, err := u.account(in.ToBankAccountID)
		if err != nil {
			return err
		}
		tr = core.Transfer{
			ID:                       u.newID(),
			RegisteredByUserID:       u.userID,
			FromBankAccountID:        from.ID,
			ToBankAccountID:          to.ID,
			Amount:                   in.Amount,
			TransferDate:             u.dateOr(in.Date),
			Description:              in.Description,
			FromAccountBalanceBefore: from.Balance,
			ToAccountBalanceBefore:   to.Balance,
			CreatedAt:                u.now,
		}
		if err := debit(&from, in.Amount); err != nil {
			return err
		}
		if err := credit(&to, in.Amount); err != nil {
			return err
		}
		tr.FromAccountBalanceAfter = from.Balance
		tr.ToAccountBalanceAfter = to.Balance

		if err := u.saveAccount(from); err != nil {
			return err
		}
		if err := u.saveAccount(to); err != nil {
			return err
		}
		if err := u.tx.Put(storage.Transfers, tr.ID, tr); err != nil {
			return err
		}
		u.emit(core.OpTransferRecorded, tr.ID, tr.Amount, from.ID, to.ID)
		return nil
	})
	return tr, err
}

// DeleteTransfer reverses both legs. The destination must still hold the
// amount outside its reservations.
func (e *Engine) DeleteTransfer(ctx context.Context, ns, userID, id string) error {
	return e.update(ctx, ns, userID, "delete_transfer", func(u *unit) error {
		var tr core.Transfer
		if err := u.tx.Get(storage.Transfers, id, &tr); err != nil {
			return err
		}
		from, err := u.account(tr.FromBankAccountID)
		if err != nil {
			return err
		}
		to, err := u.account(tr.ToBankAccountID)
		if err != nil {
			return err
		}
		if err := debit(&to, tr.Amount); err != nil {
			return err
		}
		if err := credit(&from, tr.Amount); err != nil {
			return err
		}
		if err := u.saveAccount(from); err != nil {
			return err
		}
		if err := u.saveAccount(to); err != nil {
			return err
		}
		if err := u.tx.Delete(storage.Transfers, id); err != nil {
			return err
		}
		u.emit(core.OpTransferDeleted, id, tr.Amount, from.ID, to.ID)
		return nil
	})
}
