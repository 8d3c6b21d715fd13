package ledger

import (
	"context"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

type AccountInput struct {
	OwnerID        core.OwnerID
	BankName       string
	AccountNumber  string
	CardNumber     string
	ExpiryDate     string
	AccountType    core.AccountType
	InitialBalance core.Money
	Theme          string
}

// accountRefs are the documents that pin a bank account in place.
var accountRefs = []reference{
	{storage.Expenses, "bankAccountId"},
	{storage.Incomes, "bankAccountId"},
	{storage.Transfers, "fromBankAccountId"},
	{storage.Transfers, "toBankAccountId"},
	{storage.Checks, "bankAccountId"},
	{storage.LoanPayments, "bankAccountId"},
	{storage.DebtPayments, "bankAccountId"},
	{storage.Loans, "depositToAccountId"},
}

// CreateBankAccount opens an account whose balance starts at the initial balance.
func (e *Engine) CreateBankAccount(ctx context.Context, ns, userID string, in AccountInput) (core.BankAccount, error) {
	var acc core.BankAccount
	err := e.update(ctx, ns, userID, "create_bank_account", func(u *unit) error {
		acc = core.BankAccount{
			ID:             u.newID(),
			OwnerID:        in.OwnerID,
			BankName:       in.BankName,
			AccountNumber:  in.AccountNumber,
			CardNumber:     in.CardNumber,
			ExpiryDate:     in.ExpiryDate,
			AccountType:    in.AccountType,
			Balance:        in.InitialBalance,
			InitialBalance: in.InitialBalance,
			Theme:          in.Theme,
			CreatedAt:      u.now,
		}
		if err := acc.Validate(); err != nil {
			return err
		}
		if err := u.saveAccount(acc); err != nil {
			return err
		}
		u.emit(core.OpAccountCreated, acc.ID, acc.Balance, acc.ID)
		return nil
	})
	return acc, err
}

// UpdateBankAccount edits descriptive fields; balances are left untouched.
func (e *Engine) UpdateBankAccount(ctx context.Context, ns, userID, id string, in AccountInput) (core.BankAccount, error) {
	var acc core.BankAccount
	err := e.update(ctx, ns, userID, "update_bank_account", func(u *unit) error {
		var err error
		if acc, err = u.account(id); err != nil {
			return err
		}
		acc.OwnerID = in.OwnerID
		acc.BankName = in.BankName
		acc.AccountNumber = in.AccountNumber
		acc.CardNumber = in.CardNumber
		acc.ExpiryDate = in.ExpiryDate
		acc.AccountType = in.AccountType
		acc.Theme = in.Theme
		if err := acc.Validate(); err != nil {
			return err
		}
		if err := u.saveAccount(acc); err != nil {
			return err
		}
		u.emit(core.OpAccountUpdated, acc.ID, core.Money{}, acc.ID)
		return nil
	})
	return acc, err
}

// DeleteBankAccount removes an account nothing refers to and that holds no reservation.
func (e *Engine) DeleteBankAccount(ctx context.Context, ns, userID, id string) error {
	return e.update(ctx, ns, userID, "delete_bank_account", func(u *unit) error {
		acc, err := u.account(id)
		if err != nil {
			return err
		}
		if acc.BlockedBalance.IsPositive() {
			return core.Errorf(core.KindHasDependents,
				"account %q has %s reserved for goals", id, acc.BlockedBalance)
		}
		n, err := u.dependents(id, accountRefs...)
		if err != nil {
			return err
		}
		if n > 0 {
			return core.Errorf(core.KindHasDependents, "account %q is referenced by %d records", id, n)
		}
		if err := u.tx.Delete(storage.BankAccounts, id); err != nil {
			return err
		}
		u.emit(core.OpAccountDeleted, id, acc.Balance, id)
		return nil
	})
}
