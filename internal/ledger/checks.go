package ledger

import (
	"context"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

type CheckInput struct {
	BankAccountID string
	PayeeID       string
	CategoryID    string
	Amount        core.Money
	IssueDate     core.Date
	DueDate       core.Date
	Description   string
	SayadID       string
	SerialNumber  string
}

// CheckClearance is the result of clearing a check.
type CheckClearance struct {
	Check   core.Check
	Expense core.Expense
}

func (u *unit) checkRefs(c core.Check) error {
	if err := u.exists(storage.Payees, c.PayeeID, "payee"); err != nil {
		return err
	}
	return u.exists(storage.Categories, c.CategoryID, "category")
}

func (u *unit) check(id string) (core.Check, error) {
	var c core.Check
	err := u.tx.Get(storage.Checks, id, &c)
	return c, err
}

// CreateCheck registers a pending check. Nothing moves until it is cleared.
func (e *Engine) CreateCheck(ctx context.Context, ns, userID string, in CheckInput) (core.Check, error) {
	var c core.Check
	err := e.update(ctx, ns, userID, "create_check", func(u *unit) error {
		c = core.Check{
			ID:                 u.newID(),
			RegisteredByUserID: u.userID,
			BankAccountID:      in.BankAccountID,
			PayeeID:            in.PayeeID,
			CategoryID:         in.CategoryID,
			Amount:             in.Amount,
			IssueDate:          in.IssueDate,
			DueDate:            in.DueDate,
			Status:             core.CheckPending,
			Description:        in.Description,
			SayadID:            in.SayadID,
			SerialNumber:       in.SerialNumber,
			CreatedAt:          u.now,
		}
		if c.IssueDate.IsZero() {
			c.IssueDate = core.DateOf(u.now)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := u.checkRefs(c); err != nil {
			return err
		}
		acc, err := u.account(c.BankAccountID)
		if err != nil {
			return err
		}
		c.OwnerID = acc.OwnerID
		if err := u.tx.Put(storage.Checks, c.ID, c); err != nil {
			return err
		}
		u.emit(core.OpCheckCreated, c.ID, c.Amount, c.BankAccountID)
		return nil
	})
	return c, err
}

// UpdateCheck edits a pending check.
func (e *Engine) UpdateCheck(ctx context.Context, ns, userID, id string, in CheckInput) (core.Check, error) {
	var c core.Check
	err := e.update(ctx, ns, userID, "update_check", func(u *unit) error {
		var err error
		if c, err = u.check(id); err != nil {
			return err
		}
		if c.Status != core.CheckPending {
			return core.Errorf(core.KindInvalidState, "check %q is %s and can no longer be edited", id, c.Status)
		}
		c.BankAccountID = in.BankAccountID
		c.PayeeID = in.PayeeID
		c.CategoryID = in.CategoryID
		c.Amount = in.Amount
		if !in.IssueDate.IsZero() {
			c.IssueDate = in.IssueDate
		}
		c.DueDate = in.DueDate
		c.Description = in.Description
		c.SayadID = in.SayadID
		c.SerialNumber = in.SerialNumber
		if err := c.Validate(); err != nil {
			return err
		}
		if err := u.checkRefs(c); err != nil {
			return err
		}
		acc, err := u.account(c.BankAccountID)
		if err != nil {
			return err
		}
		c.OwnerID = acc.OwnerID
		if err := u.tx.Put(storage.Checks, c.ID, c); err != nil {
			return err
		}
		u.emit(core.OpCheckUpdated, c.ID, c.Amount, c.BankAccountID)
		return nil
	})
	return c, err
}

// ClearCheck pays a pending check from its account and records the linked expense.
func (e *Engine) ClearCheck(ctx context.Context, ns, userID, id string) (CheckClearance, error) {
	var res CheckClearance
	err := e.update(ctx, ns, userID, "clear_check", func(u *unit) error {
		c, err := u.check(id)
		if err != nil {
			return err
		}
		if c.Status != core.CheckPending {
			return core.Errorf(core.KindInvalidState, "check %q is already %s", id, c.Status)
		}
		acc, err := u.account(c.BankAccountID)
		if err != nil {
			return err
		}
		exp, err := u.spend(&acc, core.Expense{
			CategoryID:  c.CategoryID,
			PayeeID:     c.PayeeID,
			Amount:      c.Amount,
			Date:        u.now,
			Description: checkDescription(c),
			CheckID:     c.ID,
		})
		if err != nil {
			return err
		}
		cleared := u.now
		c.Status = core.CheckCleared
		c.ClearedDate = &cleared
		if err := u.tx.Put(storage.Checks, c.ID, c); err != nil {
			return err
		}
		res = CheckClearance{Check: c, Expense: exp}
		u.emit(core.OpCheckCleared, c.ID, c.Amount, acc.ID)
		return nil
	})
	return res, err
}

func checkDescription(c core.Check) string {
	if c.Description != "" {
		return "Check: " + c.Description
	}
	if c.SerialNumber != "" {
		return "Check #" + c.SerialNumber
	}
	return "Check"
}

// DeleteCheck removes a check; a cleared one first has its expense reversed.
func (e *Engine) DeleteCheck(ctx context.Context, ns, userID, id string) error {
	return e.update(ctx, ns, userID, "delete_check", func(u *unit) error {
		c, err := u.check(id)
		if err != nil {
			return err
		}
		if c.Status == core.CheckCleared {
			docs, err := u.tx.Where(storage.Expenses, "checkId", c.ID)
			if err != nil {
				return err
			}
			linked, err := storage.Decode[core.Expense](docs)
			if err != nil {
				return err
			}
			for _, exp := range linked {
				if err := u.refundExpense(exp); err != nil {
					return err
				}
			}
		}
		if err := u.tx.Delete(storage.Checks, id); err != nil {
			return err
		}
		u.emit(core.OpCheckDeleted, id, c.Amount, c.BankAccountID)
		return nil
	})
}
