package ledger

import (
	"context"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

var payeeRefs = []reference{
	{storage.Expenses, "payeeId"},
	{storage.Checks, "payeeId"},
	{storage.Loans, "payeeId"},
	{storage.PreviousDebts, "payeeId"},
}

var categoryRefs = []reference{
	{storage.Expenses, "categoryId"},
	{storage.Checks, "categoryId"},
}

func (e *Engine) CreatePayee(ctx context.Context, ns, userID string, p core.Payee) (core.Payee, error) {
	return e.SavePayee(ctx, ns, userID, "", p)
}

// SavePayee creates the payee when id is empty and replaces it otherwise.
func (e *Engine) SavePayee(ctx context.Context, ns, userID, id string, p core.Payee) (core.Payee, error) {
	err := e.update(ctx, ns, userID, "save_payee", func(u *unit) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if id == "" {
			p.ID = u.newID()
		} else {
			if err := u.exists(storage.Payees, id, "payee"); err != nil {
				return err
			}
			p.ID = id
		}
		if err := u.tx.Put(storage.Payees, p.ID, p); err != nil {
			return err
		}
		u.emit(core.OpPayeeSaved, p.ID, core.Money{})
		return nil
	})
	return p, err
}

// DeletePayee removes a payee no expense, check, loan or debt refers to.
func (e *Engine) DeletePayee(ctx context.Context, ns, userID, id string) error {
	return e.update(ctx, ns, userID, "delete_payee", func(u *unit) error {
		return u.deleteReferenced(storage.Payees, id, "payee", core.OpPayeeDeleted, payeeRefs)
	})
}

func (e *Engine) CreateCategory(ctx context.Context, ns, userID string, c core.Category) (core.Category, error) {
	return e.SaveCategory(ctx, ns, userID, "", c)
}

// SaveCategory creates the category when id is empty and replaces it otherwise.
func (e *Engine) SaveCategory(ctx context.Context, ns, userID, id string, c core.Category) (core.Category, error) {
	err := e.update(ctx, ns, userID, "save_category", func(u *unit) error {
		if err := c.Validate(); err != nil {
			return err
		}
		if id == "" {
			c.ID = u.newID()
		} else {
			if err := u.exists(storage.Categories, id, "category"); err != nil {
				return err
			}
			c.ID = id
		}
		if err := u.tx.Put(storage.Categories, c.ID, c); err != nil {
			return err
		}
		u.emit(core.OpCategorySaved, c.ID, core.Money{})
		return nil
	})
	return c, err
}

// DeleteCategory removes a category no expense or check refers to.
func (e *Engine) DeleteCategory(ctx context.Context, ns, userID, id string) error {
	return e.update(ctx, ns, userID, "delete_category", func(u *unit) error {
		return u.deleteReferenced(storage.Categories, id, "category", core.OpCategoryDeleted, categoryRefs)
	})
}

func (u *unit) deleteReferenced(coll storage.Collection, id, what string, op core.Operation, refs []reference) error {
	if err := u.exists(coll, id, what); err != nil {
		return err
	}
	n, err := u.dependents(id, refs...)
	if err != nil {
		return err
	}
	if n > 0 {
		return core.Errorf(core.KindHasDependents, "%s %q is referenced by %d records", what, id, n)
	}
	if err := u.tx.Delete(coll, id); err != nil {
		return err
	}
	u.emit(op, id, core.Money{})
	return nil
}
