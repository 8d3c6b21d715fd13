package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

// Snapshot reads every collection of ns in one read transaction.
func (e *Engine) Snapshot(ctx context.Context, ns string) (core.Snapshot, error) {
	var snap core.Snapshot
	if ns == "" {
		return snap, core.Errorf(core.KindInvalid, "namespace is required")
	}

	raw := make(map[storage.Collection][]json.RawMessage, len(storage.Collections))
	err := e.store.View(ctx, ns, func(tx storage.Tx) error {
		for _, coll := range storage.Collections {
			docs, err := tx.List(coll)
			if err != nil {
				return fmt.Errorf("list %s: %w", coll, err)
			}
			raw[coll] = docs
		}
		return nil
	})
	if err != nil {
		return snap, err
	}

	g, _ := errgroup.WithContext(ctx)
	decodeInto(g, raw[storage.BankAccounts], &snap.Accounts)
	decodeInto(g, raw[storage.Incomes], &snap.Incomes)
	decodeInto(g, raw[storage.Expenses], &snap.Expenses)
	decodeInto(g, raw[storage.Transfers], &snap.Transfers)
	decodeInto(g, raw[storage.Checks], &snap.Checks)
	decodeInto(g, raw[storage.Loans], &snap.Loans)
	decodeInto(g, raw[storage.LoanPayments], &snap.LoanPayments)
	decodeInto(g, raw[storage.PreviousDebts], &snap.Debts)
	decodeInto(g, raw[storage.DebtPayments], &snap.DebtPayments)
	decodeInto(g, raw[storage.Goals], &snap.Goals)
	decodeInto(g, raw[storage.Categories], &snap.Categories)
	decodeInto(g, raw[storage.Payees], &snap.Payees)
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func decodeInto[T any](g *errgroup.Group, docs []json.RawMessage, dst *[]T) {
	g.Go(func() error {
		out, err := storage.Decode[T](docs)
		if err != nil {
			return err
		}
		*dst = out
		return nil
	})
}

// Account returns one bank account.
func (e *Engine) Account(ctx context.Context, ns, id string) (core.BankAccount, error) {
	var acc core.BankAccount
	err := e.store.View(ctx, ns, func(tx storage.Tx) error {
		u := &unit{tx: tx}
		var err error
		acc, err = u.account(id)
		return err
	})
	return acc, err
}
