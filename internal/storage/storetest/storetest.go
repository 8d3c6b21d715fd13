// Package storetest holds behaviour checks shared by every storage.Store.
package storetest

import (
	"context"
	"errors"
	"testing"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

type doc struct {
	ID            string `json:"id"`
	BankAccountID string `json:"bankAccountId"`
	Amount        int64  `json:"amount"`
}

// Run exercises the unit-of-work contract against a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("commit makes writes visible", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.Update(ctx, "fam", func(tx storage.Tx) error {
			return tx.Put(storage.Expenses, "e1", doc{ID: "e1", BankAccountID: "a1", Amount: 5})
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		var got doc
		err = s.View(ctx, "fam", func(tx storage.Tx) error {
			return tx.Get(storage.Expenses, "e1", &got)
		})
		if err != nil || got.Amount != 5 {
			t.Fatalf("Get() = %+v, %v", got, err)
		}
	})

	t.Run("closure error discards every write", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("boom")
		err := s.Update(ctx, "fam", func(tx storage.Tx) error {
			if err := tx.Put(storage.Expenses, "e1", doc{ID: "e1"}); err != nil {
				return err
			}
			if err := tx.Put(storage.BankAccounts, "a1", doc{ID: "a1"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Update() error = %v, want %v", err, boom)
		}
		err = s.View(ctx, "fam", func(tx storage.Tx) error {
			docs, err := tx.List(storage.Expenses)
			if err != nil {
				return err
			}
			if len(docs) != 0 {
				t.Errorf("List() returned %d docs after abort, want 0", len(docs))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("View() error = %v", err)
		}
	})

	t.Run("staged writes visible inside the transaction", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), "fam", func(tx storage.Tx) error {
			if err := tx.Put(storage.Expenses, "e1", doc{ID: "e1", BankAccountID: "a1"}); err != nil {
				return err
			}
			n, err := tx.Count(storage.Expenses, "bankAccountId", "a1")
			if err != nil {
				return err
			}
			if n != 1 {
				t.Errorf("Count() = %d, want 1", n)
			}
			if err := tx.Delete(storage.Expenses, "e1"); err != nil {
				return err
			}
			var d doc
			if err := tx.Get(storage.Expenses, "e1", &d); core.KindOf(err) != core.KindNotFound {
				t.Errorf("Get() after delete error = %v, want NotFound", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	})

	t.Run("where filters on a string field", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.Update(ctx, "fam", func(tx storage.Tx) error {
			for _, d := range []doc{{ID: "e1", BankAccountID: "a1"}, {ID: "e2", BankAccountID: "a2"}, {ID: "e3", BankAccountID: "a1"}} {
				if err := tx.Put(storage.Expenses, d.ID, d); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		err = s.View(ctx, "fam", func(tx storage.Tx) error {
			docs, err := tx.Where(storage.Expenses, "bankAccountId", "a1")
			if err != nil {
				return err
			}
			got, err := storage.Decode[doc](docs)
			if err != nil {
				return err
			}
			if len(got) != 2 || got[0].ID != "e1" || got[1].ID != "e3" {
				t.Errorf("Where() = %+v, want e1 and e3", got)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("View() error = %v", err)
		}
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Update(ctx, "a", func(tx storage.Tx) error {
			return tx.Put(storage.Payees, "p1", doc{ID: "p1"})
		}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		err := s.View(ctx, "b", func(tx storage.Tx) error {
			var d doc
			return tx.Get(storage.Payees, "p1", &d)
		})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Get() in other namespace error = %v, want NotFound", err)
		}
	})

	t.Run("delete of missing document is not found", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), "fam", func(tx storage.Tx) error {
			return tx.Delete(storage.Checks, "nope")
		})
		if core.KindOf(err) != core.KindNotFound {
			t.Fatalf("Delete() error = %v, want NotFound", err)
		}
	})
}
