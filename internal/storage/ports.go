package storage

import (
	"context"
	"encoding/json"
)

// Collection names one document collection inside a family namespace.
type Collection string

const (
	BankAccounts  Collection = "bankAccounts"
	Incomes       Collection = "incomes"
	Expenses      Collection = "expenses"
	Transfers     Collection = "transfers"
	Checks        Collection = "checks"
	Loans         Collection = "loans"
	LoanPayments  Collection = "loanPayments"
	PreviousDebts Collection = "previousDebts"
	DebtPayments  Collection = "debtPayments"
	Goals         Collection = "financialGoals"
	Categories    Collection = "categories"
	Payees        Collection = "payees"
)

// Collections lists every collection of a namespace.
var Collections = []Collection{
	BankAccounts, Incomes, Expenses, Transfers, Checks, Loans,
	LoanPayments, PreviousDebts, DebtPayments, Goals, Categories, Payees,
}

// Tx is a unit of work over the documents of one namespace.
//
// Documents are JSON objects that carry their own "id" field. Get returns a
// core NotFound error when the document does not exist.
type Tx interface {
	Get(coll Collection, id string, dst any) error
	Put(coll Collection, id string, doc any) error
	Delete(coll Collection, id string) error
	List(coll Collection) ([]json.RawMessage, error)
	// Where returns documents whose top-level string field equals value.
	Where(coll Collection, field, value string) ([]json.RawMessage, error)
	Count(coll Collection, field, value string) (int, error)
}

// Store runs units of work. Update commits every write of fn atomically or
// none of them when fn returns an error. View never writes.
type Store interface {
	Update(ctx context.Context, ns string, fn func(tx Tx) error) error
	View(ctx context.Context, ns string, fn func(tx Tx) error) error
	Close() error
}

// Decode unmarshals raw documents into a typed slice.
func Decode[T any](docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
