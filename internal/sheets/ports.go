// Package sheets exports committed ledger events to an append-only journal
// spreadsheet.
package sheets

import (
	"context"
	"strings"
	"time"

	"khanevadati/internal/core"
)

// JournalWriter appends one journal row per ledger event.
type JournalWriter interface {
	AppendEntry(ctx context.Context, e Entry) (rowRef string, err error)
}

// Header names the journal columns in the order Row writes them.
var Header = []any{"Timestamp", "Namespace", "Operation", "Entity", "Accounts", "Amount", "User", "Event"}

type Entry struct {
	EventID    string
	Namespace  string
	Operation  core.Operation
	EntityID   string
	AccountIDs []string
	Amount     core.Money
	UserID     string
	Timestamp  time.Time
}

func EntryFromEvent(ev core.Event) Entry {
	return Entry{
		EventID:    ev.ID,
		Namespace:  ev.Namespace,
		Operation:  ev.Operation,
		EntityID:   ev.EntityID,
		AccountIDs: ev.AccountIDs,
		Amount:     ev.Amount,
		UserID:     ev.UserID,
		Timestamp:  ev.Timestamp,
	}
}

// Row formats the entry as spreadsheet cells. Amounts are written in major
// units with two decimals so the sheet can sum them.
func (e Entry) Row() []any {
	return []any{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Namespace,
		string(e.Operation),
		e.EntityID,
		strings.Join(e.AccountIDs, ","),
		e.Amount.String(),
		e.UserID,
		e.EventID,
	}
}
