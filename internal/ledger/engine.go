// Package ledger applies every balance-affecting operation of a family
// namespace as one atomic unit of work. It is the only writer of
// BankAccount.Balance and BankAccount.BlockedBalance.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"khanevadati/internal/core"
	"khanevadati/internal/log"
	"khanevadati/internal/storage"
)

// publishTimeout bounds each event publish after commit.
const publishTimeout = 10 * time.Second

// Publisher receives events for committed operations.
type Publisher interface {
	Publish(ctx context.Context, ev core.Event) error
}

type Engine struct {
	store     storage.Store
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

// NewEngine creates an engine over store. publisher may be nil.
func NewEngine(store storage.Store, publisher Publisher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Engine{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// unit carries the state of one running operation.
type unit struct {
	tx     storage.Tx
	userID string
	now    time.Time
	newID  func() string
	events []core.Event
}

// update runs fn in a write transaction and publishes its events after commit.
func (e *Engine) update(ctx context.Context, ns, userID, op string, fn func(u *unit) error) error {
	if ns == "" {
		return core.Errorf(core.KindInvalid, "namespace is required")
	}
	var events []core.Event
	err := e.store.Update(ctx, ns, func(tx storage.Tx) error {
		// fn may run more than once when the store retries.
		u := &unit{tx: tx, userID: userID, now: e.now(), newID: e.newID}
		if err := fn(u); err != nil {
			return err
		}
		events = u.events
		return nil
	})
	if err != nil {
		kind := core.KindOf(err)
		if kind == core.KindInternal {
			e.logger.ErrorContext(ctx, "Ledger operation failed",
				"namespace", ns, log.FieldOperation, op, log.FieldError, err)
		} else {
			e.logger.WarnContext(ctx, "Ledger operation rejected",
				"namespace", ns, log.FieldOperation, op, "kind", kind, log.FieldError, err)
		}
		return err
	}

	e.logger.InfoContext(ctx, "Ledger operation committed",
		"namespace", ns, log.FieldOperation, op, "user_id", userID)
	for _, ev := range events {
		ev.Namespace = ns
		e.publish(ctx, ev)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, ev core.Event) {
	if e.publisher == nil {
		return
	}
	// The operation is already committed, so the caller going away must not drop its event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(pubCtx, ev); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish ledger event",
			"event_id", ev.ID, log.FieldOperation, string(ev.Operation), log.FieldError, err)
	}
}

func (u *unit) emit(op core.Operation, entityID string, amount core.Money, accountIDs ...string) {
	u.events = append(u.events, core.Event{
		ID:         u.newID(),
		Operation:  op,
		EntityID:   entityID,
		AccountIDs: accountIDs,
		Amount:     amount,
		UserID:     u.userID,
		Timestamp:  u.now,
	})
}

func (u *unit) dateOr(t time.Time) time.Time {
	if t.IsZero() {
		return u.now
	}
	return t
}

func (u *unit) account(id string) (core.BankAccount, error) {
	var acc core.BankAccount
	if id == "" {
		return acc, core.Errorf(core.KindInvalid, "bank account id is required")
	}
	if err := u.tx.Get(storage.BankAccounts, id, &acc); err != nil {
		if core.KindOf(err) == core.KindNotFound {
			return acc, core.Errorf(core.KindNotFound, "bank account %q not found", id)
		}
		return acc, err
	}
	return acc, nil
}

func (u *unit) saveAccount(acc core.BankAccount) error {
	return u.tx.Put(storage.BankAccounts, acc.ID, acc)
}

// debit takes amount from the available part of the balance.
func debit(acc *core.BankAccount, amount core.Money) error {
	if available := acc.Available(); available.Less(amount) {
		return core.Errorf(core.KindInsufficientFunds,
			"account %q has %s available, %s required", acc.ID, available, amount)
	}
	acc.Balance = acc.Balance.Sub(amount)
	return nil
}

func credit(acc *core.BankAccount, amount core.Money) error {
	balance, err := acc.Balance.AddChecked(amount)
	if err != nil {
		return core.Errorf(core.KindInvalidAmount,
			"crediting %s would overflow account %q", amount, acc.ID)
	}
	acc.Balance = balance
	return nil
}

// reserve earmarks amount of the available balance.
func reserve(acc *core.BankAccount, amount core.Money) error {
	if available := acc.Available(); available.Less(amount) {
		return core.Errorf(core.KindInsufficientFunds,
			"account %q has %s available, %s required", acc.ID, available, amount)
	}
	blocked, err := acc.BlockedBalance.AddChecked(amount)
	if err != nil {
		return err
	}
	acc.BlockedBalance = blocked
	return nil
}

func release(acc *core.BankAccount, amount core.Money) error {
	if acc.BlockedBalance.Less(amount) {
		return core.Errorf(core.KindInvalidState,
			"account %q has %s blocked, cannot release %s", acc.ID, acc.BlockedBalance, amount)
	}
	acc.BlockedBalance = acc.BlockedBalance.Sub(amount)
	return nil
}

// exists reports a NotFound error naming what when id is missing from coll.
func (u *unit) exists(coll storage.Collection, id, what string) error {
	var doc struct {
		ID string `json:"id"`
	}
	if err := u.tx.Get(coll, id, &doc); err != nil {
		if core.KindOf(err) == core.KindNotFound {
			return core.Errorf(core.KindNotFound, "%s %q not found", what, id)
		}
		return err
	}
	return nil
}

type reference struct {
	coll  storage.Collection
	field string
}

// dependents counts documents pointing at id through any of refs.
func (u *unit) dependents(id string, refs ...reference) (int, error) {
	total := 0
	for _, ref := range refs {
		n, err := u.tx.Count(ref.coll, ref.field, id)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// ensureCategory returns the id of the category called name, creating it if needed.
func (u *unit) ensureCategory(name, description string) (string, error) {
	docs, err := u.tx.Where(storage.Categories, "name", name)
	if err != nil {
		return "", err
	}
	found, err := storage.Decode[core.Category](docs)
	if err != nil {
		return "", err
	}
	if len(found) > 0 {
		return found[0].ID, nil
	}
	c := core.Category{ID: u.newID(), Name: name, Description: description}
	if err := u.tx.Put(storage.Categories, c.ID, c); err != nil {
		return "", err
	}
	u.emit(core.OpCategorySaved, c.ID, core.Money{})
	return c.ID, nil
}

// spend debits acc and records the expense that justifies it.
func (u *unit) spend(acc *core.BankAccount, exp core.Expense) (core.Expense, error) {
	before := acc.Balance
	if err := debit(acc, exp.Amount); err != nil {
		return core.Expense{}, err
	}
	exp.ID = u.newID()
	exp.OwnerID = acc.OwnerID
	exp.BankAccountID = acc.ID
	exp.RegisteredByUserID = u.userID
	exp.Date = u.dateOr(exp.Date)
	exp.CreatedAt = u.now
	exp.BalanceBefore = before
	exp.BalanceAfter = acc.Balance
	if err := u.saveAccount(*acc); err != nil {
		return core.Expense{}, err
	}
	if err := u.tx.Put(storage.Expenses, exp.ID, exp); err != nil {
		return core.Expense{}, err
	}
	return exp, nil
}

// refundExpense credits the expense amount back to its account and deletes it.
func (u *unit) refundExpense(exp core.Expense) error {
	acc, err := u.account(exp.BankAccountID)
	if err != nil {
		return err
	}
	if err := credit(&acc, exp.Amount); err != nil {
		return err
	}
	if err := u.saveAccount(acc); err != nil {
		return err
	}
	return u.tx.Delete(storage.Expenses, exp.ID)
}
