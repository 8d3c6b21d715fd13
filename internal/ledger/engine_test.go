package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
	"khanevadati/internal/storage/memory"
)

const ns = "family-1"

type recordingPublisher struct {
	mu      sync.Mutex
	events  []core.Event
	ctxErrs []error
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return p.err
}

func (p *recordingPublisher) ops() []core.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Operation, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Operation)
	}
	return out
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store storage.Store
	e     *Engine
	pub   *recordingPublisher
	seq   int
	mu    sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, memory.New())
}

func newFixtureWith(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: store, pub: &recordingPublisher{}}
	f.e = NewEngine(store, f.pub, nil)
	f.e.now = func() time.Time { return time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC) }
	f.e.newID = func() string {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.seq++
		return fmt.Sprintf("id-%03d", f.seq)
	}
	return f
}

func (f *fixture) account(owner core.OwnerID, balance int64) core.BankAccount {
	f.t.Helper()
	acc, err := f.e.CreateBankAccount(f.ctx, ns, "u1", AccountInput{
		OwnerID:        owner,
		BankName:       "Melli",
		AccountType:    core.AccountChecking,
		InitialBalance: money(balance),
	})
	if err != nil {
		f.t.Fatalf("CreateBankAccount() error = %v", err)
	}
	return acc
}

func (f *fixture) category(name string) string {
	f.t.Helper()
	c, err := f.e.CreateCategory(f.ctx, ns, "u1", core.Category{Name: name})
	if err != nil {
		f.t.Fatalf("CreateCategory() error = %v", err)
	}
	return c.ID
}

func (f *fixture) payee(name string) string {
	f.t.Helper()
	p, err := f.e.CreatePayee(f.ctx, ns, "u1", core.Payee{Name: name})
	if err != nil {
		f.t.Fatalf("CreatePayee() error = %v", err)
	}
	return p.ID
}

func (f *fixture) get(id string) core.BankAccount {
	f.t.Helper()
	acc, err := f.e.Account(f.ctx, ns, id)
	if err != nil {
		f.t.Fatalf("Account(%s) error = %v", id, err)
	}
	return acc
}

func (f *fixture) expect(id string, balance, blocked int64) {
	f.t.Helper()
	acc := f.get(id)
	if acc.Balance.Minor != balance || acc.BlockedBalance.Minor != blocked {
		f.t.Fatalf("account %s = balance %d blocked %d, want %d/%d",
			id, acc.Balance.Minor, acc.BlockedBalance.Minor, balance, blocked)
	}
}

func (f *fixture) snapshot() core.Snapshot {
	f.t.Helper()
	snap, err := f.e.Snapshot(f.ctx, ns)
	if err != nil {
		f.t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}

// checkInvariants asserts 0 <= blockedBalance <= balance for every account.
func (f *fixture) checkInvariants() {
	f.t.Helper()
	for _, a := range f.snapshot().Accounts {
		if a.BlockedBalance.IsNegative() || a.Balance.Less(a.BlockedBalance) {
			f.t.Fatalf("account %s violates 0 <= blocked(%d) <= balance(%d)",
				a.ID, a.BlockedBalance.Minor, a.Balance.Minor)
		}
	}
}

func (f *fixture) expense(accID, catID string, amount int64) (core.Expense, error) {
	return f.e.RecordExpense(f.ctx, ns, "u1", ExpenseInput{
		BankAccountID: accID,
		CategoryID:    catID,
		Amount:        money(amount),
		Description:   "groceries",
	})
}

func money(minor int64) core.Money { return core.Money{Minor: minor} }

func wantKind(t *testing.T, err error, kind core.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := core.KindOf(err); got != kind {
		t.Fatalf("KindOf(%v) = %s, want %s", err, got, kind)
	}
}

func TestRecordExpense(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	cat := f.category("Food")

	exp, err := f.expense(acc.ID, cat, 300)
	if err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	f.expect(acc.ID, 700, 0)
	if exp.BalanceBefore.Minor != 1000 || exp.BalanceAfter.Minor != 700 {
		t.Errorf("snapshot = %d -> %d, want 1000 -> 700", exp.BalanceBefore.Minor, exp.BalanceAfter.Minor)
	}
	if exp.OwnerID != core.OwnerAli {
		t.Errorf("OwnerID = %s, want %s", exp.OwnerID, core.OwnerAli)
	}
	if exp.RegisteredByUserID != "u1" {
		t.Errorf("RegisteredByUserID = %q, want u1", exp.RegisteredByUserID)
	}
}

func TestRecordExpenseValidation(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	cat := f.category("Food")

	cases := []struct {
		name string
		in   ExpenseInput
		kind core.Kind
	}{
		{"zero amount", ExpenseInput{BankAccountID: acc.ID, CategoryID: cat}, core.KindInvalidAmount},
		{"negative amount", ExpenseInput{BankAccountID: acc.ID, CategoryID: cat, Amount: money(-5)}, core.KindInvalidAmount},
		{"missing account", ExpenseInput{BankAccountID: "nope", CategoryID: cat, Amount: money(5)}, core.KindNotFound},
		{"missing category", ExpenseInput{BankAccountID: acc.ID, CategoryID: "nope", Amount: money(5)}, core.KindNotFound},
		{"missing payee", ExpenseInput{BankAccountID: acc.ID, CategoryID: cat, PayeeID: "nope", Amount: money(5)}, core.KindNotFound},
		{"no category", ExpenseInput{BankAccountID: acc.ID, Amount: money(5)}, core.KindInvalid},
		{"bad expenseFor", ExpenseInput{BankAccountID: acc.ID, CategoryID: cat, Amount: money(5), ExpenseFor: "bob"}, core.KindInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.e.RecordExpense(f.ctx, ns, "u1", tc.in)
			wantKind(t, err, tc.kind)
			f.expect(acc.ID, 1000, 0)
		})
	}
}

func TestExpenseBoundary(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	cat := f.category("Food")
	goal, err := f.e.CreateGoal(f.ctx, ns, "u1", GoalInput{
		Name: "Trip", OwnerID: core.OwnerAli, TargetAmount: money(500),
		InitialContribution: &ContributionInput{BankAccountID: acc.ID, Amount: money(250)},
	})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}
	if goal.CurrentAmount.Minor != 250 {
		t.Fatalf("CurrentAmount = %d, want 250", goal.CurrentAmount.Minor)
	}
	available := f.get(acc.ID).Available().Minor // 750

	_, err = f.expense(acc.ID, cat, available+1)
	wantKind(t, err, core.KindInsufficientFunds)
	f.expect(acc.ID, 1000, 250)

	if _, err := f.expense(acc.ID, cat, available); err != nil {
		t.Fatalf("spending exactly the available balance: %v", err)
	}
	f.expect(acc.ID, 250, 250)
	f.checkInvariants()
}

func TestDeleteExpenseRestoresBalance(t *testing.T) {
	for _, start := range []int64{100, 101, 5000, 123456789} {
		t.Run(fmt.Sprint(start), func(t *testing.T) {
			f := newFixture(t)
			acc := f.account(core.OwnerFatemeh, start)
			cat := f.category("Food")
			exp, err := f.expense(acc.ID, cat, 100)
			if err != nil {
				t.Fatalf("RecordExpense() error = %v", err)
			}
			if err := f.e.DeleteExpense(f.ctx, ns, "u1", exp.ID); err != nil {
				t.Fatalf("DeleteExpense() error = %v", err)
			}
			f.expect(acc.ID, start, 0)
			if n := len(f.snapshot().Expenses); n != 0 {
				t.Errorf("%d expenses left, want 0", n)
			}
		})
	}
}

func TestDeleteExpenseErrors(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	cat := f.category("Food")

	wantKind(t, f.e.DeleteExpense(f.ctx, ns, "u1", "missing"), core.KindNotFound)

	exp, err := f.expense(acc.ID, cat, 100)
	if err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	// Remove the account behind the engine's back.
	if err := f.store.Update(f.ctx, ns, func(tx storage.Tx) error {
		return tx.Delete(storage.BankAccounts, acc.ID)
	}); err != nil {
		t.Fatalf("delete account doc: %v", err)
	}
	wantKind(t, f.e.DeleteExpense(f.ctx, ns, "u1", exp.ID), core.KindNotFound)
	if n := len(f.snapshot().Expenses); n != 1 {
		t.Errorf("%d expenses left, want 1 (nothing deleted)", n)
	}
}

func TestIncome(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerShared, 0)
	cat := f.category("Food")

	inc, err := f.e.RecordIncome(f.ctx, ns, "u2", IncomeInput{BankAccountID: acc.ID, Amount: money(900), Source: "salary"})
	if err != nil {
		t.Fatalf("RecordIncome() error = %v", err)
	}
	if inc.BalanceBefore.Minor != 0 || inc.BalanceAfter.Minor != 900 {
		t.Errorf("snapshot = %d -> %d, want 0 -> 900", inc.BalanceBefore.Minor, inc.BalanceAfter.Minor)
	}
	f.expect(acc.ID, 900, 0)

	_, err = f.e.RecordIncome(f.ctx, ns, "u2", IncomeInput{BankAccountID: acc.ID})
	wantKind(t, err, core.KindInvalidAmount)

	// Spend most of it, then the reversal can no longer be covered.
	if _, err := f.expense(acc.ID, cat, 500); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	wantKind(t, f.e.DeleteIncome(f.ctx, ns, "u2", inc.ID), core.KindInsufficientFunds)
	f.expect(acc.ID, 400, 0)

	if _, err := f.e.RecordIncome(f.ctx, ns, "u2", IncomeInput{BankAccountID: acc.ID, Amount: money(500)}); err != nil {
		t.Fatalf("RecordIncome() error = %v", err)
	}
	if err := f.e.DeleteIncome(f.ctx, ns, "u2", inc.ID); err != nil {
		t.Fatalf("DeleteIncome() error = %v", err)
	}
	f.expect(acc.ID, 0, 0)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	a := f.account(core.OwnerAli, 500)
	b := f.account(core.OwnerFatemeh, 200)

	tr, err := f.e.Transfer(f.ctx, ns, "u1", TransferInput{FromBankAccountID: a.ID, ToBankAccountID: b.ID, Amount: money(500)})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	f.expect(a.ID, 0, 0)
	f.expect(b.ID, 700, 0)
	if tr.FromAccountBalanceBefore.Minor != 500 || tr.FromAccountBalanceAfter.Minor != 0 ||
		tr.ToAccountBalanceBefore.Minor != 200 || tr.ToAccountBalanceAfter.Minor != 700 {
		t.Errorf("snapshots = %+v", tr)
	}

	if err := f.e.DeleteTransfer(f.ctx, ns, "u1", tr.ID); err != nil {
		t.Fatalf("DeleteTransfer() error = %v", err)
	}
	f.expect(a.ID, 500, 0)
	f.expect(b.ID, 200, 0)
}

func TestTransferErrors(t *testing.T) {
	f := newFixture(t)
	a := f.account(core.OwnerAli, 500)
	b := f.account(core.OwnerFatemeh, 200)
	cat := f.category("Food")

	_, err := f.e.Transfer(f.ctx, ns, "u1", TransferInput{FromBankAccountID: a.ID, ToBankAccountID: a.ID, Amount: money(1)})
	wantKind(t, err, core.KindInvalidOperation)

	_, err = f.e.Transfer(f.ctx, ns, "u1", TransferInput{FromBankAccountID: a.ID, ToBankAccountID: b.ID, Amount: money(501)})
	wantKind(t, err, core.KindInsufficientFunds)

	_, err = f.e.Transfer(f.ctx, ns, "u1", TransferInput{FromBankAccountID: a.ID, ToBankAccountID: "nope", Amount: money(1)})
	wantKind(t, err, core.KindNotFound)
	f.expect(a.ID, 500, 0)

	tr, err := f.e.Transfer(f.ctx, ns, "u1", TransferInput{FromBankAccountID: a.ID, ToBankAccountID: b.ID, Amount: money(300)})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	// Destination spends the money; the reversal would overdraw it.
	if _, err := f.expense(b.ID, cat, 450); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	wantKind(t, f.e.DeleteTransfer(f.ctx, ns, "u1", tr.ID), core.KindInsufficientFunds)
	f.expect(a.ID, 200, 0)
	f.expect(b.ID, 50, 0)
}

func TestCreditOverflowIsRejected(t *testing.T) {
	f := newFixture(t)
	a := f.account(core.OwnerAli, 100)
	b := f.account(core.OwnerFatemeh, 500)
	huge := core.Money{Minor: math.MaxInt64}
	before := len(f.pub.ops())

	_, err := f.e.RecordIncome(f.ctx, ns, "u1", IncomeInput{BankAccountID: a.ID, Amount: huge, Source: "salary"})
	wantKind(t, err, core.KindInvalidAmount)
	f.expect(a.ID, 100, 0)

	if _, err := f.e.RecordIncome(f.ctx, ns, "u1", IncomeInput{BankAccountID: b.ID, Amount: money(math.MaxInt64 - 500)}); err != nil {
		t.Fatalf("RecordIncome() error = %v", err)
	}
	_, err = f.e.Transfer(f.ctx, ns, "u1", TransferInput{FromBankAccountID: a.ID, ToBankAccountID: b.ID, Amount: money(100)})
	wantKind(t, err, core.KindInvalidAmount)
	f.expect(a.ID, 100, 0)
	f.expect(b.ID, math.MaxInt64, 0)

	if got := len(f.pub.ops()) - before; got != 1 {
		t.Errorf("published %d events, want 1 for the only committed income", got)
	}
	f.checkInvariants()
}

func TestPublishSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 100)

	ctx, cancel := context.WithCancel(f.ctx)
	f.e.publisher = publisherFunc(func(pctx context.Context, ev core.Event) error {
		cancel()
		return f.pub.Publish(pctx, ev)
	})
	if _, err := f.e.RecordIncome(ctx, ns, "u1", IncomeInput{BankAccountID: acc.ID, Amount: money(50)}); err != nil {
		t.Fatalf("RecordIncome() error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("caller context should be cancelled")
	}

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	last := len(f.pub.events) - 1
	if f.pub.events[last].Operation != core.OpIncomeRecorded {
		t.Fatalf("last event = %s, want %s", f.pub.events[last].Operation, core.OpIncomeRecorded)
	}
	if err := f.pub.ctxErrs[last]; err != nil {
		t.Errorf("publish context error = %v, want nil", err)
	}
}

type publisherFunc func(ctx context.Context, ev core.Event) error

func (fn publisherFunc) Publish(ctx context.Context, ev core.Event) error { return fn(ctx, ev) }

func newCheck(t *testing.T, f *fixture, accID string, amount int64) core.Check {
	t.Helper()
	c, err := f.e.CreateCheck(f.ctx, ns, "u1", CheckInput{
		BankAccountID: accID,
		PayeeID:       f.payee("Landlord"),
		CategoryID:    f.category("Rent"),
		Amount:        money(amount),
		DueDate:       core.NewDate(2025, 6, 1),
		SerialNumber:  "123",
	})
	if err != nil {
		t.Fatalf("CreateCheck() error = %v", err)
	}
	return c
}

func TestClearCheckInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 300)
	c := newCheck(t, f, acc.ID, 400)

	_, err := f.e.ClearCheck(f.ctx, ns, "u1", c.ID)
	wantKind(t, err, core.KindInsufficientFunds)
	f.expect(acc.ID, 300, 0)

	snap := f.snapshot()
	if snap.Checks[0].Status != core.CheckPending {
		t.Errorf("Status = %s, want pending", snap.Checks[0].Status)
	}
	if len(snap.Expenses) != 0 {
		t.Errorf("%d expenses, want 0", len(snap.Expenses))
	}
}

func TestCheckLifecycle(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	c := newCheck(t, f, acc.ID, 400)
	if c.OwnerID != core.OwnerAli || c.Status != core.CheckPending {
		t.Fatalf("CreateCheck() = %+v", c)
	}

	res, err := f.e.ClearCheck(f.ctx, ns, "u1", c.ID)
	if err != nil {
		t.Fatalf("ClearCheck() error = %v", err)
	}
	f.expect(acc.ID, 600, 0)
	if res.Check.Status != core.CheckCleared || res.Check.ClearedDate == nil {
		t.Errorf("check = %+v, want cleared with date", res.Check)
	}
	if res.Expense.CheckID != c.ID || res.Expense.PayeeID != c.PayeeID || res.Expense.CategoryID != c.CategoryID {
		t.Errorf("expense links = %+v", res.Expense)
	}

	_, err = f.e.ClearCheck(f.ctx, ns, "u1", c.ID)
	wantKind(t, err, core.KindInvalidState)
	_, err = f.e.UpdateCheck(f.ctx, ns, "u1", c.ID, CheckInput{})
	wantKind(t, err, core.KindInvalidState)
	wantKind(t, f.e.DeleteExpense(f.ctx, ns, "u1", res.Expense.ID), core.KindInvalidOperation)

	if err := f.e.DeleteCheck(f.ctx, ns, "u1", c.ID); err != nil {
		t.Fatalf("DeleteCheck() error = %v", err)
	}
	f.expect(acc.ID, 1000, 0)
	snap := f.snapshot()
	if len(snap.Checks) != 0 || len(snap.Expenses) != 0 {
		t.Errorf("left %d checks and %d expenses, want none", len(snap.Checks), len(snap.Expenses))
	}
}

func TestDeletePendingCheck(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	c := newCheck(t, f, acc.ID, 400)

	updated, err := f.e.UpdateCheck(f.ctx, ns, "u1", c.ID, CheckInput{
		BankAccountID: acc.ID, PayeeID: c.PayeeID, CategoryID: c.CategoryID,
		Amount: money(450), DueDate: core.NewDate(2025, 7, 1),
	})
	if err != nil {
		t.Fatalf("UpdateCheck() error = %v", err)
	}
	if updated.Amount.Minor != 450 {
		t.Errorf("Amount = %d, want 450", updated.Amount.Minor)
	}
	if err := f.e.DeleteCheck(f.ctx, ns, "u1", c.ID); err != nil {
		t.Fatalf("DeleteCheck() error = %v", err)
	}
	f.expect(acc.ID, 1000, 0)
}

func TestLoanInstallments(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 5000)
	loan, err := f.e.CreateLoan(f.ctx, ns, "u1", LoanInput{
		Title: "Car", OwnerID: core.OwnerAli, Amount: money(1000),
		InstallmentAmount: money(100), NumberOfInstallments: 10, PaymentDay: 15,
	})
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}
	if loan.RemainingAmount.Minor != 1000 || loan.PaidInstallments != 0 {
		t.Fatalf("CreateLoan() = %+v", loan)
	}

	_, err = f.e.PayInstallment(f.ctx, ns, "u1", loan.ID, PaymentInput{BankAccountID: acc.ID})
	wantKind(t, err, core.KindInvalidAmount)

	res, err := f.e.PayInstallment(f.ctx, ns, "u1", loan.ID, PaymentInput{BankAccountID: acc.ID, Amount: money(1000)})
	if err != nil {
		t.Fatalf("PayInstallment() error = %v", err)
	}
	if res.Loan.RemainingAmount.Minor != 0 || res.Loan.PaidInstallments != 1 {
		t.Errorf("loan = %+v, want remaining 0 and 1 paid", res.Loan)
	}
	if res.Expense.LoanPaymentID != res.Payment.ID {
		t.Errorf("expense not linked to payment")
	}
	f.expect(acc.ID, 4000, 0)

	_, err = f.e.PayInstallment(f.ctx, ns, "u1", loan.ID, PaymentInput{BankAccountID: acc.ID, Amount: money(1)})
	wantKind(t, err, core.KindInvalidAmount)
	wantKind(t, f.e.DeleteLoan(f.ctx, ns, "u1", loan.ID), core.KindHasDependents)
	f.expect(acc.ID, 4000, 0)

	// The payment pins the account too.
	wantKind(t, f.e.DeleteBankAccount(f.ctx, ns, "u1", acc.ID), core.KindHasDependents)
	wantKind(t, f.e.DeleteExpense(f.ctx, ns, "u1", res.Expense.ID), core.KindInvalidOperation)
}

func TestLoanInstallmentInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 50)
	loan, err := f.e.CreateLoan(f.ctx, ns, "u1", LoanInput{Title: "Car", OwnerID: core.OwnerAli, Amount: money(1000)})
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}
	_, err = f.e.PayInstallment(f.ctx, ns, "u1", loan.ID, PaymentInput{BankAccountID: acc.ID, Amount: money(100)})
	wantKind(t, err, core.KindInsufficientFunds)

	snap := f.snapshot()
	if snap.Loans[0].RemainingAmount.Minor != 1000 || len(snap.LoanPayments) != 0 || len(snap.Expenses) != 0 {
		t.Errorf("failed payment left traces: %+v", snap)
	}
	// No installment category may leak out of the aborted transaction either.
	if len(snap.Categories) != 0 {
		t.Errorf("%d categories, want 0", len(snap.Categories))
	}
}

func TestLoanDeposit(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerFatemeh, 100)
	loan, err := f.e.CreateLoan(f.ctx, ns, "u1", LoanInput{
		Title: "Home", OwnerID: core.OwnerAli, Amount: money(1000), DepositToAccountID: acc.ID,
	})
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}
	if loan.OwnerID != core.OwnerFatemeh {
		t.Errorf("OwnerID = %s, want owner of the deposit account", loan.OwnerID)
	}
	if loan.PaymentDay != 1 {
		t.Errorf("PaymentDay = %d, want default 1", loan.PaymentDay)
	}
	f.expect(acc.ID, 1100, 0)

	if err := f.e.DeleteLoan(f.ctx, ns, "u1", loan.ID); err != nil {
		t.Fatalf("DeleteLoan() error = %v", err)
	}
	f.expect(acc.ID, 100, 0)
}

func TestLoanDepositReversalGuard(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 0)
	cat := f.category("Food")
	loan, err := f.e.CreateLoan(f.ctx, ns, "u1", LoanInput{
		Title: "Home", Amount: money(1000), DepositToAccountID: acc.ID,
	})
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}
	if _, err := f.expense(acc.ID, cat, 600); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	wantKind(t, f.e.DeleteLoan(f.ctx, ns, "u1", loan.ID), core.KindInsufficientFunds)
	f.expect(acc.ID, 400, 0)
}

func TestDebt(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	payee := f.payee("Uncle")

	_, err := f.e.CreateDebt(f.ctx, ns, "u1", DebtInput{OwnerID: core.OwnerAli, PayeeID: payee})
	wantKind(t, err, core.KindInvalidAmount)

	debt, err := f.e.CreateDebt(f.ctx, ns, "u1", DebtInput{OwnerID: core.OwnerAli, PayeeID: payee, Amount: money(600), Description: "wedding"})
	if err != nil {
		t.Fatalf("CreateDebt() error = %v", err)
	}
	other, err := f.e.CreateDebt(f.ctx, ns, "u1", DebtInput{OwnerID: core.OwnerAli, PayeeID: payee, Amount: money(50)})
	if err != nil {
		t.Fatalf("CreateDebt() error = %v", err)
	}

	_, err = f.e.PayDebt(f.ctx, ns, "u1", debt.ID, PaymentInput{BankAccountID: acc.ID, Amount: money(601)})
	wantKind(t, err, core.KindInvalidAmount)

	res, err := f.e.PayDebt(f.ctx, ns, "u1", debt.ID, PaymentInput{BankAccountID: acc.ID, Amount: money(200)})
	if err != nil {
		t.Fatalf("PayDebt() error = %v", err)
	}
	if res.Debt.RemainingAmount.Minor != 400 {
		t.Errorf("RemainingAmount = %d, want 400", res.Debt.RemainingAmount.Minor)
	}
	if res.Expense.SubType != core.SubTypeDebtPayment || res.Expense.PayeeID != payee || res.Expense.DebtPaymentID != res.Payment.ID {
		t.Errorf("expense = %+v", res.Expense)
	}
	f.expect(acc.ID, 800, 0)

	wantKind(t, f.e.DeleteDebt(f.ctx, ns, "u1", debt.ID), core.KindHasDependents)
	if err := f.e.DeleteDebt(f.ctx, ns, "u1", other.ID); err != nil {
		t.Fatalf("DeleteDebt() error = %v", err)
	}
	wantKind(t, f.e.DeletePayee(f.ctx, ns, "u1", payee), core.KindHasDependents)
}

func TestAchieveGoalWithCashShortfall(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	acc2 := f.account(core.OwnerFatemeh, 800)

	goal, err := f.e.CreateGoal(f.ctx, ns, "u1", GoalInput{Name: "Laptop", OwnerID: core.OwnerShared, TargetAmount: money(1000)})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}
	if goal.Priority != core.PriorityMedium {
		t.Errorf("Priority = %s, want medium default", goal.Priority)
	}
	if _, err := f.e.ContributeToGoal(f.ctx, ns, "u1", goal.ID, ContributionInput{BankAccountID: acc.ID, Amount: money(400)}); err != nil {
		t.Fatalf("ContributeToGoal() error = %v", err)
	}
	f.expect(acc.ID, 1000, 400)

	res, err := f.e.AchieveGoal(f.ctx, ns, "u1", goal.ID, AchieveInput{ActualCost: money(1000), PaymentAccountID: acc2.ID})
	if err != nil {
		t.Fatalf("AchieveGoal() error = %v", err)
	}
	f.expect(acc.ID, 600, 0)
	f.expect(acc2.ID, 200, 0)
	if !res.Goal.IsAchieved || res.Goal.ActualCost.Minor != 1000 {
		t.Errorf("goal = %+v", res.Goal)
	}
	if len(res.Expenses) != 2 || res.Expenses[0].SubType != core.SubTypeGoalSaved || res.Expenses[1].SubType != core.SubTypeGoalCash {
		t.Fatalf("expenses = %+v", res.Expenses)
	}
	if res.Expenses[1].Amount.Minor != 600 {
		t.Errorf("cash portion = %d, want 600", res.Expenses[1].Amount.Minor)
	}

	snap := f.snapshot()
	var goalsCategory string
	for _, c := range snap.Categories {
		if c.Name == goalCategoryName {
			goalsCategory = c.ID
		}
	}
	if goalsCategory == "" || res.Expenses[0].CategoryID != goalsCategory {
		t.Errorf("goal expenses not filed under %q", goalCategoryName)
	}

	_, err = f.e.AchieveGoal(f.ctx, ns, "u1", goal.ID, AchieveInput{ActualCost: money(1000)})
	wantKind(t, err, core.KindInvalidState)
	_, err = f.e.ContributeToGoal(f.ctx, ns, "u1", goal.ID, ContributionInput{BankAccountID: acc.ID, Amount: money(1)})
	wantKind(t, err, core.KindInvalidState)
	wantKind(t, f.e.DeleteGoal(f.ctx, ns, "u1", goal.ID), core.KindInvalidState)
	wantKind(t, f.e.DeleteExpense(f.ctx, ns, "u1", res.Expenses[0].ID), core.KindInvalidOperation)
	f.checkInvariants()
}

func TestGoalRoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		contribute int64
		actualCost int64
	}{
		{"exact cost", 400, 400},
		{"cheaper than saved", 400, 250},
		{"cash shortfall", 400, 900},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			acc := f.account(core.OwnerAli, 1000)
			pay := f.account(core.OwnerAli, 1000)
			goal, err := f.e.CreateGoal(f.ctx, ns, "u1", GoalInput{Name: "Bike", OwnerID: core.OwnerAli, TargetAmount: money(500), Priority: core.PriorityHigh})
			if err != nil {
				t.Fatalf("CreateGoal() error = %v", err)
			}
			goal, err = f.e.ContributeToGoal(f.ctx, ns, "u1", goal.ID, ContributionInput{BankAccountID: acc.ID, Amount: money(tc.contribute)})
			if err != nil {
				t.Fatalf("ContributeToGoal() error = %v", err)
			}
			before := f.get(acc.ID)
			payBefore := f.get(pay.ID)

			if _, err := f.e.AchieveGoal(f.ctx, ns, "u1", goal.ID, AchieveInput{ActualCost: money(tc.actualCost), PaymentAccountID: pay.ID}); err != nil {
				t.Fatalf("AchieveGoal() error = %v", err)
			}
			reverted, err := f.e.RevertGoal(f.ctx, ns, "u1", goal.ID)
			if err != nil {
				t.Fatalf("RevertGoal() error = %v", err)
			}

			f.expect(acc.ID, before.Balance.Minor, before.BlockedBalance.Minor)
			f.expect(pay.ID, payBefore.Balance.Minor, payBefore.BlockedBalance.Minor)
			if reverted.IsAchieved || !reverted.ActualCost.IsZero() || reverted.CurrentAmount != goal.CurrentAmount {
				t.Errorf("goal after revert = %+v", reverted)
			}
			if n := len(f.snapshot().Expenses); n != 0 {
				t.Errorf("%d goal expenses left, want 0", n)
			}
			_, err = f.e.RevertGoal(f.ctx, ns, "u1", goal.ID)
			wantKind(t, err, core.KindInvalidState)
			f.checkInvariants()
		})
	}
}

func TestAchieveGoalFailuresAreAtomic(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	poor := f.account(core.OwnerAli, 100)
	goal, err := f.e.CreateGoal(f.ctx, ns, "u1", GoalInput{
		Name: "Sofa", OwnerID: core.OwnerAli, TargetAmount: money(900),
		InitialContribution: &ContributionInput{BankAccountID: acc.ID, Amount: money(500)},
	})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}

	_, err = f.e.AchieveGoal(f.ctx, ns, "u1", goal.ID, AchieveInput{ActualCost: money(900)})
	wantKind(t, err, core.KindInvalidOperation)

	_, err = f.e.AchieveGoal(f.ctx, ns, "u1", goal.ID, AchieveInput{ActualCost: money(900), PaymentAccountID: poor.ID})
	wantKind(t, err, core.KindInsufficientFunds)

	_, err = f.e.AchieveGoal(f.ctx, ns, "u1", goal.ID, AchieveInput{ActualCost: money(0)})
	wantKind(t, err, core.KindInvalidAmount)

	f.expect(acc.ID, 1000, 500)
	f.expect(poor.ID, 100, 0)
	snap := f.snapshot()
	if len(snap.Expenses) != 0 || snap.Goals[0].IsAchieved {
		t.Errorf("failed achieve left traces: expenses=%d achieved=%v", len(snap.Expenses), snap.Goals[0].IsAchieved)
	}
}

func TestContributeToGoal(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 500)
	goal, err := f.e.CreateGoal(f.ctx, ns, "u1", GoalInput{Name: "Bike", OwnerID: core.OwnerAli, TargetAmount: money(1000)})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}
	if _, err := f.e.ContributeToGoal(f.ctx, ns, "u1", goal.ID, ContributionInput{BankAccountID: acc.ID, Amount: money(300)}); err != nil {
		t.Fatalf("ContributeToGoal() error = %v", err)
	}
	_, err = f.e.ContributeToGoal(f.ctx, ns, "u1", goal.ID, ContributionInput{BankAccountID: acc.ID, Amount: money(201)})
	wantKind(t, err, core.KindInsufficientFunds)
	_, err = f.e.ContributeToGoal(f.ctx, ns, "u1", goal.ID, ContributionInput{BankAccountID: acc.ID})
	wantKind(t, err, core.KindInvalidAmount)
	_, err = f.e.ContributeToGoal(f.ctx, ns, "u1", "nope", ContributionInput{BankAccountID: acc.ID, Amount: money(1)})
	wantKind(t, err, core.KindNotFound)

	g, err := f.e.ContributeToGoal(f.ctx, ns, "u1", goal.ID, ContributionInput{BankAccountID: acc.ID, Amount: money(200)})
	if err != nil {
		t.Fatalf("ContributeToGoal() error = %v", err)
	}
	if g.CurrentAmount.Minor != 500 || len(g.Contributions) != 2 {
		t.Errorf("goal = %+v", g)
	}
	f.expect(acc.ID, 500, 500)

	// Reserved funds cannot be spent elsewhere or hold up account deletion.
	wantKind(t, f.e.DeleteBankAccount(f.ctx, ns, "u1", acc.ID), core.KindHasDependents)

	if err := f.e.DeleteGoal(f.ctx, ns, "u1", goal.ID); err != nil {
		t.Fatalf("DeleteGoal() error = %v", err)
	}
	f.expect(acc.ID, 500, 0)
	if err := f.e.DeleteBankAccount(f.ctx, ns, "u1", acc.ID); err != nil {
		t.Fatalf("DeleteBankAccount() error = %v", err)
	}
}

func TestBankAccountLifecycle(t *testing.T) {
	f := newFixture(t)
	_, err := f.e.CreateBankAccount(f.ctx, ns, "u1", AccountInput{OwnerID: core.OwnerAli, BankName: "x", AccountType: core.AccountSavings, InitialBalance: money(-1)})
	wantKind(t, err, core.KindInvalidAmount)
	_, err = f.e.CreateBankAccount(f.ctx, ns, "u1", AccountInput{OwnerID: "someone", BankName: "x", AccountType: core.AccountSavings})
	wantKind(t, err, core.KindInvalid)

	acc := f.account(core.OwnerAli, 700)
	if acc.InitialBalance.Minor != 700 || acc.Balance.Minor != 700 || !acc.BlockedBalance.IsZero() {
		t.Fatalf("CreateBankAccount() = %+v", acc)
	}

	updated, err := f.e.UpdateBankAccount(f.ctx, ns, "u1", acc.ID, AccountInput{
		OwnerID: core.OwnerShared, BankName: "Saman", AccountType: core.AccountSavings, InitialBalance: money(1),
	})
	if err != nil {
		t.Fatalf("UpdateBankAccount() error = %v", err)
	}
	if updated.BankName != "Saman" || updated.Balance.Minor != 700 || updated.InitialBalance.Minor != 700 {
		t.Errorf("UpdateBankAccount() = %+v, balances must not change", updated)
	}

	other := f.account(core.OwnerAli, 0)
	if _, err := f.e.RecordIncome(f.ctx, ns, "u1", IncomeInput{BankAccountID: other.ID, Amount: money(5)}); err != nil {
		t.Fatalf("RecordIncome() error = %v", err)
	}
	wantKind(t, f.e.DeleteBankAccount(f.ctx, ns, "u1", other.ID), core.KindHasDependents)

	if err := f.e.DeleteBankAccount(f.ctx, ns, "u1", acc.ID); err != nil {
		t.Fatalf("DeleteBankAccount() error = %v", err)
	}
	wantKind(t, f.e.DeleteBankAccount(f.ctx, ns, "u1", acc.ID), core.KindNotFound)
}

func TestDeleteAccountReferencedByTransferDestination(t *testing.T) {
	f := newFixture(t)
	a := f.account(core.OwnerAli, 100)
	b := f.account(core.OwnerAli, 0)
	if _, err := f.e.Transfer(f.ctx, ns, "u1", TransferInput{FromBankAccountID: a.ID, ToBankAccountID: b.ID, Amount: money(10)}); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	wantKind(t, f.e.DeleteBankAccount(f.ctx, ns, "u1", b.ID), core.KindHasDependents)
	wantKind(t, f.e.DeleteBankAccount(f.ctx, ns, "u1", a.ID), core.KindHasDependents)
}

func TestReferenceGuards(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	cat := f.category("Food")
	unused := f.category("Unused")
	payee := f.payee("Shop")

	if _, err := f.e.RecordExpense(f.ctx, ns, "u1", ExpenseInput{BankAccountID: acc.ID, CategoryID: cat, PayeeID: payee, Amount: money(10)}); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	wantKind(t, f.e.DeleteCategory(f.ctx, ns, "u1", cat), core.KindHasDependents)
	wantKind(t, f.e.DeletePayee(f.ctx, ns, "u1", payee), core.KindHasDependents)
	if err := f.e.DeleteCategory(f.ctx, ns, "u1", unused); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	wantKind(t, f.e.DeleteCategory(f.ctx, ns, "u1", unused), core.KindNotFound)

	renamed, err := f.e.SaveCategory(f.ctx, ns, "u1", cat, core.Category{Name: "Groceries"})
	if err != nil || renamed.ID != cat || renamed.Name != "Groceries" {
		t.Fatalf("SaveCategory() = %+v, %v", renamed, err)
	}
	_, err = f.e.SavePayee(f.ctx, ns, "u1", "nope", core.Payee{Name: "x"})
	wantKind(t, err, core.KindNotFound)
	_, err = f.e.CreatePayee(f.ctx, ns, "u1", core.Payee{Name: " "})
	wantKind(t, err, core.KindInvalid)
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 100)
	cat := f.category("Food")
	if _, err := f.expense(acc.ID, cat, 500); err == nil {
		t.Fatalf("expected InsufficientFunds")
	}
	if _, err := f.expense(acc.ID, cat, 50); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}

	got := f.pub.ops()
	want := []core.Operation{core.OpAccountCreated, core.OpCategorySaved, core.OpExpenseRecorded}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	last := f.pub.events[len(f.pub.events)-1]
	if last.Namespace != ns || last.Amount.Minor != 50 || len(last.AccountIDs) != 1 || last.AccountIDs[0] != acc.ID {
		t.Errorf("event = %+v", last)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	acc := f.account(core.OwnerAli, 100)
	if _, err := f.e.RecordIncome(f.ctx, ns, "u1", IncomeInput{BankAccountID: acc.ID, Amount: money(1)}); err != nil {
		t.Fatalf("RecordIncome() error = %v", err)
	}
	f.expect(acc.ID, 101, 0)
}

func TestNamespaceRequired(t *testing.T) {
	f := newFixture(t)
	_, err := f.e.CreateBankAccount(f.ctx, "", "u1", AccountInput{})
	wantKind(t, err, core.KindInvalid)
	_, err = f.e.Snapshot(f.ctx, "")
	wantKind(t, err, core.KindInvalid)
}

func TestConcurrentExpensesSerialize(t *testing.T) {
	f := newFixture(t)
	acc := f.account(core.OwnerAli, 1000)
	cat := f.category("Food")

	const workers = 15
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.expense(acc.ID, cat, 100)
			mu.Lock()
			defer mu.Unlock()
			switch core.KindOf(err) {
			case "":
				succeeded++
			case core.KindInsufficientFunds:
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 || insufficient != 5 {
		t.Errorf("succeeded=%d insufficient=%d, want 10/5", succeeded, insufficient)
	}
	f.expect(acc.ID, 0, 0)
	if n := len(f.snapshot().Expenses); n != 10 {
		t.Errorf("%d expenses, want 10", n)
	}
}

func TestEngineOnSQLite(t *testing.T) {
	store, err := storage.NewSQLiteStore(t.TempDir() + "/ledger.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()
	f := newFixtureWith(t, store)

	a := f.account(core.OwnerAli, 500)
	b := f.account(core.OwnerFatemeh, 200)
	cat := f.category("Food")

	tr, err := f.e.Transfer(f.ctx, ns, "u1", TransferInput{FromBankAccountID: a.ID, ToBankAccountID: b.ID, Amount: money(500)})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	f.expect(a.ID, 0, 0)
	f.expect(b.ID, 700, 0)

	_, err = f.expense(a.ID, cat, 1)
	wantKind(t, err, core.KindInsufficientFunds)

	if err := f.e.DeleteTransfer(f.ctx, ns, "u1", tr.ID); err != nil {
		t.Fatalf("DeleteTransfer() error = %v", err)
	}
	f.expect(a.ID, 500, 0)
	f.expect(b.ID, 200, 0)

	goal, err := f.e.CreateGoal(f.ctx, ns, "u1", GoalInput{
		Name: "TV", OwnerID: core.OwnerShared, TargetAmount: money(300),
		InitialContribution: &ContributionInput{BankAccountID: a.ID, Amount: money(300)},
	})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}
	if _, err := f.e.AchieveGoal(f.ctx, ns, "u1", goal.ID, AchieveInput{ActualCost: money(300)}); err != nil {
		t.Fatalf("AchieveGoal() error = %v", err)
	}
	f.expect(a.ID, 200, 0)
	if _, err := f.e.RevertGoal(f.ctx, ns, "u1", goal.ID); err != nil {
		t.Fatalf("RevertGoal() error = %v", err)
	}
	f.expect(a.ID, 500, 300)
	f.checkInvariants()
}
