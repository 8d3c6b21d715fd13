package core

// Snapshot is a consistent read of every collection in one namespace.
type Snapshot struct {
	Accounts     []BankAccount
	Incomes      []Income
	Expenses     []Expense
	Transfers    []Transfer
	Checks       []Check
	Loans        []Loan
	LoanPayments []LoanPayment
	Debts        []PreviousDebt
	DebtPayments []DebtPayment
	Goals        []FinancialGoal
	Categories   []Category
	Payees       []Payee
}

// Account returns the account with the given id.
func (s Snapshot) Account(id string) (BankAccount, bool) {
	for _, a := range s.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return BankAccount{}, false
}

// CategoryName resolves a category id, falling back to the id itself.
func (s Snapshot) CategoryName(id string) string {
	for _, c := range s.Categories {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}
