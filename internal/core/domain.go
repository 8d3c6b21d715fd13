package core

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	OwnerAli     OwnerID = "ali"
	OwnerFatemeh OwnerID = "fatemeh"
	OwnerShared  OwnerID = "shared"

	// OwnerAll is only meaningful as an aggregation filter.
	OwnerAll OwnerID = "all"
)

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
)

const (
	CheckPending CheckStatus = "pending"
	CheckCleared CheckStatus = "cleared"
)

const (
	SubTypeGoalSaved   ExpenseSubType = "goal_saved_portion"
	SubTypeGoalCash    ExpenseSubType = "goal_cash_portion"
	SubTypeDebtPayment ExpenseSubType = "debt_payment"
)

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type (
	OwnerID        string
	AccountType    string
	CheckStatus    string
	ExpenseSubType string
	Priority       string

	// Date is a calendar day without time of day.
	Date struct {
		time.Time
	}

	BankAccount struct {
		ID             string      `json:"id"`
		OwnerID        OwnerID     `json:"ownerId"`
		BankName       string      `json:"bankName"`
		AccountNumber  string      `json:"accountNumber,omitempty"`
		CardNumber     string      `json:"cardNumber,omitempty"`
		ExpiryDate     string      `json:"expiryDate,omitempty"`
		AccountType    AccountType `json:"accountType"`
		Balance        Money       `json:"balance"`
		InitialBalance Money       `json:"initialBalance"`
		BlockedBalance Money       `json:"blockedBalance"`
		Theme          string      `json:"theme,omitempty"`
		CreatedAt      time.Time   `json:"createdAt"`
	}

	Expense struct {
		ID                 string         `json:"id"`
		OwnerID            OwnerID        `json:"ownerId"`
		RegisteredByUserID string         `json:"registeredByUserId"`
		BankAccountID      string         `json:"bankAccountId"`
		CategoryID         string         `json:"categoryId"`
		PayeeID            string         `json:"payeeId,omitempty"`
		Amount             Money          `json:"amount"`
		Date               time.Time      `json:"date"`
		Description        string         `json:"description"`
		SubType            ExpenseSubType `json:"subType,omitempty"`
		ExpenseFor         OwnerID        `json:"expenseFor,omitempty"`
		CheckID            string         `json:"checkId,omitempty"`
		GoalID             string         `json:"goalId,omitempty"`
		LoanPaymentID      string         `json:"loanPaymentId,omitempty"`
		DebtPaymentID      string         `json:"debtPaymentId,omitempty"`
		CreatedAt          time.Time      `json:"createdAt"`
		BalanceBefore      Money          `json:"balanceBefore"`
		BalanceAfter       Money          `json:"balanceAfter"`
	}

	Income struct {
		ID                 string    `json:"id"`
		OwnerID            OwnerID   `json:"ownerId"`
		RegisteredByUserID string    `json:"registeredByUserId"`
		BankAccountID      string    `json:"bankAccountId"`
		Source             string    `json:"source,omitempty"`
		Description        string    `json:"description"`
		Category           string    `json:"category,omitempty"`
		Amount             Money     `json:"amount"`
		Date               time.Time `json:"date"`
		CreatedAt          time.Time `json:"createdAt"`
		BalanceBefore      Money     `json:"balanceBefore"`
		BalanceAfter       Money     `json:"balanceAfter"`
	}

	Transfer struct {
		ID                       string    `json:"id"`
		RegisteredByUserID       string    `json:"registeredByUserId"`
		FromBankAccountID        string    `json:"fromBankAccountId"`
		ToBankAccountID          string    `json:"toBankAccountId"`
		Amount                   Money     `json:"amount"`
		TransferDate             time.Time `json:"transferDate"`
		Description              string    `json:"description,omitempty"`
		FromAccountBalanceBefore Money     `json:"fromAccountBalanceBefore"`
		FromAccountBalanceAfter  Money     `json:"fromAccountBalanceAfter"`
		ToAccountBalanceBefore   Money     `json:"toAccountBalanceBefore"`
		ToAccountBalanceAfter    Money     `json:"toAccountBalanceAfter"`
		CreatedAt                time.Time `json:"createdAt"`
	}

	Check struct {
		ID                 string      `json:"id"`
		RegisteredByUserID string      `json:"registeredByUserId"`
		OwnerID            OwnerID     `json:"ownerId"`
		BankAccountID      string      `json:"bankAccountId"`
		PayeeID            string      `json:"payeeId"`
		CategoryID         string      `json:"categoryId"`
		Amount             Money       `json:"amount"`
		IssueDate          Date        `json:"issueDate"`
		DueDate            Date        `json:"dueDate"`
		Status             CheckStatus `json:"status"`
		ClearedDate        *time.Time  `json:"clearedDate,omitempty"`
		Description        string      `json:"description,omitempty"`
		SayadID            string      `json:"sayadId,omitempty"`
		SerialNumber       string      `json:"serialNumber,omitempty"`
		CreatedAt          time.Time   `json:"createdAt"`
	}

	Loan struct {
		ID                   string    `json:"id"`
		RegisteredByUserID   string    `json:"registeredByUserId"`
		OwnerID              OwnerID   `json:"ownerId"`
		PayeeID              string    `json:"payeeId,omitempty"`
		Title                string    `json:"title"`
		Amount               Money     `json:"amount"`
		InstallmentAmount    Money     `json:"installmentAmount"`
		RemainingAmount      Money     `json:"remainingAmount"`
		StartDate            Date      `json:"startDate"`
		PaymentDay           int       `json:"paymentDay"`
		NumberOfInstallments int       `json:"numberOfInstallments"`
		PaidInstallments     int       `json:"paidInstallments"`
		DepositToAccountID   string    `json:"depositToAccountId,omitempty"`
		CreatedAt            time.Time `json:"createdAt"`
	}

	LoanPayment struct {
		ID                 string    `json:"id"`
		RegisteredByUserID string    `json:"registeredByUserId"`
		LoanID             string    `json:"loanId"`
		BankAccountID      string    `json:"bankAccountId"`
		Amount             Money     `json:"amount"`
		PaymentDate        time.Time `json:"paymentDate"`
	}

	PreviousDebt struct {
		ID                 string    `json:"id"`
		RegisteredByUserID string    `json:"registeredByUserId"`
		OwnerID            OwnerID   `json:"ownerId"`
		PayeeID            string    `json:"payeeId"`
		Description        string    `json:"description,omitempty"`
		Amount             Money     `json:"amount"`
		RemainingAmount    Money     `json:"remainingAmount"`
		StartDate          Date      `json:"startDate"`
		CreatedAt          time.Time `json:"createdAt"`
	}

	DebtPayment struct {
		ID                 string    `json:"id"`
		RegisteredByUserID string    `json:"registeredByUserId"`
		DebtID             string    `json:"debtId"`
		BankAccountID      string    `json:"bankAccountId"`
		Amount             Money     `json:"amount"`
		PaymentDate        time.Time `json:"paymentDate"`
	}

	Contribution struct {
		BankAccountID      string    `json:"bankAccountId"`
		Amount             Money     `json:"amount"`
		Date               time.Time `json:"date"`
		RegisteredByUserID string    `json:"registeredByUserId,omitempty"`
	}

	FinancialGoal struct {
		ID                 string         `json:"id"`
		RegisteredByUserID string         `json:"registeredByUserId"`
		OwnerID            OwnerID        `json:"ownerId"`
		Name               string         `json:"name"`
		TargetAmount       Money          `json:"targetAmount"`
		CurrentAmount      Money          `json:"currentAmount"`
		ActualCost         Money          `json:"actualCost"`
		TargetDate         Date           `json:"targetDate"`
		IsAchieved         bool           `json:"isAchieved"`
		Priority           Priority       `json:"priority"`
		Contributions      []Contribution `json:"contributions"`
		CreatedAt          time.Time      `json:"createdAt"`
	}

	Payee struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		PhoneNumber string `json:"phoneNumber,omitempty"`
	}

	Category struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

const dateLayout = "2006-01-02"

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, Errorf(KindInvalid, "invalid date %q", s)
	}
	return DateOf(t), nil
}

func (o OwnerID) Validate() error {
	switch o {
	case OwnerAli, OwnerFatemeh, OwnerShared:
		return nil
	}
	return Errorf(KindInvalid, "invalid owner %q", string(o))
}

// Available is the part of the balance not reserved by goal contributions.
func (a BankAccount) Available() Money {
	return a.Balance.Sub(a.BlockedBalance)
}

func (a BankAccount) Validate() error {
	if err := a.OwnerID.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(a.BankName) == "" {
		return Errorf(KindInvalid, "bank name is required")
	}
	switch a.AccountType {
	case AccountChecking, AccountSavings:
	default:
		return Errorf(KindInvalid, "invalid account type %q", string(a.AccountType))
	}
	if a.InitialBalance.IsNegative() {
		return Errorf(KindInvalidAmount, "initial balance cannot be negative")
	}
	return nil
}

func (c Check) Validate() error {
	if err := c.Amount.Validate(); err != nil {
		return err
	}
	if c.BankAccountID == "" || c.PayeeID == "" || c.CategoryID == "" {
		return Errorf(KindInvalid, "check requires bank account, payee and category")
	}
	if c.DueDate.IsZero() {
		return Errorf(KindInvalid, "check due date is required")
	}
	return nil
}

func (l Loan) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return Errorf(KindInvalid, "loan title is required")
	}
	if err := l.Amount.Validate(); err != nil {
		return err
	}
	if l.InstallmentAmount.IsNegative() {
		return Errorf(KindInvalidAmount, "installment amount cannot be negative")
	}
	if l.NumberOfInstallments < 0 {
		return Errorf(KindInvalidAmount, "number of installments cannot be negative")
	}
	if l.PaymentDay < 1 || l.PaymentDay > 31 {
		return Errorf(KindInvalid, "payment day must be between 1 and 31")
	}
	return nil
}

func (d PreviousDebt) Validate() error {
	if d.PayeeID == "" {
		return Errorf(KindInvalid, "debt requires a payee")
	}
	return d.Amount.Validate()
}

func (g FinancialGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return Errorf(KindInvalid, "goal name is required")
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return err
	}
	switch g.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return Errorf(KindInvalid, "invalid priority %q", string(g.Priority))
	}
	return nil
}

func (p Payee) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Errorf(KindInvalid, "payee name is required")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Errorf(KindInvalid, "category name is required")
	}
	return nil
}
