package core

import "time"

// Operation names a committed ledger operation.
type Operation string

const (
	OpAccountCreated   Operation = "account.created"
	OpAccountUpdated   Operation = "account.updated"
	OpAccountDeleted   Operation = "account.deleted"
	OpExpenseRecorded  Operation = "expense.recorded"
	OpExpenseDeleted   Operation = "expense.deleted"
	OpIncomeRecorded   Operation = "income.recorded"
	OpIncomeDeleted    Operation = "income.deleted"
	OpTransferRecorded Operation = "transfer.recorded"
	OpTransferDeleted  Operation = "transfer.deleted"
	OpCheckCreated     Operation = "check.created"
	OpCheckUpdated     Operation = "check.updated"
	OpCheckCleared     Operation = "check.cleared"
	OpCheckDeleted     Operation = "check.deleted"
	OpLoanCreated      Operation = "loan.created"
	OpLoanPaid         Operation = "loan.installment_paid"
	OpLoanDeleted      Operation = "loan.deleted"
	OpDebtCreated      Operation = "debt.created"
	OpDebtPaid         Operation = "debt.paid"
	OpDebtDeleted      Operation = "debt.deleted"
	OpGoalCreated      Operation = "goal.created"
	OpGoalContributed  Operation = "goal.contributed"
	OpGoalAchieved     Operation = "goal.achieved"
	OpGoalReverted     Operation = "goal.reverted"
	OpGoalDeleted      Operation = "goal.deleted"
	OpPayeeSaved       Operation = "payee.saved"
	OpPayeeDeleted     Operation = "payee.deleted"
	OpCategorySaved    Operation = "category.saved"
	OpCategoryDeleted  Operation = "category.deleted"
)

// Event describes one committed operation for downstream consumers.
type Event struct {
	ID         string    `json:"id"`
	Namespace  string    `json:"namespace"`
	Operation  Operation `json:"operation"`
	EntityID   string    `json:"entityId"`
	AccountIDs []string  `json:"accountIds,omitempty"`
	Amount     Money     `json:"amount"`
	UserID     string    `json:"userId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
