package ledger

import (
	"context"
	"time"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

const (
	goalCategoryName        = "Financial Goals"
	goalCategoryDescription = "Expenses created when a financial goal is achieved"
)

type GoalInput struct {
	Name         string
	OwnerID      core.OwnerID
	TargetAmount core.Money
	TargetDate   core.Date
	Priority     core.Priority
	// InitialContribution is applied in the same transaction when set.
	InitialContribution *ContributionInput
}

type ContributionInput struct {
	BankAccountID string
	Amount        core.Money
	Date          time.Time
}

type AchieveInput struct {
	ActualCost       core.Money
	PaymentAccountID string
	Date             time.Time
}

type GoalAchievement struct {
	Goal     core.FinancialGoal
	Expenses []core.Expense
}

func (u *unit) goal(id string) (core.FinancialGoal, error) {
	var g core.FinancialGoal
	err := u.tx.Get(storage.Goals, id, &g)
	return g, err
}

// CreateGoal stores a savings goal, optionally with a first contribution.
func (e *Engine) CreateGoal(ctx context.Context, ns, userID string, in GoalInput) (core.FinancialGoal, error) {
	var g core.FinancialGoal
	err := e.update(ctx, ns, userID, "create_goal", func(u *unit) error {
		g = core.FinancialGoal{
			ID:                 u.newID(),
			RegisteredByUserID: u.userID,
			OwnerID:            in.OwnerID,
			Name:               in.Name,
			TargetAmount:       in.TargetAmount,
			TargetDate:         in.TargetDate,
			Priority:           in.Priority,
			Contributions:      []core.Contribution{},
			CreatedAt:          u.now,
		}
		if g.Priority == "" {
			g.Priority = core.PriorityMedium
		}
		if err := g.Validate(); err != nil {
			return err
		}
		if err := g.OwnerID.Validate(); err != nil {
			return err
		}
		u.emit(core.OpGoalCreated, g.ID, core.Money{})
		if in.InitialContribution != nil {
			if err := u.contribute(&g, *in.InitialContribution); err != nil {
				return err
			}
		}
		return u.tx.Put(storage.Goals, g.ID, g)
	})
	return g, err
}

// ContributeToGoal reserves amount of an account's available balance for the goal.
func (e *Engine) ContributeToGoal(ctx context.Context, ns, userID, goalID string, in ContributionInput) (core.FinancialGoal, error) {
	var g core.FinancialGoal
	err := e.update(ctx, ns, userID, "contribute_to_goal", func(u *unit) error {
		var err error
		if g, err = u.goal(goalID); err != nil {
			return err
		}
		if err := u.contribute(&g, in); err != nil {
			return err
		}
		return u.tx.Put(storage.Goals, g.ID, g)
	})
	return g, err
}

func (u *unit) contribute(g *core.FinancialGoal, in ContributionInput) error {
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if g.IsAchieved {
		return core.Errorf(core.KindInvalidState, "goal %q is already achieved", g.ID)
	}
	acc, err := u.account(in.BankAccountID)
	if err != nil {
		return err
	}
	if err := reserve(&acc, in.Amount); err != nil {
		return err
	}
	if err := u.saveAccount(acc); err != nil {
		return err
	}
	g.CurrentAmount = g.CurrentAmount.Add(in.Amount)
	g.Contributions = append(g.Contributions, core.Contribution{
		BankAccountID:      acc.ID,
		Amount:             in.Amount,
		Date:               u.dateOr(in.Date),
		RegisteredByUserID: u.userID,
	})
	u.emit(core.OpGoalContributed, g.ID, in.Amount, acc.ID)
	return nil
}

// AchieveGoal turns every reservation into a real expense and charges any
// shortfall between the actual cost and the saved amount to a payment account.
func (e *Engine) AchieveGoal(ctx context.Context, ns, userID, goalID string, in AchieveInput) (GoalAchievement, error) {
	var res GoalAchievement
	err := e.update(ctx, ns, userID, "achieve_goal", func(u *unit) error {
		g, err := u.goal(goalID)
		if err != nil {
			return err
		}
		if g.IsAchieved {
			return core.Errorf(core.KindInvalidState, "goal %q is already achieved", goalID)
		}
		if err := in.ActualCost.Validate(); err != nil {
			return err
		}
		cashNeeded := in.ActualCost.Sub(g.CurrentAmount).Max(core.Money{})
		if cashNeeded.IsPositive() && in.PaymentAccountID == "" {
			return core.Errorf(core.KindInvalidOperation,
				"actual cost exceeds saved amount by %s: a payment account is required", cashNeeded)
		}
		categoryID, err := u.ensureCategory(goalCategoryName, goalCategoryDescription)
		if err != nil {
			return err
		}

		date := u.dateOr(in.Date)
		var expenses []core.Expense
		var touched []string
		for _, c := range g.Contributions {
			acc, err := u.account(c.BankAccountID)
			if err != nil {
				return err
			}
			if err := release(&acc, c.Amount); err != nil {
				return err
			}
			exp, err := u.spend(&acc, core.Expense{
				CategoryID:  categoryID,
				Amount:      c.Amount,
				Date:        date,
				Description: "Goal achieved: " + g.Name + " (saved)",
				SubType:     core.SubTypeGoalSaved,
				GoalID:      g.ID,
			})
			if err != nil {
				return err
			}
			expenses = append(expenses, exp)
			touched = append(touched, acc.ID)
		}
		if cashNeeded.IsPositive() {
			acc, err := u.account(in.PaymentAccountID)
			if err != nil {
				return err
			}
			exp, err := u.spend(&acc, core.Expense{
				CategoryID:  categoryID,
				Amount:      cashNeeded,
				Date:        date,
				Description: "Goal achieved: " + g.Name + " (cash)",
				SubType:     core.SubTypeGoalCash,
				GoalID:      g.ID,
			})
			if err != nil {
				return err
			}
			expenses = append(expenses, exp)
			touched = append(touched, acc.ID)
		}

		g.IsAchieved = true
		g.ActualCost = in.ActualCost
		if err := u.tx.Put(storage.Goals, g.ID, g); err != nil {
			return err
		}
		res = GoalAchievement{Goal: g, Expenses: expenses}
		u.emit(core.OpGoalAchieved, g.ID, in.ActualCost, touched...)
		return nil
	})
	return res, err
}

// RevertGoal undoes AchieveGoal: its expenses are refunded and deleted and
// every contribution is reserved again.
func (e *Engine) RevertGoal(ctx context.Context, ns, userID, goalID string) (core.FinancialGoal, error) {
	var g core.FinancialGoal
	err := e.update(ctx, ns, userID, "revert_goal", func(u *unit) error {
		var err error
		if g, err = u.goal(goalID); err != nil {
			return err
		}
		if !g.IsAchieved {
			return core.Errorf(core.KindInvalidState, "goal %q is not achieved", goalID)
		}
		docs, err := u.tx.Where(storage.Expenses, "goalId", g.ID)
		if err != nil {
			return err
		}
		expenses, err := storage.Decode[core.Expense](docs)
		if err != nil {
			return err
		}
		var touched []string
		for _, exp := range expenses {
			if err := u.refundExpense(exp); err != nil {
				return err
			}
			touched = append(touched, exp.BankAccountID)
		}
		for _, c := range g.Contributions {
			acc, err := u.account(c.BankAccountID)
			if err != nil {
				return err
			}
			if err := reserve(&acc, c.Amount); err != nil {
				return err
			}
			if err := u.saveAccount(acc); err != nil {
				return err
			}
		}
		actual := g.ActualCost
		g.IsAchieved = false
		g.ActualCost = core.Money{}
		if err := u.tx.Put(storage.Goals, g.ID, g); err != nil {
			return err
		}
		u.emit(core.OpGoalReverted, g.ID, actual, touched...)
		return nil
	})
	return g, err
}

// DeleteGoal releases every reservation of an unachieved goal and removes it.
func (e *Engine) DeleteGoal(ctx context.Context, ns, userID, goalID string) error {
	return e.update(ctx, ns, userID, "delete_goal", func(u *unit) error {
		g, err := u.goal(goalID)
		if err != nil {
			return err
		}
		if g.IsAchieved {
			return core.Errorf(core.KindInvalidState, "goal %q is achieved; revert it first", goalID)
		}
		var touched []string
		for _, c := range g.Contributions {
			acc, err := u.account(c.BankAccountID)
			if err != nil {
				return err
			}
			if err := release(&acc, c.Amount); err != nil {
				return err
			}
			if err := u.saveAccount(acc); err != nil {
				return err
			}
			touched = append(touched, acc.ID)
		}
		if err := u.tx.Delete(storage.Goals, goalID); err != nil {
			return err
		}
		u.emit(core.OpGoalDeleted, goalID, g.CurrentAmount, touched...)
		return nil
	})
}
