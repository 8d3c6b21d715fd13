package http

import (
	"khanevadati/internal/core"
	"khanevadati/internal/ledger"
)

type goalRequest struct {
	Name                string               `json:"name"`
	OwnerID             core.OwnerID         `json:"ownerId"`
	TargetAmount        Amount               `json:"targetAmount"`
	TargetDate          string               `json:"targetDate"`
	Priority            core.Priority        `json:"priority"`
	InitialContribution *contributionRequest `json:"initialContribution"`
}

type contributionRequest struct {
	BankAccountID string `json:"bankAccountId"`
	Amount        Amount `json:"amount"`
	Date          string `json:"date"`
}

func (req contributionRequest) input() (ledger.ContributionInput, error) {
	amount, err := req.Amount.Money()
	if err != nil {
		return ledger.ContributionInput{}, err
	}
	date, err := timeValue(req.Date)
	if err != nil {
		return ledger.ContributionInput{}, err
	}
	return ledger.ContributionInput{BankAccountID: req.BankAccountID, Amount: amount, Date: date}, nil
}

type achieveRequest struct {
	ActualCost       Amount `json:"actualCost"`
	PaymentAccountID string `json:"paymentAccountId"`
	Date             string `json:"date"`
}

func (s *Server) listGoals(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return nonNil(snap.Goals), nil
}

func (s *Server) createGoal(c call) (any, error) {
	var req goalRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	target, err := req.TargetAmount.Money()
	if err != nil {
		return nil, err
	}
	targetDate, err := dateValue(req.TargetDate)
	if err != nil {
		return nil, err
	}
	in := ledger.GoalInput{
		Name:         req.Name,
		OwnerID:      req.OwnerID,
		TargetAmount: target,
		TargetDate:   targetDate,
		Priority:     req.Priority,
	}
	if req.InitialContribution != nil {
		first, err := req.InitialContribution.input()
		if err != nil {
			return nil, err
		}
		in.InitialContribution = &first
	}
	return s.engine.CreateGoal(c.ctx(), c.ns, c.userID, in)
}

func (s *Server) contributeToGoal(c call) (any, error) {
	var req contributionRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return s.engine.ContributeToGoal(c.ctx(), c.ns, c.userID, c.id(), in)
}

func (s *Server) achieveGoal(c call) (any, error) {
	var req achieveRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	cost, err := req.ActualCost.Money()
	if err != nil {
		return nil, err
	}
	date, err := timeValue(req.Date)
	if err != nil {
		return nil, err
	}
	return s.engine.AchieveGoal(c.ctx(), c.ns, c.userID, c.id(), ledger.AchieveInput{
		ActualCost:       cost,
		PaymentAccountID: req.PaymentAccountID,
		Date:             date,
	})
}

func (s *Server) revertGoal(c call) (any, error) {
	return s.engine.RevertGoal(c.ctx(), c.ns, c.userID, c.id())
}

func (s *Server) deleteGoal(c call) (any, error) {
	return nil, s.engine.DeleteGoal(c.ctx(), c.ns, c.userID, c.id())
}
