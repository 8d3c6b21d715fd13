package http

import (
	"khanevadati/internal/aggregate"
	"khanevadati/internal/core"
	"khanevadati/internal/ledger"
)

type accountRequest struct {
	OwnerID        core.OwnerID     `json:"ownerId"`
	BankName       string           `json:"bankName"`
	AccountNumber  string           `json:"accountNumber"`
	CardNumber     string           `json:"cardNumber"`
	ExpiryDate     string           `json:"expiryDate"`
	AccountType    core.AccountType `json:"accountType"`
	InitialBalance Amount           `json:"initialBalance"`
	Theme          string           `json:"theme"`
}

func (req accountRequest) input() (ledger.AccountInput, error) {
	initial, err := req.InitialBalance.OptionalMoney()
	if err != nil {
		return ledger.AccountInput{}, err
	}
	return ledger.AccountInput{
		OwnerID:        req.OwnerID,
		BankName:       req.BankName,
		AccountNumber:  req.AccountNumber,
		CardNumber:     req.CardNumber,
		ExpiryDate:     req.ExpiryDate,
		AccountType:    req.AccountType,
		InitialBalance: initial,
		Theme:          req.Theme,
	}, nil
}

func (s *Server) listAccounts(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return nonNil(snap.Accounts), nil
}

func (s *Server) getAccount(c call) (any, error) {
	return s.engine.Account(c.ctx(), c.ns, c.id())
}

func (s *Server) createAccount(c call) (any, error) {
	var req accountRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return s.engine.CreateBankAccount(c.ctx(), c.ns, c.userID, in)
}

func (s *Server) updateAccount(c call) (any, error) {
	var req accountRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return s.engine.UpdateBankAccount(c.ctx(), c.ns, c.userID, c.id(), in)
}

func (s *Server) deleteAccount(c call) (any, error) {
	return nil, s.engine.DeleteBankAccount(c.ctx(), c.ns, c.userID, c.id())
}

func (s *Server) accountLedger(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return aggregate.ComputeRunningLedger(snap, c.id())
}

// nonNil keeps empty collections encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
