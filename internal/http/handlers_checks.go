package http

import (
	"khanevadati/internal/core"
	"khanevadati/internal/ledger"
)

type checkRequest struct {
	BankAccountID string `json:"bankAccountId"`
	PayeeID       string `json:"payeeId"`
	CategoryID    string `json:"categoryId"`
	Amount        Amount `json:"amount"`
	IssueDate     string `json:"issueDate"`
	DueDate       string `json:"dueDate"`
	Description   string `json:"description"`
	SayadID       string `json:"sayadId"`
	SerialNumber  string `json:"serialNumber"`
}

func (req checkRequest) input() (ledger.CheckInput, error) {
	amount, err := req.Amount.Money()
	if err != nil {
		return ledger.CheckInput{}, err
	}
	issue, err := dateValue(req.IssueDate)
	if err != nil {
		return ledger.CheckInput{}, err
	}
	due, err := dateValue(req.DueDate)
	if err != nil {
		return ledger.CheckInput{}, err
	}
	return ledger.CheckInput{
		BankAccountID: req.BankAccountID,
		PayeeID:       req.PayeeID,
		CategoryID:    req.CategoryID,
		Amount:        amount,
		IssueDate:     issue,
		DueDate:       due,
		Description:   req.Description,
		SayadID:       req.SayadID,
		SerialNumber:  req.SerialNumber,
	}, nil
}

func (s *Server) listChecks(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	status := core.CheckStatus(c.r.URL.Query().Get("status"))
	out := []core.Check{}
	for _, ch := range filterByAccount(snap.Checks, c, func(ch core.Check) string { return ch.BankAccountID }) {
		if status == "" || ch.Status == status {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s *Server) createCheck(c call) (any, error) {
	var req checkRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return s.engine.CreateCheck(c.ctx(), c.ns, c.userID, in)
}

func (s *Server) updateCheck(c call) (any, error) {
	var req checkRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return s.engine.UpdateCheck(c.ctx(), c.ns, c.userID, c.id(), in)
}

func (s *Server) clearCheck(c call) (any, error) {
	return s.engine.ClearCheck(c.ctx(), c.ns, c.userID, c.id())
}

func (s *Server) deleteCheck(c call) (any, error) {
	return nil, s.engine.DeleteCheck(c.ctx(), c.ns, c.userID, c.id())
}
