package http

import "khanevadati/internal/core"

type payeeRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) listPayees(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return nonNil(snap.Payees), nil
}

func (s *Server) createPayee(c call) (any, error) {
	return s.savePayee(c, "")
}

func (s *Server) updatePayee(c call) (any, error) {
	return s.savePayee(c, c.id())
}

func (s *Server) savePayee(c call, id string) (any, error) {
	var req payeeRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	return s.engine.SavePayee(c.ctx(), c.ns, c.userID, id, core.Payee{Name: req.Name, PhoneNumber: req.PhoneNumber})
}

func (s *Server) deletePayee(c call) (any, error) {
	return nil, s.engine.DeletePayee(c.ctx(), c.ns, c.userID, c.id())
}

func (s *Server) listCategories(c call) (any, error) {
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	return nonNil(snap.Categories), nil
}

func (s *Server) createCategory(c call) (any, error) {
	return s.saveCategory(c, "")
}

func (s *Server) updateCategory(c call) (any, error) {
	return s.saveCategory(c, c.id())
}

func (s *Server) saveCategory(c call, id string) (any, error) {
	var req categoryRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	return s.engine.SaveCategory(c.ctx(), c.ns, c.userID, id, core.Category{Name: req.Name, Description: req.Description})
}

func (s *Server) deleteCategory(c call) (any, error) {
	return nil, s.engine.DeleteCategory(c.ctx(), c.ns, c.userID, c.id())
}
