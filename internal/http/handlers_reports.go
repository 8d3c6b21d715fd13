package http

import (
	"fmt"

	"khanevadati/internal/aggregate"
	"khanevadati/internal/core"
)

const (
	defaultRecentLimit   = 10
	defaultDeadlineLimit = 5
)

func reportKey(ns string, parts ...any) string {
	return ns + "|" + fmt.Sprint(parts...)
}

// cached returns the report stored under key or computes it from a fresh
// snapshot. A report is only stored if ns was not invalidated while it was
// being computed.
func (s *Server) cached(c call, key string, compute func(core.Snapshot) (any, error)) (any, error) {
	if v, ok := s.reports.Get(key); ok {
		return v, nil
	}
	gen := s.reportGen(c.ns)
	snap, err := s.engine.Snapshot(c.ctx(), c.ns)
	if err != nil {
		return nil, err
	}
	v, err := compute(snap)
	if err != nil {
		return nil, err
	}
	s.reportsMu.Lock()
	if s.reportGens[c.ns] == gen {
		s.reports.Set(key, v)
	}
	s.reportsMu.Unlock()
	return v, nil
}

func (s *Server) reportGen(ns string) uint64 {
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()
	return s.reportGens[ns]
}

// invalidate drops every cached report of ns.
func (s *Server) invalidate(ns string) {
	s.reportsMu.Lock()
	s.reportGens[ns]++
	n := s.reports.DeletePrefix(ns + "|")
	s.reportsMu.Unlock()
	if n > 0 {
		s.logger.Debug("Reports invalidated", "namespace", ns, "count", n)
	}
}

func (s *Server) summary(c call) (any, error) {
	owner, err := ownerQuery(c.r)
	if err != nil {
		return nil, err
	}
	rng, err := rangeQuery(c.r)
	if err != nil {
		return nil, err
	}
	limit, err := intQuery(c.r, "recent", defaultRecentLimit)
	if err != nil {
		return nil, err
	}
	key := reportKey(c.ns, "summary|", owner, "|", rng.From.Unix(), "|", rng.To.Unix(), "|", limit)
	return s.cached(c, key, func(snap core.Snapshot) (any, error) {
		return aggregate.ComputeSummary(snap, owner, rng, limit), nil
	})
}

func (s *Server) ownerBalances(c call) (any, error) {
	return s.cached(c, reportKey(c.ns, "owner-balances"), func(snap core.Snapshot) (any, error) {
		return aggregate.ComputeOwnerBalances(snap), nil
	})
}

func (s *Server) deadlines(c call) (any, error) {
	limit, err := intQuery(c.r, "limit", defaultDeadlineLimit)
	if err != nil {
		return nil, err
	}
	today := core.DateOf(s.now())
	key := reportKey(c.ns, "deadlines|", today.String(), "|", limit)
	return s.cached(c, key, func(snap core.Snapshot) (any, error) {
		return aggregate.ComputeUpcomingDeadlines(snap, today, limit), nil
	})
}

func (s *Server) categorySpending(c call) (any, error) {
	owner, err := ownerQuery(c.r)
	if err != nil {
		return nil, err
	}
	rng, err := rangeQuery(c.r)
	if err != nil {
		return nil, err
	}
	key := reportKey(c.ns, "category-spending|", owner, "|", rng.From.Unix(), "|", rng.To.Unix())
	return s.cached(c, key, func(snap core.Snapshot) (any, error) {
		return aggregate.ComputeCategorySpending(snap, owner, rng), nil
	})
}
