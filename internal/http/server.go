// Package http exposes the ledger engine as a JSON API. Every family
// namespace lives under /api/v1/families/{ns}.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"khanevadati/internal/cache"
	"khanevadati/internal/core"
	"khanevadati/internal/ledger"
	"khanevadati/internal/log"
	"khanevadati/internal/middleware/ratelimit"
	"khanevadati/internal/middleware/security"
	"khanevadati/internal/middleware/trace"
)

type Config struct {
	Addr               string
	RateLimitPerMinute int
	CacheTTL           time.Duration
	CacheSize          int
	// DefaultNamespace, when set, is also served under /api/v1/ledger.
	DefaultNamespace string
}

type Server struct {
	http.Server

	engine       *ledger.Engine
	ready        func(ctx context.Context) error
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	reports      *cache.LRUCache[any]
	reportsMu    sync.Mutex
	reportGens   map[string]uint64
	cacheManager *cache.Manager
	trace        *trace.Middleware
	defaultNS    string
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. ready backs /readyz and may be nil.
func NewServer(cfg Config, engine *ledger.Engine, ready func(ctx context.Context) error, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}

	s := &Server{
		engine:       engine,
		ready:        ready,
		logger:       logger.WithComponent(log.ComponentHTTP),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		reports:      cache.NewLRUCache[any](cfg.CacheSize, cfg.CacheTTL),
		reportGens:   make(map[string]uint64),
		cacheManager: cache.NewManager(logger),
		defaultNS:    cfg.DefaultNamespace,
		now:          time.Now,
	}
	s.cacheManager.Register(s.reports)
	s.cacheManager.StartCleanup(10 * time.Minute)

	clientIP := security.NewClientIP()
	s.trace = trace.NewMiddleware(logger, clientIP.Extract)

	r := chi.NewRouter()
	r.Use(s.trace.Handler)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware(clientIP.Extract, ratelimit.ReadOnly, s.onRateLimit))
		r.Route("/families/{ns}", s.ledgerRoutes)
		if s.defaultNS != "" {
			r.Route("/ledger", s.ledgerRoutes)
		}
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, core.Errorf(core.KindNotFound, "no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"data":null,"error":{"kind":"Invalid","message":"method not allowed"}}` + "\n"))
	})

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ledgerRoutes(r chi.Router) {
	r.Get("/accounts", s.query(s.listAccounts))
	r.Post("/accounts", s.mutation(http.StatusCreated, s.createAccount))
	r.Get("/accounts/{id}", s.query(s.getAccount))
	r.Put("/accounts/{id}", s.mutation(http.StatusOK, s.updateAccount))
	r.Delete("/accounts/{id}", s.mutation(http.StatusNoContent, s.deleteAccount))
	r.Get("/accounts/{id}/ledger", s.query(s.accountLedger))

	r.Get("/expenses", s.query(s.listExpenses))
	r.Post("/expenses", s.mutation(http.StatusCreated, s.recordExpense))
	r.Delete("/expenses/{id}", s.mutation(http.StatusNoContent, s.deleteExpense))

	r.Get("/incomes", s.query(s.listIncomes))
	r.Post("/incomes", s.mutation(http.StatusCreated, s.recordIncome))
	r.Delete("/incomes/{id}", s.mutation(http.StatusNoContent, s.deleteIncome))

	r.Get("/transfers", s.query(s.listTransfers))
	r.Post("/transfers", s.mutation(http.StatusCreated, s.recordTransfer))
	r.Delete("/transfers/{id}", s.mutation(http.StatusNoContent, s.deleteTransfer))

	r.Get("/checks", s.query(s.listChecks))
	r.Post("/checks", s.mutation(http.StatusCreated, s.createCheck))
	r.Put("/checks/{id}", s.mutation(http.StatusOK, s.updateCheck))
	r.Post("/checks/{id}/clear", s.mutation(http.StatusOK, s.clearCheck))
	r.Delete("/checks/{id}", s.mutation(http.StatusNoContent, s.deleteCheck))

	r.Get("/loans", s.query(s.listLoans))
	r.Post("/loans", s.mutation(http.StatusCreated, s.createLoan))
	r.Post("/loans/{id}/payments", s.mutation(http.StatusCreated, s.payInstallment))
	r.Delete("/loans/{id}", s.mutation(http.StatusNoContent, s.deleteLoan))

	r.Get("/debts", s.query(s.listDebts))
	r.Post("/debts", s.mutation(http.StatusCreated, s.createDebt))
	r.Post("/debts/{id}/payments", s.mutation(http.StatusCreated, s.payDebt))
	r.Delete("/debts/{id}", s.mutation(http.StatusNoContent, s.deleteDebt))

	r.Get("/goals", s.query(s.listGoals))
	r.Post("/goals", s.mutation(http.StatusCreated, s.createGoal))
	r.Post("/goals/{id}/contributions", s.mutation(http.StatusOK, s.contributeToGoal))
	r.Post("/goals/{id}/achieve", s.mutation(http.StatusOK, s.achieveGoal))
	r.Post("/goals/{id}/revert", s.mutation(http.StatusOK, s.revertGoal))
	r.Delete("/goals/{id}", s.mutation(http.StatusNoContent, s.deleteGoal))

	r.Get("/payees", s.query(s.listPayees))
	r.Post("/payees", s.mutation(http.StatusCreated, s.createPayee))
	r.Put("/payees/{id}", s.mutation(http.StatusOK, s.updatePayee))
	r.Delete("/payees/{id}", s.mutation(http.StatusNoContent, s.deletePayee))

	r.Get("/categories", s.query(s.listCategories))
	r.Post("/categories", s.mutation(http.StatusCreated, s.createCategory))
	r.Put("/categories/{id}", s.mutation(http.StatusOK, s.updateCategory))
	r.Delete("/categories/{id}", s.mutation(http.StatusNoContent, s.deleteCategory))

	r.Get("/summary", s.query(s.summary))
	r.Get("/owner-balances", s.query(s.ownerBalances))
	r.Get("/deadlines", s.query(s.deadlines))
	r.Get("/category-spending", s.query(s.categorySpending))
}

// call is the request as seen by a handler.
type call struct {
	w      http.ResponseWriter
	r      *http.Request
	ns     string
	userID string
}

func (c call) ctx() context.Context { return c.r.Context() }
func (c call) id() string           { return chi.URLParam(c.r, "id") }

func (c call) decode(dst any) error {
	return decodeBody(c.w, c.r, dst)
}

type handler func(c call) (any, error)

func (s *Server) namespace(r *http.Request) (string, error) {
	ns := chi.URLParam(r, "ns")
	if ns == "" {
		ns = s.defaultNS
	}
	if ns == "" {
		return "", core.Errorf(core.KindInvalid, "namespace is required")
	}
	return ns, nil
}

// query serves a read-only handler.
func (s *Server) query(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := s.namespace(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data, err := h(call{w: w, r: r, ns: ns, userID: r.Header.Get(HeaderUserID)})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

// mutation serves a handler that changes the namespace and drops its cached
// reports once it succeeds.
func (s *Server) mutation(status int, h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := s.namespace(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		uid, err := userID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data, err := h(call{w: w, r: r, ns: ns, userID: uid})
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.invalidate(ns)
		writeJSON(w, status, data)
	}
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"data":null,"error":{"kind":"RateLimited","message":"rate limit exceeded, retry later"}}` + "\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).Warn("Readiness check failed", log.FieldError, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"data":{"status":"unavailable"}}` + "\n"))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown stops background sweepers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
