// Package http exposes the savings tracker as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/blurryplay/savings-tracker/internal/cache"
	"github.com/blurryplay/savings-tracker/internal/ledger"
	"github.com/blurryplay/savings-tracker/internal/middleware/ratelimit"
	"github.com/blurryplay/savings-tracker/internal/middleware/security"
	"github.com/blurryplay/savings-tracker/internal/middleware/trace"
	"github.com/blurryplay/savings-tracker/internal/report"
)

type Server struct {
	http.Server

	engine   *ledger.Engine
	reporter *report.Reporter

	limiter   *ratelimit.Limiter
	extractor *security.IPExtractor

	// Aggregation caches, purged on every ledger mutation.
	dashboardCache *cache.LRUCache[report.DashboardSummary]
	chartsCache    *cache.LRUCache[report.ChartBundle]

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, engine *ledger.Engine, reporter *report.Reporter) *Server {
	mux := http.NewServeMux()

	s := &Server{
		engine:         engine,
		reporter:       reporter,
		limiter:        ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		extractor:      security.NewIPExtractor(),
		dashboardCache: cache.NewLRUCache[report.DashboardSummary](1, 30*time.Second),
		chartsCache:    cache.NewLRUCache[report.ChartBundle](1, 30*time.Second),
	}

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/plans", s.handleListPlans)
	mux.HandleFunc("POST /api/plans", s.withRateLimit(s.handleCreatePlan))
	mux.HandleFunc("GET /api/plans/{id}", s.handleGetPlan)
	mux.HandleFunc("DELETE /api/plans/{id}", s.withRateLimit(s.handleDeletePlan))
	mux.HandleFunc("POST /api/plans/{id}/contribute", s.withRateLimit(s.handleContribute))
	mux.HandleFunc("POST /api/plans/{id}/withdraw", s.withRateLimit(s.handleWithdraw))
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/contributions", s.handleListTransactions)
	mux.HandleFunc("GET /api/charts", s.handleCharts)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.extractor.ExtractClientIP)

	s.Server = http.Server{
		Addr:         addr,
		Handler:      headers.Middleware(tracer.Middleware(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// withRateLimit throttles mutating endpoints per client IP.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := s.extractor.ExtractClientIP(r)
		if !s.limiter.Allow(clientIP) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next(w, r)
	}
}

// invalidateAggregates drops memoized dashboard and chart data after a
// ledger mutation.
func (s *Server) invalidateAggregates() {
	s.dashboardCache.Purge()
	s.chartsCache.Purge()
}

// Shutdown stops the rate limiter and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
