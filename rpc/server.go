package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storepay/native/payments"
	"storepay/native/stores"
	"storepay/native/tokenlist"
)

// Config captures the dependencies required to construct the API server.
type Config struct {
	Ledger        *payments.Ledger
	Tokens        *tokenlist.Registry
	Stores        *stores.Registry
	Audit         AuditStore
	Logger        *slog.Logger
	OperatorToken string
	RateLimiter   *RateLimiter
}

// Server exposes the payment ledger and registries over HTTP.
type Server struct {
	ledger  *payments.Ledger
	tokens  *tokenlist.Registry
	stores  *stores.Registry
	audit   AuditStore
	logger  *slog.Logger
	handler http.Handler
}

// New constructs a configured HTTP router with authentication, rate limiting,
// and audit logging.
func New(cfg Config) *Server {
	srv := &Server{
		ledger: cfg.Ledger,
		tokens: cfg.Tokens,
		stores: cfg.Stores,
		audit:  cfg.Audit,
		logger: cfg.Logger,
	}
	if srv.audit == nil {
		srv.audit = noopAuditStore{}
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}
	srv.handler = srv.buildRouter(cfg)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observeRequests)
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}
	r.Use(auditMutations(s.audit, s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	operator := requireOperator(cfg.OperatorToken)

	r.Route("/v1", func(api chi.Router) {
		api.Get("/orders", s.handleListOrders)
		api.Get("/orders/{orderRef}", s.handleGetOrder)
		api.Get("/balances/{payer}", s.handleGetBalances)
		api.Get("/tokens", s.handleListTokens)
		api.Get("/stores", s.handleListStores)
		api.Get("/stores/{storeRef}", s.handleGetStore)

		// Claims are payer-initiated; the rate limiter is their only guard.
		api.Post("/claims", s.handleClaim)

		api.Group(func(protected chi.Router) {
			protected.Use(operator)
			protected.Post("/deposits", s.handleDeposit)
			protected.Post("/orders/{orderRef}/accept", s.handleAccept)
			protected.Post("/orders/{orderRef}/reject", s.handleReject)
			protected.Post("/orders/clear", s.handleClearOrders)

			protected.Route("/admin", func(admin chi.Router) {
				admin.Post("/tokens", s.handleRegisterToken)
				admin.Patch("/tokens/{tokenID}", s.handleUpdateToken)
				admin.Delete("/tokens/{tokenID}", s.handleRemoveToken)
				admin.Delete("/tokens", s.handleClearTokens)

				admin.Post("/stores", s.handleAddStore)
				admin.Post("/stores/{storeRef}/recipients", s.handleAddRecipient)
				admin.Delete("/stores/{storeRef}/recipients/{account}", s.handleRemoveRecipient)
				admin.Delete("/stores/{storeRef}/recipients", s.handleClearRecipients)
				admin.Post("/stores/{storeRef}/tokens", s.handleAddStoreToken)
				admin.Patch("/stores/{storeRef}/tokens/{tokenID}", s.handleEditStoreToken)
				admin.Delete("/stores/{storeRef}/tokens/{tokenID}", s.handleRemoveStoreToken)
				admin.Delete("/stores", s.handleClearStores)

				admin.Get("/audit", s.handleAuditLog)
			})
		})
	})

	return otelhttp.NewHandler(r, "storepay-api")
}

// ListenAndServe runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
