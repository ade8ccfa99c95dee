// Package api provides the HTTP server for escrowd. It exposes the
// expenditure, pot, claim, and payment operations as a JSON REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/escrowd-network/escrowd/internal/domain"
	"github.com/escrowd-network/escrowd/internal/engine"
	"github.com/escrowd-network/escrowd/internal/infra/observability"
)

// callerHeader carries the acting account on every mutating request.
const callerHeader = "X-Escrowd-Account"

// Server is the escrowd HTTP API server.
type Server struct {
	eng            *engine.Engine
	stop           *engine.StopSwitch
	auth           domain.Authority
	rootDomain     uint64
	tracer         *observability.Tracer
	metricsEnabled bool
}

// NewServer creates a new API server. The authority and root domain id gate
// the admin pause/resume endpoints.
func NewServer(eng *engine.Engine, stop *engine.StopSwitch, auth domain.Authority, rootDomain uint64) *Server {
	return &Server{eng: eng, stop: stop, auth: auth, rootDomain: rootDomain}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTracer attaches a span tracer to the operation handlers.
func (s *Server) SetTracer(t *observability.Tracer) { s.tracer = t }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/expenditures", func(r chi.Router) {
			r.Post("/", s.handleCreateExpenditure)
			r.Get("/{id}", s.handleGetExpenditure)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Post("/{id}/finalize", s.handleFinalize)
			r.Post("/{id}/owner", s.handleTransferOwner)
			r.Get("/{id}/recipients/{account}", s.handleGetRecipient)
			r.Get("/{id}/recipients/{account}/payout", s.handleGetPayout)
			r.Put("/{id}/recipients/{account}/skill", s.handleSetSkill)
			r.Put("/{id}/recipients/{account}/payout", s.handleSetPayout)
			r.Put("/{id}/recipients/{account}/scalar", s.handleSetScalar)
			r.Put("/{id}/recipients/{account}/delay", s.handleSetDelay)
			r.Post("/{id}/claims", s.handleClaim)
		})

		r.Route("/pots", func(r chi.Router) {
			r.Post("/move", s.handleMovePotFunds)
			r.Get("/{id}", s.handleGetPot)
			r.Post("/{id}/deposit", s.handleDeposit)
		})

		r.Post("/pay", s.handlePay)
		r.Post("/pay/domain", s.handlePayFundedFromDomain)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Get("/traces", s.handleTraces)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ListenAndServe runs the server on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv.ListenAndServe()
}

// ─── Status & Admin ─────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expenditures": s.eng.Count(),
		"pots":         s.eng.PotCount(),
		"stopped":      s.stop.IsStopped(),
	})
}

// requireArbitrator gates admin endpoints on root-domain arbitration
// authority.
func (s *Server) requireArbitrator(w http.ResponseWriter, r *http.Request) bool {
	caller, ok := callerAccount(w, r)
	if !ok {
		return false
	}
	if !s.auth.CanAct(caller, s.rootDomain, domain.OpArbitration) {
		writeError(w, http.StatusForbidden, "arbitration authority required")
		return false
	}
	return true
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if !s.requireArbitrator(w, r) {
		return
	}
	s.stop.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !s.requireArbitrator(w, r) {
		return
	}
	s.stop.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": false})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if s.tracer == nil {
		writeJSON(w, http.StatusOK, []observability.Span{})
		return
	}
	writeJSON(w, http.StatusOK, s.tracer.Spans(100))
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// callerAccount reads the acting account from the request header.
func callerAccount(w http.ResponseWriter, r *http.Request) (domain.Account, bool) {
	caller := r.Header.Get(callerHeader)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing "+callerHeader+" header")
		return "", false
	}
	return domain.Account(caller), true
}

// decodeBody parses a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// track opens a span and returns the completion hook for one operation.
// The hook records duration and error metrics and closes the span.
func (s *Server) track(r *http.Request, op string) func(error) {
	start := time.Now()
	var span *observability.Span
	if s.tracer != nil {
		_, span = s.tracer.StartSpan(r.Context(), op)
	}
	return func(err error) {
		observability.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.OperationErrors.WithLabelValues(op).Inc()
		}
		if s.tracer != nil {
			s.tracer.EndSpan(span, err)
		}
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": msg,
	})
}

// writeDomainError maps sentinel errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoPot),
		errors.Is(err, domain.ErrNoSuchDomain):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNegativeValue),
		errors.Is(err, domain.ErrInvalidOwner),
		errors.Is(err, domain.ErrBadChildSkill),
		errors.Is(err, domain.ErrInvalidSkill),
		errors.Is(err, domain.ErrDeprecatedSkill):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrNotActive),
		errors.Is(err, domain.ErrNotFinalized),
		errors.Is(err, domain.ErrCancelled),
		errors.Is(err, domain.ErrNotFunded),
		errors.Is(err, domain.ErrTooEarly),
		errors.Is(err, domain.ErrBadExpenditureState),
		errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
