// Package http exposes the escrow engine over a JSON REST surface.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"rentacar-escrow-backend/internal/domain"
	"rentacar-escrow-backend/internal/security"
	"rentacar-escrow-backend/internal/service"
	"rentacar-escrow-backend/internal/treasury"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	engine service.EscrowService
	tokens security.TokenManager
}

func NewHandler(engine service.EscrowService, tokens security.TokenManager) *Handler {
	return &Handler{engine: engine, tokens: tokens}
}

// Router wires all endpoints. Initialization and status are open; every
// other mutating endpoint requires a bearer token proving the caller's
// account identity.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/initialize", h.Initialize).Methods("POST")
	api.HandleFunc("/cars/{owner}/status", h.GetCarStatus).Methods("GET")
	api.HandleFunc("/cars", h.authenticated(h.AddCar)).Methods("POST")
	api.HandleFunc("/cars/{owner}", h.authenticated(h.RemoveCar)).Methods("DELETE")
	api.HandleFunc("/cars/{owner}/payouts", h.authenticated(h.PayoutOwner)).Methods("POST")
	api.HandleFunc("/rentals", h.authenticated(h.CreateRental)).Methods("POST")
	api.HandleFunc("/commission/rate", h.authenticated(h.SetCommissionRate)).Methods("PUT")
	api.HandleFunc("/commission/withdrawals", h.authenticated(h.WithdrawCommission)).Methods("POST")
	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, "GET", "/health", http.StatusOK, map[string]string{"status": "ok"})
}

type initializeRequest struct {
	Admin string `json:"admin"`
	Token string `json:"token"`
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/initialize"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "POST", endpoint, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Admin == "" || req.Token == "" {
		respondError(w, "POST", endpoint, http.StatusBadRequest, "admin and token are required")
		return
	}

	if err := h.engine.Initialize(r.Context(), req.Admin, req.Token); err != nil {
		respondEngineError(w, "POST", endpoint, err)
		return
	}
	respondJSON(w, "POST", endpoint, http.StatusCreated, map[string]string{"admin": req.Admin, "token": req.Token})
}

type addCarRequest struct {
	Owner       string `json:"owner"`
	PricePerDay int64  `json:"price_per_day"`
}

func (h *Handler) AddCar(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/cars"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req addCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "POST", endpoint, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Owner == "" {
		respondError(w, "POST", endpoint, http.StatusBadRequest, "owner is required")
		return
	}

	if err := h.engine.AddCar(r.Context(), req.Owner, req.PricePerDay); err != nil {
		respondEngineError(w, "POST", endpoint, err)
		return
	}
	respondJSON(w, "POST", endpoint, http.StatusCreated, map[string]string{"owner": req.Owner})
}

func (h *Handler) GetCarStatus(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/cars/{owner}/status"
	owner := mux.Vars(r)["owner"]

	status, err := h.engine.GetCarStatus(r.Context(), owner)
	if err != nil {
		respondEngineError(w, "GET", endpoint, err)
		return
	}
	respondJSON(w, "GET", endpoint, http.StatusOK, map[string]string{"owner": owner, "status": string(status)})
}

func (h *Handler) RemoveCar(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/cars/{owner}"
	owner := mux.Vars(r)["owner"]

	if err := h.engine.RemoveCar(r.Context(), owner); err != nil {
		respondEngineError(w, "DELETE", endpoint, err)
		return
	}
	respondJSON(w, "DELETE", endpoint, http.StatusOK, map[string]string{"owner": owner})
}

type rentalRequest struct {
	Owner           string `json:"owner"`
	TotalDaysToRent int32  `json:"total_days_to_rent"`
	Amount          int64  `json:"amount"`
}

func (h *Handler) CreateRental(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/rentals"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req rentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "POST", endpoint, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Owner == "" {
		respondError(w, "POST", endpoint, http.StatusBadRequest, "owner is required")
		return
	}

	// The renter is always the authenticated caller; the engine re-checks
	// the identity proof.
	renter, ok := security.CallerAccount(r.Context())
	if !ok {
		respondError(w, "POST", endpoint, http.StatusUnauthorized, "missing caller identity")
		return
	}

	if err := h.engine.Rental(r.Context(), renter, req.Owner, req.TotalDaysToRent, req.Amount); err != nil {
		respondEngineError(w, "POST", endpoint, err)
		return
	}
	respondJSON(w, "POST", endpoint, http.StatusCreated, map[string]any{
		"renter":             renter,
		"owner":              req.Owner,
		"total_days_to_rent": req.TotalDaysToRent,
		"amount":             req.Amount,
	})
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) PayoutOwner(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/cars/{owner}/payouts"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	owner := mux.Vars(r)["owner"]
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "POST", endpoint, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if err := h.engine.PayoutOwner(r.Context(), owner, req.Amount); err != nil {
		respondEngineError(w, "POST", endpoint, err)
		return
	}
	respondJSON(w, "POST", endpoint, http.StatusOK, map[string]any{"owner": owner, "amount": req.Amount})
}

type commissionRateRequest struct {
	Rate int64 `json:"rate"`
}

func (h *Handler) SetCommissionRate(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/commission/rate"

	var req commissionRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "PUT", endpoint, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if err := h.engine.SetAdminCommission(r.Context(), req.Rate); err != nil {
		respondEngineError(w, "PUT", endpoint, err)
		return
	}
	respondJSON(w, "PUT", endpoint, http.StatusOK, map[string]int64{"rate": req.Rate})
}

func (h *Handler) WithdrawCommission(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/commission/withdrawals"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "POST", endpoint, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if err := h.engine.WithdrawAdminCommission(r.Context(), req.Amount); err != nil {
		respondEngineError(w, "POST", endpoint, err)
		return
	}
	respondJSON(w, "POST", endpoint, http.StatusOK, map[string]int64{"amount": req.Amount})
}

// respondEngineError maps the engine's sentinel errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, method, endpoint string, err error) {
	var code int
	switch {
	case errors.Is(err, domain.ErrNotAuthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, domain.ErrCarNotFound),
		errors.Is(err, domain.ErrRentalNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyInitialized),
		errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrCarAlreadyExists),
		errors.Is(err, domain.ErrCarAlreadyRented),
		errors.Is(err, domain.ErrOutstandingBalance):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrAdminTokenConflict),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrSelfRentalNotAllowed),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrCustodyShortfall),
		errors.Is(err, domain.ErrArithmeticOverflow),
		errors.Is(err, treasury.ErrInsufficientSpendable):
		code = http.StatusUnprocessableEntity
	default:
		respondError(w, method, endpoint, http.StatusInternalServerError, "internal server error")
		return
	}
	respondError(w, method, endpoint, code, err.Error())
}

func respondError(w http.ResponseWriter, method, endpoint string, code int, message string) {
	respondJSON(w, method, endpoint, code, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, method, endpoint string, code int, payload any) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
