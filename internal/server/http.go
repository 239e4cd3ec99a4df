// Package server exposes the account risk query API over HTTP/JSON.
//
// All scaled integers are returned as decimal strings; clients divide by
// the documented precision to recover human-readable values.
package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpRisk/internal/amm"
	"PerpRisk/internal/observability"
	"PerpRisk/internal/risk"
	"PerpRisk/internal/state"
)

// QueryServer serves account risk reads against the in-memory state store.
// Each request evaluates against the latest store contents; responses are
// point-in-time and carry no freshness guarantee beyond the store itself.
type QueryServer struct {
	store   *state.Store
	health  *observability.HealthChecker
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewQueryServer(
	store *state.Store,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *QueryServer {
	return &QueryServer{
		store:   store,
		health:  health,
		metrics: metrics,
		logger:  logger.With().Str("component", "query_server").Logger(),
	}
}

// Router builds the chi router for the query API.
func (qs *QueryServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", qs.health.LivenessHandler)
	r.Get("/readyz", qs.health.ReadinessHandler)

	r.Route("/v1/accounts/{accountID}", func(r chi.Router) {
		r.Get("/risk", qs.GetAccountRisk)
		r.Get("/liquidation-price/{marketID}", qs.GetLiquidationPrice)
	})

	return r
}

// engine builds a risk engine over the store's current records.
func (qs *QueryServer) engine() *risk.Engine {
	return risk.NewEngine(amm.NewCurve(), qs.store.Markets(), qs.store.Banks(), qs.store.PriceFeeds())
}

// AccountRiskResponse is the JSON body for GET /v1/accounts/{id}/risk.
type AccountRiskResponse struct {
	AccountID                    string            `json:"account_id"`
	TotalCollateral              string            `json:"total_collateral"`
	InitialMarginRequirement     string            `json:"initial_margin_requirement"`
	PartialMarginRequirement     string            `json:"partial_margin_requirement"`
	MaintenanceMarginRequirement string            `json:"maintenance_margin_requirement"`
	FreeCollateral               string            `json:"free_collateral"`
	MarginRatio                  string            `json:"margin_ratio"`
	Leverage                     string            `json:"leverage"`
	TotalPositionValue           string            `json:"total_position_value"`
	UnrealizedPnL                string            `json:"unrealized_pnl"`
	UnrealizedFundingPnL         string            `json:"unrealized_funding_pnl"`
	Liquidatable                 bool              `json:"liquidatable"`
	NeedsFundingSettlement       bool              `json:"needs_funding_settlement"`
	BuyingPower                  map[string]string `json:"buying_power,omitempty"`
	EvaluatedAt                  time.Time         `json:"evaluated_at"`
}

// GetAccountRisk handles GET /v1/accounts/{accountID}/risk
func (qs *QueryServer) GetAccountRisk(w http.ResponseWriter, r *http.Request) {
	const endpoint = "account_risk"
	start := time.Now()

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		qs.writeError(w, endpoint, "invalid account id", http.StatusBadRequest)
		return
	}

	snap, ok := qs.store.Snapshot(accountID)
	if !ok {
		qs.writeError(w, endpoint, "account not found", http.StatusNotFound)
		return
	}

	engine := qs.engine()
	liquidatable, marginRatio := engine.CanBeLiquidated(snap)

	resp := AccountRiskResponse{
		AccountID:                    accountID.String(),
		TotalCollateral:              engine.TotalCollateral(snap).String(),
		InitialMarginRequirement:     engine.InitialMarginRequirement(snap).String(),
		PartialMarginRequirement:     engine.PartialMarginRequirement(snap).String(),
		MaintenanceMarginRequirement: engine.MaintenanceMarginRequirement(snap).String(),
		FreeCollateral:               engine.FreeCollateral(snap).String(),
		MarginRatio:                  marginRatio.String(),
		Leverage:                     engine.Leverage(snap).String(),
		TotalPositionValue:           engine.TotalPositionValue(snap).String(),
		UnrealizedPnL:                engine.UnrealizedPnL(snap, true).String(),
		UnrealizedFundingPnL:         engine.UnrealizedFundingPnL(snap).String(),
		Liquidatable:                 liquidatable,
		NeedsFundingSettlement:       engine.NeedsToSettleFundingPayment(snap),
		EvaluatedAt:                  time.Now().UTC(),
	}

	// Per-market buying power for every market the account holds.
	for _, p := range snap.Positions {
		if p.IsEmpty() && p.OpenOrders == 0 {
			continue
		}
		bp, err := engine.BuyingPower(snap, p.MarketID)
		if err != nil {
			continue
		}
		if resp.BuyingPower == nil {
			resp.BuyingPower = make(map[string]string)
		}
		resp.BuyingPower[p.MarketID] = bp.String()
	}

	qs.writeJSON(w, endpoint, http.StatusOK, resp)
	qs.observe(endpoint, start)
}

// LiquidationPriceResponse is the JSON body for
// GET /v1/accounts/{id}/liquidation-price/{market}.
type LiquidationPriceResponse struct {
	AccountID        string `json:"account_id"`
	MarketID         string `json:"market_id"`
	Exists           bool   `json:"exists"`
	LiquidationPrice string `json:"liquidation_price,omitempty"`
	Partial          bool   `json:"partial"`
	SizeDelta        string `json:"size_delta,omitempty"`
	CloseQuoteAmount string `json:"close_quote_amount,omitempty"`
}

// GetLiquidationPrice handles GET /v1/accounts/{accountID}/liquidation-price/{marketID}
//
// Query parameters:
//
//	size_delta          optional signed base-asset change applied before solving
//	close_quote_amount  optional quote-denominated partial close (overrides size_delta)
//	partial             solve against partial rather than maintenance margin
func (qs *QueryServer) GetLiquidationPrice(w http.ResponseWriter, r *http.Request) {
	const endpoint = "liquidation_price"
	start := time.Now()

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		qs.writeError(w, endpoint, "invalid account id", http.StatusBadRequest)
		return
	}
	marketID := chi.URLParam(r, "marketID")

	snap, ok := qs.store.Snapshot(accountID)
	if !ok {
		qs.writeError(w, endpoint, "account not found", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	partial := false
	if s := q.Get("partial"); s != "" {
		partial, err = strconv.ParseBool(s)
		if err != nil {
			qs.writeError(w, endpoint, "partial must be a boolean", http.StatusBadRequest)
			return
		}
	}

	var sizeDelta *big.Int
	if s := q.Get("size_delta"); s != "" {
		sizeDelta, ok = new(big.Int).SetString(s, 10)
		if !ok {
			qs.writeError(w, endpoint, "size_delta must be a scaled integer", http.StatusBadRequest)
			return
		}
	}

	engine := qs.engine()

	var lp risk.LiquidationPrice
	resp := LiquidationPriceResponse{
		AccountID: accountID.String(),
		MarketID:  marketID,
		Partial:   partial,
	}

	if s := q.Get("close_quote_amount"); s != "" {
		closeQuote, ok := new(big.Int).SetString(s, 10)
		if !ok {
			qs.writeError(w, endpoint, "close_quote_amount must be a scaled integer", http.StatusBadRequest)
			return
		}
		lp, err = engine.LiquidationPriceAfterClose(snap, marketID, closeQuote)
		resp.Partial = true
		resp.CloseQuoteAmount = s
	} else {
		lp, err = engine.LiquidationPrice(snap, marketID, sizeDelta, partial)
		if sizeDelta != nil {
			resp.SizeDelta = sizeDelta.String()
		}
	}

	if err != nil {
		if errors.Is(err, risk.ErrUnknownMarket) {
			qs.writeError(w, endpoint, "market not found", http.StatusNotFound)
			return
		}
		qs.logger.Error().Err(err).Str("market_id", marketID).Msg("liquidation price solve failed")
		qs.writeError(w, endpoint, "internal error", http.StatusInternalServerError)
		return
	}

	if price, exists := lp.Price(); exists {
		resp.Exists = true
		resp.LiquidationPrice = price.String()
	}

	qs.writeJSON(w, endpoint, http.StatusOK, resp)
	qs.observe(endpoint, start)
}

func (qs *QueryServer) writeJSON(w http.ResponseWriter, endpoint string, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
	if qs.metrics != nil {
		qs.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
}

func (qs *QueryServer) writeError(w http.ResponseWriter, endpoint, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
	if qs.metrics != nil {
		qs.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
}

func (qs *QueryServer) observe(endpoint string, start time.Time) {
	if qs.metrics != nil {
		qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
