package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/securevote/backend/internal/config"
	"github.com/securevote/backend/internal/ledger"
)

// LedgerHandler exposes runtime ledger wiring to operators.
type LedgerHandler struct {
	gateway *ledger.EthereumGateway
	config  *config.Config
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(gateway *ledger.EthereumGateway, cfg *config.Config) *LedgerHandler {
	return &LedgerHandler{gateway: gateway, config: cfg}
}

type configureLedgerRequest struct {
	RPCURL          string `json:"rpc_url"`
	ContractAddress string `json:"contract_address"`
	PrivateKey      string `json:"private_key"`
	ChainID         int64  `json:"chain_id,omitempty"`
}

// Configure handles POST /api/configure-ledger.
func (h *LedgerHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req configureLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	cfg := config.LedgerConfig{
		RPCURL:          req.RPCURL,
		ContractAddress: req.ContractAddress,
		PrivateKey:      req.PrivateKey,
		ChainID:         req.ChainID,
		SubmitTimeout:   h.config.Ledger.SubmitTimeout,
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = h.config.Ledger.ChainID
	}

	if err := h.gateway.Configure(r.Context(), &cfg); err != nil {
		log.Printf("Ledger configuration failed: %v", err)
		respondError(w, http.StatusBadRequest, "ledger configuration failed: "+err.Error())
		return
	}

	statusCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	status := h.gateway.Status(statusCtx)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Ledger configuration updated successfully",
		"connected": status.Connected,
	})
}

// Results handles GET /api/ledger-results: the per-candidate tallies read
// back from the voting contract.
func (h *LedgerHandler) Results(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0, len(h.config.Candidates.Candidates))
	for _, cand := range h.config.Candidates.Candidates {
		ids = append(ids, cand.ID)
	}

	resultsCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	tallies, err := h.gateway.Results(resultsCtx, ids)
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "ledger is not configured or unreachable")
			return
		}
		log.Printf("Failed to read ledger results: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read ledger results")
		return
	}

	var total uint64
	for _, tally := range tallies {
		total += tally.Votes
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"results":     tallies,
		"total_votes": total,
	})
}

// Status handles GET /api/ledger-status.
func (h *LedgerHandler) Status(w http.ResponseWriter, r *http.Request) {
	statusCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	respondJSON(w, http.StatusOK, h.gateway.Status(statusCtx))
}
