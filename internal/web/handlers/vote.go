package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/securevote/backend/internal/config"
	"github.com/securevote/backend/internal/voterstore"
	"github.com/securevote/backend/internal/voting"
)

// VoteHandler handles vote casting and the candidate roster.
type VoteHandler struct {
	config       *config.Config
	orchestrator *voting.Orchestrator
}

// NewVoteHandler creates a vote handler.
func NewVoteHandler(cfg *config.Config, orchestrator *voting.Orchestrator) *VoteHandler {
	return &VoteHandler{config: cfg, orchestrator: orchestrator}
}

type castVoteRequest struct {
	VoterName   string `json:"voter_name"`
	CandidateID string `json:"candidate_id"`
}

// CastVote handles POST /api/cast-vote.
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.VoterName == "" || req.CandidateID == "" {
		respondError(w, http.StatusBadRequest, "voter_name and candidate_id are required")
		return
	}
	if !h.config.ValidCandidate(req.CandidateID) {
		respondErrorCode(w, http.StatusBadRequest, codeInvalidCandidate,
			"unknown candidate '"+req.CandidateID+"'")
		return
	}

	outcome, err := h.orchestrator.CastVote(r.Context(), req.VoterName, req.CandidateID)
	if err != nil {
		if errors.Is(err, voterstore.ErrAlreadyVoted) {
			respondErrorCode(w, http.StatusBadRequest, codeAlreadyVoted, "Voter has already cast their vote")
			return
		}
		log.Printf("Vote recording failed for %q: %v", sanitizeForLog(req.VoterName), err)
		respondError(w, http.StatusInternalServerError, "vote recording failed")
		return
	}

	resp := map[string]any{
		"success":      true,
		"vote_id":      outcome.VoteID,
		"recorded_via": outcome.RecordedVia,
	}
	if outcome.LedgerReference != "" {
		resp["tx_hash"] = outcome.LedgerReference
	}
	if outcome.BlockNumber > 0 {
		resp["block_number"] = outcome.BlockNumber
	}
	respondJSON(w, http.StatusOK, resp)
}

// Candidates handles GET /api/candidates.
func (h *VoteHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"candidates": h.config.Candidates.Candidates,
	})
}
