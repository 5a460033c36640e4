package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/securevote/backend/internal/election"
	"github.com/securevote/backend/internal/extractor"
	"github.com/securevote/backend/internal/facematch"
	"github.com/securevote/backend/internal/voterstore"
)

// Extractor produces a face embedding from raw image bytes.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) ([]float32, error)
}

// VoterHandler handles registration, authentication, and the similar-voters
// diagnostic.
type VoterHandler struct {
	service   *election.Service
	extractor Extractor
}

// NewVoterHandler creates a voter handler.
func NewVoterHandler(service *election.Service, ext Extractor) *VoterHandler {
	return &VoterHandler{service: service, extractor: ext}
}

type registerRequest struct {
	Name      string    `json:"name"`
	ImageData string    `json:"image_data,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type authenticateRequest struct {
	ImageData string    `json:"image_data,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type similarRequest struct {
	ImageData string    `json:"image_data,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	K         int       `json:"k,omitempty"`
}

// resolveEmbedding returns the embedding from the request: either passed
// directly or extracted from the submitted image. Writes the error response
// itself and returns false when the embedding cannot be produced.
func (h *VoterHandler) resolveEmbedding(w http.ResponseWriter, r *http.Request, imageData string, embedding []float32) ([]float32, bool) {
	if len(embedding) > 0 {
		return embedding, true
	}
	if imageData == "" {
		respondError(w, http.StatusBadRequest, "image_data or embedding is required")
		return nil, false
	}

	raw, err := extractor.DecodeImage(imageData)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image data")
		return nil, false
	}
	vec, err := h.extractor.Extract(r.Context(), raw)
	if err != nil {
		if errors.Is(err, extractor.ErrNoFaceDetected) {
			respondErrorCode(w, http.StatusBadRequest, codeNoFaceDetected, "no face detected in the image")
			return nil, false
		}
		log.Printf("Embedding extraction failed: %v", err)
		respondError(w, http.StatusBadGateway, "embedding service unavailable")
		return nil, false
	}
	return vec, true
}

// Register handles POST /api/register-voter.
func (h *VoterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	template, ok := h.resolveEmbedding(w, r, req.ImageData, req.Embedding)
	if !ok {
		return
	}

	err := h.service.Register(r.Context(), req.Name, template)
	var dup *election.DuplicateFaceError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Voter " + req.Name + " registered successfully with biometric verification",
		})
	case errors.Is(err, voterstore.ErrAlreadyRegistered):
		respondErrorCode(w, http.StatusBadRequest, codeAlreadyRegistered,
			"Voter with name '"+req.Name+"' is already registered")
	case errors.As(err, &dup):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":        "This face is already registered under the name '" + dup.MatchedName + "'. Each person can only register once.",
			"code":         codeDuplicateFace,
			"matched_name": dup.MatchedName,
		})
	case errors.Is(err, facematch.ErrDimensionMismatch), errors.Is(err, facematch.ErrDegenerateVector):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Registration failed for %q: %v", sanitizeForLog(req.Name), err)
		respondError(w, http.StatusInternalServerError, "registration failed")
	}
}

// Authenticate handles POST /api/authenticate-voter.
func (h *VoterHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	probe, ok := h.resolveEmbedding(w, r, req.ImageData, req.Embedding)
	if !ok {
		return
	}

	result, err := h.service.Authenticate(r.Context(), probe)
	if err != nil {
		if errors.Is(err, facematch.ErrDimensionMismatch) || errors.Is(err, facematch.ErrDegenerateVector) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("Authentication failed: %v", err)
		respondError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	if !result.Authenticated {
		respondJSON(w, http.StatusOK, map[string]any{
			"authenticated":    false,
			"similarity_score": result.Score,
			"message":          "Face not recognized. Please ensure you are registered to vote.",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated":    true,
		"voter_name":       result.Match,
		"similarity_score": result.Score,
		"has_voted":        result.HasVoted,
	})
}

// Similar handles POST /api/similar-voters, the operator diagnostic that
// lists the approximate nearest registered faces for a probe.
func (h *VoterHandler) Similar(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.K <= 0 {
		req.K = 5
	}

	probe, ok := h.resolveEmbedding(w, r, req.ImageData, req.Embedding)
	if !ok {
		return
	}

	neighbors, err := h.service.SimilarVoters(probe, req.K)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"neighbors": neighbors})
}
