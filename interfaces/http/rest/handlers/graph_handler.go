package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"trellis-backend/application/services"
	"trellis-backend/pkg/auth"
	pkgerrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/utils"
)

// GraphHandler exposes the retrieval surface: ranked search over the
// owner's nodes and bounded neighborhood traversal.
type GraphHandler struct {
	retrieval *services.RetrievalService
	errors    *pkgerrors.ErrorHandler
	logger    *zap.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(retrieval *services.RetrievalService, errors *pkgerrors.ErrorHandler, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		retrieval: retrieval,
		errors:    errors,
		logger:    logger,
	}
}

// VectorSearchRequest carries a caller-supplied query vector
type VectorSearchRequest struct {
	Vector    []float32 `json:"vector" validate:"required,min=1"`
	Threshold float64   `json:"threshold,omitempty" validate:"omitempty,gt=0,lt=1"`
	Limit     int       `json:"limit,omitempty" validate:"omitempty,gte=1"`
}

// Search handles GET /search. mode=text ranks by trigram similarity,
// anything else embeds the query and ranks by cosine similarity.
func (h *GraphHandler) Search(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	query := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 0)

	if r.URL.Query().Get("mode") == "text" {
		results, err := h.retrieval.SearchByText(r.Context(), userCtx.UserID, query, limit)
		if err != nil {
			h.errors.Handle(w, r, err)
			return
		}
		respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"results": results})
		return
	}

	threshold := queryFloat(r, "threshold", 0)
	results, err := h.retrieval.SearchSemantic(r.Context(), userCtx.UserID, query, threshold, limit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"results": results})
}

// SearchByVector handles POST /search/vector for callers that bring
// their own embedding
func (h *GraphHandler) SearchByVector(w http.ResponseWriter, r *http.Request) {
	var req VectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.HandleStatus(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.HandleStatus(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	results, err := h.retrieval.SearchByVector(r.Context(), userCtx.UserID, req.Vector, req.Threshold, req.Limit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"results": results})
}

// Neighbors handles GET /nodes/{nodeID}/neighbors
func (h *GraphHandler) Neighbors(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	depth := queryInt(r, "depth", 1)

	neighbors, err := h.retrieval.NeighborContext(r.Context(), userCtx.UserID, chi.URLParam(r, "nodeID"), depth)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"neighbors": neighbors})
}
