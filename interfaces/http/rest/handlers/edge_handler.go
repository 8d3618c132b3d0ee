package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"trellis-backend/application/services"
	"trellis-backend/domain/ontology"
	"trellis-backend/pkg/auth"
	pkgerrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/utils"
)

// EdgeHandler handles edge-related HTTP requests
type EdgeHandler struct {
	edges  *services.EdgeService
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewEdgeHandler creates a new edge handler
func NewEdgeHandler(edges *services.EdgeService, errors *pkgerrors.ErrorHandler, logger *zap.Logger) *EdgeHandler {
	return &EdgeHandler{
		edges:  edges,
		errors: errors,
		logger: logger,
	}
}

// CreateEdgeRequest represents the request body for creating an edge
type CreateEdgeRequest struct {
	SourceID string   `json:"source_id" validate:"required,uuid"`
	TargetID string   `json:"target_id" validate:"required,uuid"`
	Type     string   `json:"type,omitempty" validate:"omitempty,oneof=related_to supports refutes defines caused_by derived_from example_of part_of"`
	Weight   *float64 `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Label    string   `json:"label,omitempty" validate:"omitempty,max=200"`
}

// UpdateEdgeRequest represents the request body for retyping an edge
type UpdateEdgeRequest struct {
	Type string `json:"type" validate:"required,oneof=related_to supports refutes defines caused_by derived_from example_of part_of"`
}

// CreateEdge handles POST /edges
func (h *EdgeHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var req CreateEdgeRequest
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

	if req.Type == "" {
		req.Type = string(ontology.EdgeTypeRelatedTo)
	}
	weight := 1.0
	if req.Weight != nil {
		weight = *req.Weight
	}

	edge, err := h.edges.CreateEdge(r.Context(), userCtx.UserID, ontology.NewEdgeParams{
		SourceID:   req.SourceID,
		TargetID:   req.TargetID,
		Type:       ontology.EdgeType(req.Type),
		Weight:     weight,
		Label:      req.Label,
		Provenance: ontology.UserProvenance(),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusCreated, edge)
}

// GetEdge handles GET /edges/{edgeID}
func (h *EdgeHandler) GetEdge(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	edge, err := h.edges.GetEdge(r.Context(), userCtx.UserID, chi.URLParam(r, "edgeID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, edge)
}

// UpdateEdge handles PUT /edges/{edgeID}
func (h *EdgeHandler) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	var req UpdateEdgeRequest
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

	edge, err := h.edges.UpdateEdgeType(r.Context(), userCtx.UserID, chi.URLParam(r, "edgeID"), ontology.EdgeType(req.Type))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, edge)
}

// DeleteEdge handles DELETE /edges/{edgeID}
func (h *EdgeHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.edges.DeleteEdge(r.Context(), userCtx.UserID, chi.URLParam(r, "edgeID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListNodeEdges handles GET /nodes/{nodeID}/edges
func (h *EdgeHandler) ListNodeEdges(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	includeDeprecated := r.URL.Query().Get("include_deprecated") == "true"

	edges, err := h.edges.ListEdgesForNode(r.Context(), userCtx.UserID, chi.URLParam(r, "nodeID"), !includeDeprecated)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"edges": edges})
}
