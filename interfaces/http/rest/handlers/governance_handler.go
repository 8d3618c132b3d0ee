package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"trellis-backend/application/services"
	"trellis-backend/pkg/auth"
	pkgerrors "trellis-backend/pkg/errors"
)

// GovernanceHandler exposes lifecycle transitions and AI link suggestion
type GovernanceHandler struct {
	governance *services.GovernanceService
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewGovernanceHandler creates a new governance handler
func NewGovernanceHandler(governance *services.GovernanceService, errors *pkgerrors.ErrorHandler, logger *zap.Logger) *GovernanceHandler {
	return &GovernanceHandler{
		governance: governance,
		errors:     errors,
		logger:     logger,
	}
}

// ApproveNode handles POST /nodes/{nodeID}/approve
func (h *GovernanceHandler) ApproveNode(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	node, err := h.governance.ApproveNode(r.Context(), userCtx.UserID, chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, node)
}

// DeprecateNode handles POST /nodes/{nodeID}/deprecate
func (h *GovernanceHandler) DeprecateNode(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	node, err := h.governance.DeprecateNode(r.Context(), userCtx.UserID, chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, node)
}

// ApproveEdge handles POST /edges/{edgeID}/approve
func (h *GovernanceHandler) ApproveEdge(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	edge, err := h.governance.ApproveEdge(r.Context(), userCtx.UserID, chi.URLParam(r, "edgeID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, edge)
}

// DeprecateEdge handles POST /edges/{edgeID}/deprecate
func (h *GovernanceHandler) DeprecateEdge(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	edge, err := h.governance.DeprecateEdge(r.Context(), userCtx.UserID, chi.URLParam(r, "edgeID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, edge)
}

// SuggestLinks handles POST /nodes/{nodeID}/suggest-links
func (h *GovernanceHandler) SuggestLinks(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	report, err := h.governance.SuggestLinks(r.Context(), userCtx.UserID, chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, report)
}
