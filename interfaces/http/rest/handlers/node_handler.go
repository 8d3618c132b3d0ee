package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/application/services"
	"trellis-backend/domain/ontology"
	"trellis-backend/pkg/auth"
	pkgerrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/utils"
)

// NodeHandler handles node-related HTTP requests
type NodeHandler struct {
	nodes  *services.NodeService
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(nodes *services.NodeService, errors *pkgerrors.ErrorHandler, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{
		nodes:  nodes,
		errors: errors,
		logger: logger,
	}
}

// CreateNodeRequest represents the request body for creating a node.
// Status is not accepted: it is derived from provenance server-side.
type CreateNodeRequest struct {
	Title    string   `json:"title,omitempty" validate:"omitempty,max=200"`
	Content  string   `json:"content,omitempty" validate:"omitempty,max=50000"`
	Type     string   `json:"type,omitempty" validate:"omitempty,oneof=note claim evidence source person definition"`
	Tags     []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	FolderID string   `json:"folder_id,omitempty"`
}

// UpdateNodeRequest represents the request body for updating a node
type UpdateNodeRequest struct {
	Title    *string  `json:"title,omitempty" validate:"omitempty,max=200"`
	Content  *string  `json:"content,omitempty" validate:"omitempty,max=50000"`
	Type     *string  `json:"type,omitempty" validate:"omitempty,oneof=note claim evidence source person definition"`
	Tags     []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	FolderID *string  `json:"folder_id,omitempty"`
}

// CreateNode handles POST /nodes
func (h *NodeHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
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
		req.Type = string(ontology.NodeTypeNote)
	}

	node, err := h.nodes.CreateNode(r.Context(), userCtx.UserID, ontology.NewNodeParams{
		Title:      req.Title,
		Content:    req.Content,
		Type:       ontology.NodeType(req.Type),
		Tags:       req.Tags,
		FolderID:   req.FolderID,
		Provenance: ontology.UserProvenance(),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusCreated, node)
}

// GetNode handles GET /nodes/{nodeID}
func (h *NodeHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	node, err := h.nodes.GetNode(r.Context(), userCtx.UserID, chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, node)
}

// UpdateNode handles PUT /nodes/{nodeID}
func (h *NodeHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
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

	update := ontology.NodeUpdate{
		Title:    req.Title,
		Content:  req.Content,
		Tags:     req.Tags,
		FolderID: req.FolderID,
	}
	if req.Type != nil {
		nodeType := ontology.NodeType(*req.Type)
		update.Type = &nodeType
	}

	node, err := h.nodes.UpdateNode(r.Context(), userCtx.UserID, chi.URLParam(r, "nodeID"), update)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, node)
}

// DeleteNode handles DELETE /nodes/{nodeID}
func (h *NodeHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.nodes.DeleteNode(r.Context(), userCtx.UserID, chi.URLParam(r, "nodeID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListNodes handles GET /nodes
func (h *NodeHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	q := ports.NodeListQuery{
		Type:     ontology.NodeType(r.URL.Query().Get("type")),
		Status:   ontology.Status(r.URL.Query().Get("status")),
		Tag:      r.URL.Query().Get("tag"),
		FolderID: r.URL.Query().Get("folder_id"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}

	nodes, total, err := h.nodes.ListNodes(r.Context(), userCtx.UserID, q)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, listEnvelope{
		Items:  nodes,
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
}

// ListAudit handles GET /audit, the read surface of the provenance ledger
func (h *NodeHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	q := ports.LogListQuery{
		Action: ontology.Action(r.URL.Query().Get("action")),
		NodeID: r.URL.Query().Get("node_id"),
		EdgeID: r.URL.Query().Get("edge_id"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := utils.ParseRFC3339(raw)
		if err != nil {
			h.errors.HandleStatus(w, r, http.StatusBadRequest, "from must be an RFC3339 timestamp")
			return
		}
		q.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := utils.ParseRFC3339(raw)
		if err != nil {
			h.errors.HandleStatus(w, r, http.StatusBadRequest, "to must be an RFC3339 timestamp")
			return
		}
		q.To = to
	}

	entries, total, err := h.nodes.ListAudit(r.Context(), userCtx.UserID, q)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, listEnvelope{
		Items:  entries,
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
}

// ListTags handles GET /tags
func (h *NodeHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	tags, err := h.nodes.ListTags(r.Context(), userCtx.UserID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"tags": tags})
}
