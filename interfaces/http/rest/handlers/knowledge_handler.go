package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"trellis-backend/application/services"
	"trellis-backend/pkg/auth"
	pkgerrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/utils"
)

// KnowledgeHandler exposes the model-backed pipelines: decomposing free
// text into graph structure and answering questions from the graph.
type KnowledgeHandler struct {
	extraction *services.ExtractionService
	answers    *services.AnswerService
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(
	extraction *services.ExtractionService,
	answers *services.AnswerService,
	errors *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *KnowledgeHandler {
	return &KnowledgeHandler{
		extraction: extraction,
		answers:    answers,
		errors:     errors,
		logger:     logger,
	}
}

// ExtractRequest represents the request body for an extraction run
type ExtractRequest struct {
	Text         string `json:"text" validate:"required,max=50000"`
	SourceNodeID string `json:"source_node_id,omitempty" validate:"omitempty,uuid"`
}

// AskRequest represents the request body for a graph-grounded question
type AskRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
}

// Extract handles POST /extract. A run that the model answers with
// unusable output is reported as failed with HTTP 200; transport-level
// errors keep their usual status codes.
func (h *KnowledgeHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
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

	report, err := h.extraction.Run(r.Context(), userCtx.UserID, services.ExtractionInput{
		Text:         req.Text,
		SourceNodeID: req.SourceNodeID,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, report)
}

// Ask handles POST /ask
func (h *KnowledgeHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
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

	answer, err := h.answers.Ask(r.Context(), userCtx.UserID, req.Question)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, answer)
}
