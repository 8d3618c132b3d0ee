package ontology

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	pkgerrors "trellis-backend/pkg/errors"
)

// Action names an auditable operation on the graph
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionMerge        Action = "merge"
	ActionSplit        Action = "split"
	ActionApprove      Action = "approve"
	ActionDeprecate    Action = "deprecate"
	ActionExtractGraph Action = "extract_graph"
	ActionSummarize    Action = "summarize"
	ActionLinkSuggest  Action = "link_suggest"
)

// Valid reports whether the action is known
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionMerge, ActionSplit,
		ActionApprove, ActionDeprecate, ActionExtractGraph, ActionSummarize,
		ActionLinkSuggest:
		return true
	}
	return false
}

// LogEntry is one immutable record in the provenance ledger. Entries are
// append-only: the engine never updates or deletes them. Node and edge
// references are weak; deleting the target nulls the reference but the
// entry survives.
type LogEntry struct {
	ID           string                 `json:"id"`
	OwnerID      string                 `json:"owner_id"`
	Action       Action                 `json:"action"`
	Actor        Actor                  `json:"actor"`
	ModelID      string                 `json:"model_id,omitempty"`
	ModelVersion string                 `json:"model_version,omitempty"`
	NodeID       *string                `json:"node_id,omitempty"`
	EdgeID       *string                `json:"edge_id,omitempty"`
	BeforeState  json.RawMessage        `json:"before_state,omitempty"`
	AfterState   json.RawMessage        `json:"after_state,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewLogEntry creates a ledger entry for the given action
func NewLogEntry(ownerID string, action Action, actor Actor) (*LogEntry, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("log entry owner id cannot be empty")
	}
	if !action.Valid() {
		return nil, pkgerrors.NewValidationError("unknown log action: " + string(action))
	}
	if !actor.Valid() {
		return nil, pkgerrors.NewValidationError("log entry actor must be 'user' or 'ai'")
	}
	return &LogEntry{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Action:    action,
		Actor:     actor,
		CreatedAt: time.Now(),
	}, nil
}

// WithNode attaches the affected node id
func (e *LogEntry) WithNode(nodeID string) *LogEntry {
	e.NodeID = &nodeID
	return e
}

// WithEdge attaches the affected edge id
func (e *LogEntry) WithEdge(edgeID string) *LogEntry {
	e.EdgeID = &edgeID
	return e
}

// WithModel records which model acted, for AI actors
func (e *LogEntry) WithModel(modelID, modelVersion string) *LogEntry {
	e.ModelID = modelID
	e.ModelVersion = modelVersion
	return e
}

// WithSnapshots attaches opaque before/after states for auditable diffing
func (e *LogEntry) WithSnapshots(before, after json.RawMessage) *LogEntry {
	e.BeforeState = before
	e.AfterState = after
	return e
}

// WithMetadata attaches action-specific context
func (e *LogEntry) WithMetadata(metadata map[string]interface{}) *LogEntry {
	e.Metadata = metadata
	return e
}
