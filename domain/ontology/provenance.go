package ontology

import (
	pkgerrors "trellis-backend/pkg/errors"
)

// Actor identifies who produced an entity or performed an action
type Actor string

const (
	ActorUser Actor = "user"
	ActorAI   Actor = "ai"
)

// Valid reports whether the actor is known
func (a Actor) Valid() bool {
	return a == ActorUser || a == ActorAI
}

// Provenance records who or what produced an entity and with what confidence.
// SourceNodeID is a weak back-reference to the node the entity was derived
// from, not an ownership relation.
type Provenance struct {
	Creator      Actor    `json:"creator"`
	ModelID      string   `json:"model_id,omitempty"`
	ModelVersion string   `json:"model_version,omitempty"`
	SourceNodeID string   `json:"source_node_id,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Method       string   `json:"method,omitempty"`
}

// UserProvenance returns provenance for a manually created entity
func UserProvenance() Provenance {
	return Provenance{Creator: ActorUser, Method: "manual"}
}

// Validate checks the provenance record's internal consistency
func (p Provenance) Validate() error {
	if !p.Creator.Valid() {
		return pkgerrors.NewValidationError("provenance creator must be 'user' or 'ai'")
	}
	if p.Creator == ActorAI && p.ModelID == "" {
		return pkgerrors.NewValidationError("provenance for AI-created content requires a model id")
	}
	if p.Confidence != nil && (*p.Confidence < 0.0 || *p.Confidence > 1.0) {
		return pkgerrors.NewValidationError("provenance confidence must be between 0.0 and 1.0")
	}
	return nil
}
