package ontology

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	pkgerrors "trellis-backend/pkg/errors"
)

// EdgeType classifies the semantic relationship an edge carries
type EdgeType string

const (
	EdgeTypeRelatedTo   EdgeType = "related_to"
	EdgeTypeSupports    EdgeType = "supports"
	EdgeTypeRefutes     EdgeType = "refutes"
	EdgeTypeDefines     EdgeType = "defines"
	EdgeTypeCausedBy    EdgeType = "caused_by"
	EdgeTypeDerivedFrom EdgeType = "derived_from"
	EdgeTypeExampleOf   EdgeType = "example_of"
	EdgeTypePartOf      EdgeType = "part_of"
)

// Valid reports whether the edge type is known
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeTypeRelatedTo, EdgeTypeSupports, EdgeTypeRefutes, EdgeTypeDefines,
		EdgeTypeCausedBy, EdgeTypeDerivedFrom, EdgeTypeExampleOf, EdgeTypePartOf:
		return true
	}
	return false
}

// ParseEdgeType converts a string into an EdgeType
func ParseEdgeType(s string) (EdgeType, error) {
	t := EdgeType(s)
	if !t.Valid() {
		return "", pkgerrors.NewValidationError("unknown edge type: " + s)
	}
	return t, nil
}

// Edge is a directed, typed, weighted relationship between two distinct
// nodes of the same owner. Endpoints are weak references by id: the edge
// does not own its nodes.
type Edge struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	SourceID   string     `json:"source_id"`
	TargetID   string     `json:"target_id"`
	Type       EdgeType   `json:"type"`
	Status     Status     `json:"status"`
	Weight     float64    `json:"weight"`
	Label      string     `json:"label,omitempty"`
	Provenance Provenance `json:"provenance"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewEdgeParams carries caller-supplied fields for edge creation.
// As with nodes, status is derived from the provenance creator.
type NewEdgeParams struct {
	SourceID   string
	TargetID   string
	Type       EdgeType
	Weight     float64
	Label      string
	Provenance Provenance
}

// NewEdge creates an edge with full invariant validation. Endpoint
// existence and the (source, target, type) uniqueness invariant are
// enforced at the store, which sees all edges of the owner.
func NewEdge(ownerID string, p NewEdgeParams) (*Edge, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("owner id cannot be empty")
	}
	if p.SourceID == "" || p.TargetID == "" {
		return nil, pkgerrors.NewValidationError("edge requires both source and target node ids")
	}
	if p.SourceID == p.TargetID {
		return nil, pkgerrors.NewValidationError("edge cannot connect a node to itself")
	}
	if !p.Type.Valid() {
		return nil, pkgerrors.NewValidationError("unknown edge type: " + string(p.Type))
	}
	if p.Weight < 0.0 || p.Weight > 1.0 {
		return nil, pkgerrors.NewValidationError("edge weight must be between 0.0 and 1.0")
	}
	if err := p.Provenance.Validate(); err != nil {
		return nil, err
	}

	status := StatusActive
	if p.Provenance.Creator == ActorAI {
		status = StatusExperimental
	}

	now := time.Now()
	return &Edge{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		SourceID:   p.SourceID,
		TargetID:   p.TargetID,
		Type:       p.Type,
		Status:     status,
		Weight:     p.Weight,
		Label:      p.Label,
		Provenance: p.Provenance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ChangeType retypes the edge in place. The uniqueness invariant against
// the new type is re-checked at the store.
func (e *Edge) ChangeType(newType EdgeType) (bool, error) {
	if !newType.Valid() {
		return false, pkgerrors.NewValidationError("unknown edge type: " + string(newType))
	}
	if newType == e.Type {
		return false, nil
	}
	e.Type = newType
	e.UpdatedAt = time.Now()
	return true, nil
}

// TransitionTo applies a governance state change
func (e *Edge) TransitionTo(target Status) (bool, error) {
	changed, err := Transition("edge", e.Status, target)
	if err != nil || !changed {
		return changed, err
	}
	e.Status = target
	e.UpdatedAt = time.Now()
	return true, nil
}

// Snapshot returns an opaque state capture for audit diffing
func (e *Edge) Snapshot() json.RawMessage {
	b, _ := json.Marshal(struct {
		SourceID string   `json:"source_id"`
		TargetID string   `json:"target_id"`
		Type     EdgeType `json:"type"`
		Status   Status   `json:"status"`
		Weight   float64  `json:"weight"`
		Label    string   `json:"label,omitempty"`
	}{e.SourceID, e.TargetID, e.Type, e.Status, e.Weight, e.Label})
	return b
}
