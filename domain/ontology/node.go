package ontology

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "trellis-backend/pkg/errors"
)

// NodeType classifies a knowledge unit
type NodeType string

const (
	NodeTypeNote       NodeType = "note"
	NodeTypeClaim      NodeType = "claim"
	NodeTypeEvidence   NodeType = "evidence"
	NodeTypeSource     NodeType = "source"
	NodeTypePerson     NodeType = "person"
	NodeTypeDefinition NodeType = "definition"
)

// Valid reports whether the node type is known
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeNote, NodeTypeClaim, NodeTypeEvidence, NodeTypeSource,
		NodeTypePerson, NodeTypeDefinition:
		return true
	}
	return false
}

// ParseNodeType converts a string into a NodeType
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !t.Valid() {
		return "", pkgerrors.NewValidationError("unknown node type: " + s)
	}
	return t, nil
}

// Content and metadata constraints
const (
	MaxTitleLength   = 200
	MaxContentLength = 50000
	MaxTagsPerNode   = 20

	derivedTitleLength = 50
)

// Node is a typed, governed, provenance-tracked knowledge unit.
// The embedding is a ranking artifact: absent until computed, cleared
// whenever content changes, and never part of API payloads.
type Node struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Type       NodeType   `json:"type"`
	Status     Status     `json:"status"`
	Provenance Provenance `json:"provenance"`
	Embedding  []float32  `json:"-"`
	Tags       []string   `json:"tags,omitempty"`
	FolderID   string     `json:"folder_id,omitempty"`
	WordCount  int        `json:"word_count"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewNodeParams carries caller-supplied fields for node creation.
// Status is deliberately absent: it is derived from the provenance
// creator, so callers cannot request active status on AI content.
type NewNodeParams struct {
	Title      string
	Content    string
	Type       NodeType
	Tags       []string
	FolderID   string
	Provenance Provenance
}

// NewNode creates a node with full business rule validation
func NewNode(ownerID string, p NewNodeParams) (*Node, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("owner id cannot be empty")
	}
	if !p.Type.Valid() {
		return nil, pkgerrors.NewValidationError("unknown node type: " + string(p.Type))
	}
	if err := p.Provenance.Validate(); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = deriveTitle(p.Content)
	}
	if title == "" {
		return nil, pkgerrors.NewValidationError("node requires a title or non-empty content")
	}
	if len(title) > MaxTitleLength {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("title exceeds maximum length of %d", MaxTitleLength))
	}
	if len(p.Content) > MaxContentLength {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("content exceeds maximum length of %d", MaxContentLength))
	}

	tags := normalizeTags(p.Tags)
	if len(tags) > MaxTagsPerNode {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("at most %d tags allowed", MaxTagsPerNode))
	}

	status := StatusActive
	if p.Provenance.Creator == ActorAI {
		// AI-authored content always enters the graph as experimental,
		// regardless of what the caller asked for.
		status = StatusExperimental
	}

	now := time.Now()
	return &Node{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      title,
		Content:    p.Content,
		Type:       p.Type,
		Status:     status,
		Provenance: p.Provenance,
		Tags:       tags,
		FolderID:   p.FolderID,
		WordCount:  countWords(p.Content),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NodeUpdate describes a partial node edit. Nil pointers leave the field
// unchanged; Tags follows the same convention with a nil slice.
type NodeUpdate struct {
	Title    *string
	Content  *string
	Type     *NodeType
	Tags     []string
	FolderID *string
}

// ApplyUpdate mutates the node in place. A content change recomputes the
// word count and clears the stored embedding so a stale vector never ranks.
// Returns whether any field actually changed.
func (n *Node) ApplyUpdate(upd NodeUpdate) (bool, error) {
	changed := false

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return false, pkgerrors.NewValidationError("title cannot be empty")
		}
		if len(title) > MaxTitleLength {
			return false, pkgerrors.NewValidationError(fmt.Sprintf("title exceeds maximum length of %d", MaxTitleLength))
		}
		if title != n.Title {
			n.Title = title
			changed = true
		}
	}

	if upd.Content != nil && *upd.Content != n.Content {
		if len(*upd.Content) > MaxContentLength {
			return false, pkgerrors.NewValidationError(fmt.Sprintf("content exceeds maximum length of %d", MaxContentLength))
		}
		n.Content = *upd.Content
		n.WordCount = countWords(n.Content)
		n.Embedding = nil
		changed = true
	}

	if upd.Type != nil && *upd.Type != n.Type {
		if !upd.Type.Valid() {
			return false, pkgerrors.NewValidationError("unknown node type: " + string(*upd.Type))
		}
		n.Type = *upd.Type
		changed = true
	}

	if upd.Tags != nil {
		tags := normalizeTags(upd.Tags)
		if len(tags) > MaxTagsPerNode {
			return false, pkgerrors.NewValidationError(fmt.Sprintf("at most %d tags allowed", MaxTagsPerNode))
		}
		if !equalTags(tags, n.Tags) {
			n.Tags = tags
			changed = true
		}
	}

	if upd.FolderID != nil && *upd.FolderID != n.FolderID {
		n.FolderID = *upd.FolderID
		changed = true
	}

	if changed {
		n.UpdatedAt = time.Now()
	}
	return changed, nil
}

// TransitionTo applies a governance state change
func (n *Node) TransitionTo(target Status) (bool, error) {
	changed, err := Transition("node", n.Status, target)
	if err != nil || !changed {
		return changed, err
	}
	n.Status = target
	n.UpdatedAt = time.Now()
	return true, nil
}

// HasEmbedding reports whether a similarity vector has been computed
func (n *Node) HasEmbedding() bool {
	return len(n.Embedding) > 0
}

// Snapshot returns an opaque state capture for audit diffing
func (n *Node) Snapshot() json.RawMessage {
	b, _ := json.Marshal(struct {
		Title     string   `json:"title"`
		Content   string   `json:"content"`
		Type      NodeType `json:"type"`
		Status    Status   `json:"status"`
		Tags      []string `json:"tags,omitempty"`
		FolderID  string   `json:"folder_id,omitempty"`
		WordCount int      `json:"word_count"`
	}{n.Title, n.Content, n.Type, n.Status, n.Tags, n.FolderID, n.WordCount})
	return b
}

// deriveTitle builds a title from the leading content when none was given
func deriveTitle(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= derivedTitleLength {
		return string(runes)
	}
	return string(runes[:derivedTitleLength]) + "..."
}

func countWords(content string) int {
	return len(strings.Fields(content))
}

// normalizeTags lowercases and dedupes while preserving first-seen order.
// Tags are a case-insensitive vocabulary: "Physics" and "physics" are the
// same tag everywhere they are stored, filtered, or listed.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
