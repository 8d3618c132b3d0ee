// Package memory provides an in-memory implementation of the persistence
// ports, used by unit tests and local development. Ranking operators mirror
// the semantics of the Postgres implementation: cosine similarity over
// embeddings and trigram set similarity over text.
package memory

import (
	"math"
	"strings"
	"sync"
	"unicode"

	"trellis-backend/domain/ontology"
)

// Store is the shared backing state for the repository implementations.
// A single mutex guards nodes, edges and the ledger so multi-entity
// operations (cascading deletes, paired log writes) stay atomic, matching
// the transactional store.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*ontology.Node
	edges map[string]*ontology.Edge
	logs  []*ontology.LogEntry
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*ontology.Node),
		edges: make(map[string]*ontology.Edge),
	}
}

// Nodes returns the node repository view of the store
func (s *Store) Nodes() *NodeRepository {
	return &NodeRepository{store: s}
}

// Edges returns the edge repository view of the store
func (s *Store) Edges() *EdgeRepository {
	return &EdgeRepository{store: s}
}

// Logs returns the ledger repository view of the store
func (s *Store) Logs() *LogRepository {
	return &LogRepository{store: s}
}

// Search returns the search repository view of the store
func (s *Store) Search() *SearchRepository {
	return &SearchRepository{store: s}
}

// appendLog stores a copy of the entry; callers hold the write lock
func (s *Store) appendLog(entry *ontology.LogEntry) {
	if entry == nil {
		return
	}
	s.logs = append(s.logs, cloneLogEntry(entry))
}

func cloneNode(n *ontology.Node) *ontology.Node {
	c := *n
	if n.Embedding != nil {
		c.Embedding = make([]float32, len(n.Embedding))
		copy(c.Embedding, n.Embedding)
	}
	if n.Tags != nil {
		c.Tags = make([]string, len(n.Tags))
		copy(c.Tags, n.Tags)
	}
	return &c
}

func cloneEdge(e *ontology.Edge) *ontology.Edge {
	c := *e
	return &c
}

func cloneLogEntry(e *ontology.LogEntry) *ontology.LogEntry {
	c := *e
	if e.NodeID != nil {
		id := *e.NodeID
		c.NodeID = &id
	}
	if e.EdgeID != nil {
		id := *e.EdgeID
		c.EdgeID = &id
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// trigrams extracts the padded word trigram set of a string, following
// pg_trgm: lowercase, words split on non-alphanumerics, each word padded
// with two leading and one trailing space.
func trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := "  " + w + " "
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			out[string(runes[i:i+3])] = struct{}{}
		}
	}
	return out
}

// trigramSimilarity is the Jaccard similarity of two trigram sets
func trigramSimilarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
