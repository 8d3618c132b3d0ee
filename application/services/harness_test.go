package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/application/services"
	"trellis-backend/domain/ontology"
	"trellis-backend/infrastructure/persistence/memory"
	"trellis-backend/pkg/observability"
)

const testOwner = "owner-1"

// stubEmbedder returns canned vectors keyed by text, or a fixed fallback
type stubEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return s.fallback, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }

// stubCompleter returns a canned response and records the prompts it saw
type stubCompleter struct {
	response   string
	err        error
	calls      int
	lastSystem string
	lastUser   string
	lastOpts   ports.CompletionOptions
}

func (s *stubCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ports.CompletionOptions) (string, error) {
	s.calls++
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt
	s.lastOpts = opts
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

type harness struct {
	store      *memory.Store
	embedder   *stubEmbedder
	completer  *stubCompleter
	nodes      *services.NodeService
	edges      *services.EdgeService
	retrieval  *services.RetrievalService
	extraction *services.ExtractionService
	answers    *services.AnswerService
	governance *services.GovernanceService
	embeddings *services.EmbeddingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	logger := zap.NewNop()
	metrics := observability.NewCollector("test")
	model := ports.ModelRef{Provider: "test", ModelID: "test-model", Version: "1"}

	embedder := &stubEmbedder{fallback: []float32{0, 0, 1}}
	completer := &stubCompleter{response: "{}"}

	retrieval := services.NewRetrievalService(
		store.Nodes(), store.Edges(), store.Search(), embedder,
		services.DefaultRetrievalConfig(), logger, metrics,
	)

	return &harness{
		store:     store,
		embedder:  embedder,
		completer: completer,
		nodes:     services.NewNodeService(store.Nodes(), store.Logs(), logger, metrics),
		edges:     services.NewEdgeService(store.Nodes(), store.Edges(), logger, metrics),
		retrieval: retrieval,
		extraction: services.NewExtractionService(
			store.Nodes(), store.Edges(), store.Logs(), completer, model,
			services.DefaultExtractionConfig(), logger, metrics,
		),
		answers: services.NewAnswerService(
			retrieval, completer, store.Logs(), model,
			services.DefaultAnswerConfig(), logger, metrics,
		),
		governance: services.NewGovernanceService(
			store.Nodes(), store.Edges(), store.Logs(), retrieval, completer, model,
			services.DefaultGovernanceConfig(), logger, metrics,
		),
		embeddings: services.NewEmbeddingService(
			store.Nodes(), embedder,
			services.DefaultEmbeddingConfig(), logger, metrics,
		),
	}
}

// mustCreateNode creates a user-authored node through the service
func (h *harness) mustCreateNode(t *testing.T, title, content string, nodeType ontology.NodeType) *ontology.Node {
	t.Helper()
	node, err := h.nodes.CreateNode(context.Background(), testOwner, ontology.NewNodeParams{
		Title:      title,
		Content:    content,
		Type:       nodeType,
		Provenance: ontology.UserProvenance(),
	})
	require.NoError(t, err)
	return node
}

// mustCreateEdge creates a user-authored edge through the service
func (h *harness) mustCreateEdge(t *testing.T, sourceID, targetID string, edgeType ontology.EdgeType, weight float64) *ontology.Edge {
	t.Helper()
	edge, err := h.edges.CreateEdge(context.Background(), testOwner, ontology.NewEdgeParams{
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       edgeType,
		Weight:     weight,
		Provenance: ontology.UserProvenance(),
	})
	require.NoError(t, err)
	return edge
}

// mustEmbed stores an embedding directly through the repository
func (h *harness) mustEmbed(t *testing.T, nodeID string, vector []float32) {
	t.Helper()
	require.NoError(t, h.store.Nodes().UpdateEmbedding(context.Background(), testOwner, nodeID, vector))
}

// auditEntries returns the owner's full ledger, newest first
func (h *harness) auditEntries(t *testing.T, q ports.LogListQuery) []*ontology.LogEntry {
	t.Helper()
	entries, _, err := h.store.Logs().List(context.Background(), testOwner, q)
	require.NoError(t, err)
	return entries
}

// entriesFor filters the ledger by action
func (h *harness) entriesFor(t *testing.T, action ontology.Action) []*ontology.LogEntry {
	t.Helper()
	return h.auditEntries(t, ports.LogListQuery{Action: action})
}
