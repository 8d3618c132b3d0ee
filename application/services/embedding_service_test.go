package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trellis-backend/application/services"
	"trellis-backend/domain/ontology"
	"trellis-backend/pkg/observability"
)

func TestEmbeddingService_BackfillBatch(t *testing.T) {
	h := newHarness(t)
	missing1 := h.mustCreateNode(t, "First note", "Water boils at 100C.", ontology.NodeTypeNote)
	missing2 := h.mustCreateNode(t, "Second note", "Boiling point drops with altitude.", ontology.NodeTypeNote)
	embedded := h.mustCreateNode(t, "Third note", "Already embedded.", ontology.NodeTypeNote)
	h.mustEmbed(t, embedded.ID, []float32{0, 1, 0})

	backlog, err := h.embeddings.Backlog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, backlog)

	done, err := h.embeddings.BackfillBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, done)
	assert.Equal(t, 2, h.embedder.calls)

	for _, created := range []*ontology.Node{missing1, missing2} {
		node, err := h.nodes.GetNode(context.Background(), testOwner, created.ID)
		require.NoError(t, err)
		assert.True(t, node.HasEmbedding())
		assert.True(t, node.UpdatedAt.Equal(created.UpdatedAt), "backfill does not touch updated_at")
	}

	// the existing embedding is left alone
	stored, err := h.nodes.GetNode(context.Background(), testOwner, embedded.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, stored.Embedding)

	backlog, err = h.embeddings.Backlog(context.Background())
	require.NoError(t, err)
	assert.Zero(t, backlog)

	// no ledger entries beyond the three creates
	assert.Len(t, h.entriesFor(t, ontology.ActionCreate), 3)
	assert.Empty(t, h.entriesFor(t, ontology.ActionUpdate), "embedding writes are not audited")
}

func TestEmbeddingService_BackfillBatch_ContentPreferredOverTitle(t *testing.T) {
	h := newHarness(t)
	withContent := h.mustCreateNode(t, "Short title", "The full body of the note.", ontology.NodeTypeNote)
	titleOnly := h.mustCreateNode(t, "Title is all there is", "", ontology.NodeTypeNote)

	h.embedder.vectors = map[string][]float32{
		"The full body of the note.": {1, 0, 0},
		"Title is all there is":      {0, 1, 0},
	}

	_, err := h.embeddings.BackfillBatch(context.Background())
	require.NoError(t, err)

	a, err := h.nodes.GetNode(context.Background(), testOwner, withContent.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, a.Embedding)

	b, err := h.nodes.GetNode(context.Background(), testOwner, titleOnly.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, b.Embedding)
}

func TestEmbeddingService_BackfillBatch_CapabilityFailureSkips(t *testing.T) {
	h := newHarness(t)
	node := h.mustCreateNode(t, "Note", "content", ontology.NodeTypeNote)
	h.embedder.err = errors.New("provider unreachable")

	done, err := h.embeddings.BackfillBatch(context.Background())
	require.NoError(t, err, "a per-node capability failure is not fatal")
	assert.Zero(t, done)

	// the node stays in the queue for the next run
	h.embedder.err = nil
	done, err = h.embeddings.BackfillBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	stored, err := h.nodes.GetNode(context.Background(), testOwner, node.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasEmbedding())
}

func TestEmbeddingService_BackfillBatch_RespectsBatchSize(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.mustCreateNode(t, "Note", "content for the embedder", ontology.NodeTypeNote)
	}

	small := services.NewEmbeddingService(
		h.store.Nodes(), h.embedder,
		services.EmbeddingConfig{BatchSize: 2, MaxEmbedChars: 8000},
		zap.NewNop(), observability.NewCollector("test"),
	)

	done, err := small.BackfillBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, done)

	backlog, err := small.Backlog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, backlog)
}

func TestEmbeddingService_BackfillBatch_SkipsDeprecated(t *testing.T) {
	h := newHarness(t)
	live := h.mustCreateNode(t, "Live note", "content", ontology.NodeTypeNote)
	retired := h.mustCreateNode(t, "Retired note", "content", ontology.NodeTypeNote)
	_, err := h.governance.DeprecateNode(context.Background(), testOwner, retired.ID)
	require.NoError(t, err)

	done, err := h.embeddings.BackfillBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	stored, err := h.nodes.GetNode(context.Background(), testOwner, live.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasEmbedding())

	skipped, err := h.nodes.GetNode(context.Background(), testOwner, retired.ID)
	require.NoError(t, err)
	assert.False(t, skipped.HasEmbedding(), "deprecated nodes never rank, embedding them is waste")
}
