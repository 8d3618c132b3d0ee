package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
)

func TestAnswerService_Ask_BundlesSourcesAndNeighbors(t *testing.T) {
	h := newHarness(t)
	fact := h.mustCreateNode(t, "Boiling point of water", "Water boils at 100C at sea level.", ontology.NodeTypeClaim)
	evidence := h.mustCreateNode(t, "Lab measurement", "Thermometer read 100C at a rolling boil.", ontology.NodeTypeEvidence)
	other := h.mustCreateNode(t, "Coffee ritual", "Grind fresh beans every morning.", ontology.NodeTypeNote)
	h.mustEmbed(t, fact.ID, []float32{1, 0, 0})
	h.mustEmbed(t, evidence.ID, []float32{0.9, 0.1, 0})
	h.mustEmbed(t, other.ID, []float32{0, 1, 0})
	h.mustCreateEdge(t, evidence.ID, fact.ID, ontology.EdgeTypeSupports, 0.9)

	h.embedder.vectors = map[string][]float32{"At what temperature does water boil?": {1, 0, 0}}
	h.completer.response = "Water boils at 100C at sea level. [Source 1]"

	answer, err := h.answers.Ask(context.Background(), testOwner, "At what temperature does water boil?")
	require.NoError(t, err)

	assert.Equal(t, "Water boils at 100C at sea level. [Source 1]", answer.Answer)
	require.Len(t, answer.Sources, 2, "the orthogonal note is below threshold")
	assert.Equal(t, fact.ID, answer.Sources[0].Node.ID, "sources keep similarity order")
	assert.Equal(t, evidence.ID, answer.Sources[1].Node.ID)

	// the top source carries its incoming supports edge as context
	require.Len(t, answer.Sources[0].Neighbors, 1)
	assert.Equal(t, evidence.ID, answer.Sources[0].Neighbors[0].Node.ID)
	assert.Equal(t, ontology.EdgeTypeSupports, answer.Sources[0].Neighbors[0].EdgeType)

	prompt := h.completer.lastUser
	assert.Contains(t, prompt, "[Source 1] Boiling point of water (type: claim, similarity: 1.00)")
	assert.Contains(t, prompt, "Content: Water boils at 100C at sea level.")
	assert.Contains(t, prompt, "- [supports] Lab measurement (incoming)")
	assert.Contains(t, prompt, "Question: At what temperature does water boil?")
	assert.NotContains(t, prompt, "Coffee ritual")

	summaries := h.entriesFor(t, ontology.ActionSummarize)
	require.Len(t, summaries, 1)
	assert.Equal(t, ontology.ActorAI, summaries[0].Actor)
	assert.Equal(t, "At what temperature does water boil?", summaries[0].Metadata["question"])
	assert.Equal(t, 2, summaries[0].Metadata["source_count"])
}

func TestAnswerService_Ask_ZeroHitsStillAnswers(t *testing.T) {
	h := newHarness(t)
	h.completer.response = "I do not have enough information to answer this."

	answer, err := h.answers.Ask(context.Background(), testOwner, "What is the meaning of life?")
	require.NoError(t, err, "an empty graph is not an error")

	assert.Equal(t, "I do not have enough information to answer this.", answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Contains(t, h.completer.lastUser, "No sources were found for this question.")

	summaries := h.entriesFor(t, ontology.ActionSummarize)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, summaries[0].Metadata["source_count"])
}

func TestAnswerService_Ask_EmptyQuestionRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.answers.Ask(context.Background(), testOwner, "  ")
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	assert.Zero(t, h.completer.calls)
	assert.Zero(t, h.embedder.calls)
}

func TestAnswerService_Ask_EmbedderFailureSurfaced(t *testing.T) {
	h := newHarness(t)
	h.embedder.err = errors.New("provider unreachable")

	_, err := h.answers.Ask(context.Background(), testOwner, "anything")
	require.Error(t, err)
	assert.True(t, appErrors.IsCapability(err))
	assert.Zero(t, h.completer.calls)
}

func TestAnswerService_Ask_CompletionFailureSurfaced(t *testing.T) {
	h := newHarness(t)
	h.completer.err = errors.New("rate limited")

	_, err := h.answers.Ask(context.Background(), testOwner, "anything")
	require.Error(t, err)
	assert.True(t, appErrors.IsCapability(err))
	assert.Empty(t, h.entriesFor(t, ontology.ActionSummarize), "no summary entry for a failed answer")
}
