package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
)

func TestEdgeService_CreateEdge(t *testing.T) {
	h := newHarness(t)

	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)
	b := h.mustCreateNode(t, "Evidence B", "", ontology.NodeTypeEvidence)

	edge := h.mustCreateEdge(t, b.ID, a.ID, ontology.EdgeTypeSupports, 0.9)
	assert.Equal(t, ontology.StatusActive, edge.Status)
	assert.Equal(t, 0.9, edge.Weight)

	entries := h.entriesFor(t, ontology.ActionCreate)
	var edgeEntries int
	for _, entry := range entries {
		if entry.EdgeID != nil && *entry.EdgeID == edge.ID {
			edgeEntries++
		}
	}
	assert.Equal(t, 1, edgeEntries)
}

func TestEdgeService_CreateEdge_SelfLoopRejected(t *testing.T) {
	h := newHarness(t)
	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)

	_, err := h.edges.CreateEdge(context.Background(), testOwner, ontology.NewEdgeParams{
		SourceID:   a.ID,
		TargetID:   a.ID,
		Type:       ontology.EdgeTypeRelatedTo,
		Weight:     0.5,
		Provenance: ontology.UserProvenance(),
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestEdgeService_CreateEdge_WeightBounds(t *testing.T) {
	h := newHarness(t)
	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)
	b := h.mustCreateNode(t, "Claim B", "", ontology.NodeTypeClaim)

	tests := []struct {
		name    string
		weight  float64
		edgeT   ontology.EdgeType
		wantErr bool
	}{
		{"LowerBoundAccepted", 0.0, ontology.EdgeTypeRelatedTo, false},
		{"UpperBoundAccepted", 1.0, ontology.EdgeTypeSupports, false},
		{"BelowLowerRejected", -0.01, ontology.EdgeTypeRefutes, true},
		{"AboveUpperRejected", 1.01, ontology.EdgeTypeDefines, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.edges.CreateEdge(context.Background(), testOwner, ontology.NewEdgeParams{
				SourceID:   a.ID,
				TargetID:   b.ID,
				Type:       tt.edgeT,
				Weight:     tt.weight,
				Provenance: ontology.UserProvenance(),
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, appErrors.IsValidation(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEdgeService_CreateEdge_DuplicateTripleConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)
	b := h.mustCreateNode(t, "Claim B", "", ontology.NodeTypeClaim)
	original := h.mustCreateEdge(t, a.ID, b.ID, ontology.EdgeTypeSupports, 0.7)

	_, err := h.edges.CreateEdge(ctx, testOwner, ontology.NewEdgeParams{
		SourceID:   a.ID,
		TargetID:   b.ID,
		Type:       ontology.EdgeTypeSupports,
		Weight:     0.2,
		Provenance: ontology.UserProvenance(),
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsConflict(err))

	// the original is untouched
	stored, err := h.edges.GetEdge(ctx, testOwner, original.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.7, stored.Weight)

	// a different type between the same endpoints is a distinct edge
	_, err = h.edges.CreateEdge(ctx, testOwner, ontology.NewEdgeParams{
		SourceID:   a.ID,
		TargetID:   b.ID,
		Type:       ontology.EdgeTypeRelatedTo,
		Weight:     0.2,
		Provenance: ontology.UserProvenance(),
	})
	assert.NoError(t, err)
}

func TestEdgeService_CreateEdge_UnknownEndpoint(t *testing.T) {
	h := newHarness(t)
	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)

	_, err := h.edges.CreateEdge(context.Background(), testOwner, ontology.NewEdgeParams{
		SourceID:   a.ID,
		TargetID:   "missing",
		Type:       ontology.EdgeTypeSupports,
		Weight:     0.5,
		Provenance: ontology.UserProvenance(),
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestEdgeService_CreateEdge_AIForcedExperimental(t *testing.T) {
	h := newHarness(t)
	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)
	b := h.mustCreateNode(t, "Claim B", "", ontology.NodeTypeClaim)

	edge, err := h.edges.CreateEdge(context.Background(), testOwner, ontology.NewEdgeParams{
		SourceID: a.ID,
		TargetID: b.ID,
		Type:     ontology.EdgeTypeSupports,
		Weight:   0.8,
		Provenance: ontology.Provenance{
			Creator: ontology.ActorAI,
			ModelID: "test-model",
			Method:  "extract_graph",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ontology.StatusExperimental, edge.Status)
}

func TestEdgeService_UpdateEdgeType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)
	b := h.mustCreateNode(t, "Claim B", "", ontology.NodeTypeClaim)
	edge := h.mustCreateEdge(t, a.ID, b.ID, ontology.EdgeTypeRelatedTo, 0.5)

	updated, err := h.edges.UpdateEdgeType(ctx, testOwner, edge.ID, ontology.EdgeTypeSupports)
	require.NoError(t, err)
	assert.Equal(t, ontology.EdgeTypeSupports, updated.Type)

	entries := h.entriesFor(t, ontology.ActionUpdate)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].EdgeID)
	assert.Equal(t, edge.ID, *entries[0].EdgeID)
}

func TestEdgeService_UpdateEdgeType_UniquenessRechecked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)
	b := h.mustCreateNode(t, "Claim B", "", ontology.NodeTypeClaim)
	h.mustCreateEdge(t, a.ID, b.ID, ontology.EdgeTypeSupports, 0.5)
	second := h.mustCreateEdge(t, a.ID, b.ID, ontology.EdgeTypeRelatedTo, 0.5)

	// retyping second to supports would collide with the first edge
	_, err := h.edges.UpdateEdgeType(ctx, testOwner, second.ID, ontology.EdgeTypeSupports)
	require.Error(t, err)
	assert.True(t, appErrors.IsConflict(err))

	stored, err := h.edges.GetEdge(ctx, testOwner, second.ID)
	require.NoError(t, err)
	assert.Equal(t, ontology.EdgeTypeRelatedTo, stored.Type, "failed retype must leave the edge untouched")
}

func TestEdgeService_DeleteEdge_NullsLedgerReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.mustCreateNode(t, "Claim A", "", ontology.NodeTypeClaim)
	b := h.mustCreateNode(t, "Claim B", "", ontology.NodeTypeClaim)
	edge := h.mustCreateEdge(t, a.ID, b.ID, ontology.EdgeTypeSupports, 0.5)

	require.NoError(t, h.edges.DeleteEdge(ctx, testOwner, edge.ID))

	_, err := h.edges.GetEdge(ctx, testOwner, edge.ID)
	assert.True(t, appErrors.IsNotFound(err))

	for _, entry := range h.entriesFor(t, ontology.ActionCreate) {
		assert.Nil(t, entry.EdgeID)
	}
	deletes := h.entriesFor(t, ontology.ActionDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, edge.ID, deletes[0].Metadata["edge_id"])

	// endpoints survive an edge delete
	_, err = h.nodes.GetNode(ctx, testOwner, a.ID)
	assert.NoError(t, err)
}

func TestEdgeService_ListEdgesForNode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.mustCreateNode(t, "Hub", "", ontology.NodeTypeNote)
	b := h.mustCreateNode(t, "Spoke B", "", ontology.NodeTypeNote)
	c := h.mustCreateNode(t, "Spoke C", "", ontology.NodeTypeNote)
	out := h.mustCreateEdge(t, a.ID, b.ID, ontology.EdgeTypeRelatedTo, 0.5)
	in := h.mustCreateEdge(t, c.ID, a.ID, ontology.EdgeTypeSupports, 0.5)

	edges, err := h.edges.ListEdgesForNode(ctx, testOwner, a.ID, false)
	require.NoError(t, err)
	require.Len(t, edges, 2)

	ids := []string{edges[0].ID, edges[1].ID}
	assert.Contains(t, ids, out.ID)
	assert.Contains(t, ids, in.ID)
}
