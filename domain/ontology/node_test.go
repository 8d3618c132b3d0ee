package ontology_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellis-backend/domain/ontology"
	pkgerrors "trellis-backend/pkg/errors"
)

func createTestNode(t *testing.T) *ontology.Node {
	t.Helper()
	node, err := ontology.NewNode("user-123", ontology.NewNodeParams{
		Title:      "Water boils at 100C",
		Content:    "At sea level, water boils at 100 degrees Celsius.",
		Type:       ontology.NodeTypeClaim,
		Provenance: ontology.UserProvenance(),
	})
	require.NoError(t, err)
	return node
}

func TestNode_Creation(t *testing.T) {
	// Act
	node := createTestNode(t)

	// Assert
	assert.NotEmpty(t, node.ID)
	assert.Equal(t, "user-123", node.OwnerID)
	assert.Equal(t, ontology.NodeTypeClaim, node.Type)
	assert.Equal(t, ontology.StatusActive, node.Status)
	assert.Equal(t, 9, node.WordCount)
	assert.Equal(t, node.CreatedAt, node.UpdatedAt)
	assert.False(t, node.HasEmbedding())
}

func TestNode_Creation_Validation(t *testing.T) {
	t.Run("EmptyOwner", func(t *testing.T) {
		_, err := ontology.NewNode("", ontology.NewNodeParams{
			Title:      "title",
			Type:       ontology.NodeTypeNote,
			Provenance: ontology.UserProvenance(),
		})
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := ontology.NewNode("user-123", ontology.NewNodeParams{
			Title:      "title",
			Type:       ontology.NodeType("idea"),
			Provenance: ontology.UserProvenance(),
		})
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("EmptyTitleAndContent", func(t *testing.T) {
		_, err := ontology.NewNode("user-123", ontology.NewNodeParams{
			Type:       ontology.NodeTypeNote,
			Provenance: ontology.UserProvenance(),
		})
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("ContentTooLong", func(t *testing.T) {
		_, err := ontology.NewNode("user-123", ontology.NewNodeParams{
			Title:      "title",
			Content:    strings.Repeat("a", ontology.MaxContentLength+1),
			Type:       ontology.NodeTypeNote,
			Provenance: ontology.UserProvenance(),
		})
		assert.True(t, pkgerrors.IsValidation(err))
	})
}

func TestNode_TitleDerivedFromContent(t *testing.T) {
	long := strings.Repeat("word ", 30)
	node, err := ontology.NewNode("user-123", ontology.NewNodeParams{
		Content:    long,
		Type:       ontology.NodeTypeNote,
		Provenance: ontology.UserProvenance(),
	})

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(node.Title, "..."))
	assert.LessOrEqual(t, len([]rune(node.Title)), 53)
}

func TestNode_AICreationForcedExperimental(t *testing.T) {
	node, err := ontology.NewNode("user-123", ontology.NewNodeParams{
		Title: "Extracted claim",
		Type:  ontology.NodeTypeClaim,
		Provenance: ontology.Provenance{
			Creator: ontology.ActorAI,
			ModelID: "gpt-4o-mini",
			Method:  "extract_graph",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, ontology.StatusExperimental, node.Status)
}

func TestNode_AIProvenanceRequiresModel(t *testing.T) {
	_, err := ontology.NewNode("user-123", ontology.NewNodeParams{
		Title:      "Extracted claim",
		Type:       ontology.NodeTypeClaim,
		Provenance: ontology.Provenance{Creator: ontology.ActorAI},
	})

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNode_ConfidenceBounds(t *testing.T) {
	tooHigh := 1.2
	_, err := ontology.NewNode("user-123", ontology.NewNodeParams{
		Title: "claim",
		Type:  ontology.NodeTypeClaim,
		Provenance: ontology.Provenance{
			Creator:    ontology.ActorAI,
			ModelID:    "gpt-4o-mini",
			Confidence: &tooHigh,
		},
	})

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNode_ApplyUpdate(t *testing.T) {
	t.Run("ContentChangeRecomputesWordCountAndClearsEmbedding", func(t *testing.T) {
		node := createTestNode(t)
		node.Embedding = []float32{0.1, 0.2, 0.3}

		content := "Shorter now."
		changed, err := node.ApplyUpdate(ontology.NodeUpdate{Content: &content})

		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 2, node.WordCount)
		assert.False(t, node.HasEmbedding())
	})

	t.Run("TitleOnlyChangeKeepsEmbedding", func(t *testing.T) {
		node := createTestNode(t)
		node.Embedding = []float32{0.1, 0.2, 0.3}

		title := "Boiling point of water"
		changed, err := node.ApplyUpdate(ontology.NodeUpdate{Title: &title})

		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, node.HasEmbedding())
	})

	t.Run("NoEffectiveChange", func(t *testing.T) {
		node := createTestNode(t)

		title := node.Title
		changed, err := node.ApplyUpdate(ontology.NodeUpdate{Title: &title})

		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("EmptyTitleRejected", func(t *testing.T) {
		node := createTestNode(t)

		title := "   "
		_, err := node.ApplyUpdate(ontology.NodeUpdate{Title: &title})

		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("UnknownTypeRejected", func(t *testing.T) {
		node := createTestNode(t)

		bad := ontology.NodeType("thought")
		_, err := node.ApplyUpdate(ontology.NodeUpdate{Type: &bad})

		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("TagsDeduplicated", func(t *testing.T) {
		node := createTestNode(t)

		changed, err := node.ApplyUpdate(ontology.NodeUpdate{Tags: []string{"physics", "physics", " ", "water"}})

		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []string{"physics", "water"}, node.Tags)
	})
}

func TestNode_Snapshot(t *testing.T) {
	node := createTestNode(t)

	snap := node.Snapshot()

	assert.Contains(t, string(snap), `"title":"Water boils at 100C"`)
	assert.Contains(t, string(snap), `"status":"active"`)
}
