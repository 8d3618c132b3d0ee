package ontology_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellis-backend/domain/ontology"
	pkgerrors "trellis-backend/pkg/errors"
)

func TestTransition_Matrix(t *testing.T) {
	cases := []struct {
		name    string
		from    ontology.Status
		to      ontology.Status
		changed bool
		err     bool
	}{
		{"ExperimentalToActive", ontology.StatusExperimental, ontology.StatusActive, true, false},
		{"ExperimentalToDeprecated", ontology.StatusExperimental, ontology.StatusDeprecated, true, false},
		{"ActiveToDeprecated", ontology.StatusActive, ontology.StatusDeprecated, true, false},
		{"ActiveToExperimental", ontology.StatusActive, ontology.StatusExperimental, false, true},
		{"DeprecatedToActive", ontology.StatusDeprecated, ontology.StatusActive, false, true},
		{"DeprecatedToExperimental", ontology.StatusDeprecated, ontology.StatusExperimental, false, true},
		{"ActiveToActive", ontology.StatusActive, ontology.StatusActive, false, false},
		{"ExperimentalToExperimental", ontology.StatusExperimental, ontology.StatusExperimental, false, false},
		{"DeprecatedToDeprecated", ontology.StatusDeprecated, ontology.StatusDeprecated, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			changed, err := ontology.Transition("node", tc.from, tc.to)
			if tc.err {
				assert.True(t, pkgerrors.IsInvalidTransition(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.changed, changed)
		})
	}
}

func TestTransition_UnknownTarget(t *testing.T) {
	_, err := ontology.Transition("node", ontology.StatusActive, ontology.Status("archived"))

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNode_TransitionTo(t *testing.T) {
	t.Run("ApproveExperimental", func(t *testing.T) {
		node, err := ontology.NewNode("user-123", ontology.NewNodeParams{
			Title: "claim",
			Type:  ontology.NodeTypeClaim,
			Provenance: ontology.Provenance{
				Creator: ontology.ActorAI,
				ModelID: "gpt-4o-mini",
			},
		})
		require.NoError(t, err)
		require.Equal(t, ontology.StatusExperimental, node.Status)

		changed, err := node.TransitionTo(ontology.StatusActive)

		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, ontology.StatusActive, node.Status)
	})

	t.Run("DeprecatedIsTerminal", func(t *testing.T) {
		node := createTestNode(t)
		_, err := node.TransitionTo(ontology.StatusDeprecated)
		require.NoError(t, err)

		_, err = node.TransitionTo(ontology.StatusActive)

		assert.True(t, pkgerrors.IsInvalidTransition(err))
		assert.Equal(t, ontology.StatusDeprecated, node.Status)
	})
}

func TestEdge_TransitionTo(t *testing.T) {
	edge := createTestEdge(t, 0.5)

	changed, err := edge.TransitionTo(ontology.StatusDeprecated)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = edge.TransitionTo(ontology.StatusActive)
	assert.True(t, pkgerrors.IsInvalidTransition(err))
}

func TestGovernanceAction(t *testing.T) {
	action, ok := ontology.GovernanceAction(ontology.StatusActive)
	require.True(t, ok)
	assert.Equal(t, ontology.ActionApprove, action)

	action, ok = ontology.GovernanceAction(ontology.StatusDeprecated)
	require.True(t, ok)
	assert.Equal(t, ontology.ActionDeprecate, action)

	_, ok = ontology.GovernanceAction(ontology.StatusExperimental)
	assert.False(t, ok)
}
