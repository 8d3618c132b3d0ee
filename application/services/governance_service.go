package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/observability"
)

const linkSuggestMethod = "link_suggest"

const linkSuggestSystemPrompt = `You propose typed relationships between notes in a personal knowledge graph.

Return a JSON array with exactly this structure:
[{"target_node_id": "...", "type": "supports", "weight": 0.8}]

Rules:
1. Propose a link only when the source note and the candidate are clearly related
2. target_node_id must be one of the candidate ids exactly as given
3. Relationship types: related_to, supports, refutes, defines, caused_by, derived_from, example_of, part_of
4. weight is 0.0-1.0 relationship strength
5. Return only JSON, no commentary; return [] when nothing is related`

type linkProposal struct {
	TargetNodeID string  `json:"target_node_id"`
	Type         string  `json:"type"`
	Weight       float64 `json:"weight"`
}

// LinkSuggestionReport is the structured outcome of a suggestion run.
// Rejected proposals (duplicates, unknown targets, invalid weights) are
// skipped and reflected in the counts, never fatal.
type LinkSuggestionReport struct {
	Proposed int              `json:"proposed"`
	Created  int              `json:"created"`
	Edges    []*ontology.Edge `json:"edges"`
}

// GovernanceConfig tunes link suggestion
type GovernanceConfig struct {
	// SuggestThreshold for candidate retrieval
	SuggestThreshold float64
	// SuggestCandidates caps how many candidates reach the model
	SuggestCandidates int
	// Temperature for the proposal call
	Temperature float64
	// MaxCompletionTokens bounds the proposal response
	MaxCompletionTokens int
}

// DefaultGovernanceConfig returns the standard tuning
func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		SuggestThreshold:    0.4,
		SuggestCandidates:   10,
		Temperature:         0.2,
		MaxCompletionTokens: 2048,
	}
}

// GovernanceService owns lifecycle transitions and AI link suggestion.
// Transitions are idempotent-safe: requesting the state an entity is
// already in succeeds without writing a ledger entry; only state changes
// are audited.
type GovernanceService struct {
	nodes     ports.NodeRepository
	edges     ports.EdgeRepository
	logs      ports.LogRepository
	retrieval *RetrievalService
	completer ports.Completer
	model     ports.ModelRef
	cfg       GovernanceConfig
	logger    *zap.Logger
	metrics   *observability.Collector
}

// NewGovernanceService creates a new governance service
func NewGovernanceService(
	nodes ports.NodeRepository,
	edges ports.EdgeRepository,
	logs ports.LogRepository,
	retrieval *RetrievalService,
	completer ports.Completer,
	model ports.ModelRef,
	cfg GovernanceConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *GovernanceService {
	return &GovernanceService{
		nodes:     nodes,
		edges:     edges,
		logs:      logs,
		retrieval: retrieval,
		completer: completer,
		model:     model,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// ApproveNode promotes an experimental node to active
func (s *GovernanceService) ApproveNode(ctx context.Context, ownerID, nodeID string) (*ontology.Node, error) {
	return s.transitionNode(ctx, ownerID, nodeID, ontology.StatusActive)
}

// DeprecateNode retires a node; deprecated is terminal
func (s *GovernanceService) DeprecateNode(ctx context.Context, ownerID, nodeID string) (*ontology.Node, error) {
	return s.transitionNode(ctx, ownerID, nodeID, ontology.StatusDeprecated)
}

// ApproveEdge promotes an experimental edge to active
func (s *GovernanceService) ApproveEdge(ctx context.Context, ownerID, edgeID string) (*ontology.Edge, error) {
	return s.transitionEdgeStatus(ctx, ownerID, edgeID, ontology.StatusActive)
}

// DeprecateEdge retires an edge; deprecated is terminal
func (s *GovernanceService) DeprecateEdge(ctx context.Context, ownerID, edgeID string) (*ontology.Edge, error) {
	return s.transitionEdgeStatus(ctx, ownerID, edgeID, ontology.StatusDeprecated)
}

func (s *GovernanceService) transitionNode(ctx context.Context, ownerID, nodeID string, target ontology.Status) (*ontology.Node, error) {
	node, err := s.nodes.GetByID(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}

	changed, err := ontology.Transition("node", node.Status, target)
	if err != nil {
		return nil, err
	}
	if !changed {
		return node, nil
	}

	action, ok := ontology.GovernanceAction(target)
	if !ok {
		return nil, appErrors.NewValidationError("no governance action leads to status " + string(target))
	}

	before := node.Snapshot()
	from := node.Status
	node.Status = target
	node.UpdatedAt = time.Now()

	entry, err := ontology.NewLogEntry(ownerID, action, ontology.ActorUser)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s log entry: %w", action, err)
	}
	entry.WithNode(nodeID).WithSnapshots(before, node.Snapshot())

	applied, err := s.nodes.UpdateStatus(ctx, ownerID, nodeID, from, target, entry)
	if err != nil {
		return nil, err
	}
	if !applied {
		// lost a race; re-read and judge the transition from current state
		current, err := s.nodes.GetByID(ctx, ownerID, nodeID)
		if err != nil {
			return nil, err
		}
		if current.Status == target {
			return current, nil
		}
		if _, terr := ontology.Transition("node", current.Status, target); terr != nil {
			return nil, terr
		}
		return nil, appErrors.NewConflictError("node was concurrently modified")
	}

	s.logger.Info("node transitioned",
		zap.String("nodeID", nodeID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	return node, nil
}

func (s *GovernanceService) transitionEdgeStatus(ctx context.Context, ownerID, edgeID string, target ontology.Status) (*ontology.Edge, error) {
	edge, err := s.edges.GetByID(ctx, ownerID, edgeID)
	if err != nil {
		return nil, err
	}

	changed, err := ontology.Transition("edge", edge.Status, target)
	if err != nil {
		return nil, err
	}
	if !changed {
		return edge, nil
	}

	action, ok := ontology.GovernanceAction(target)
	if !ok {
		return nil, appErrors.NewValidationError("no governance action leads to status " + string(target))
	}

	before := edge.Snapshot()
	from := edge.Status
	edge.Status = target
	edge.UpdatedAt = time.Now()

	entry, err := ontology.NewLogEntry(ownerID, action, ontology.ActorUser)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s log entry: %w", action, err)
	}
	entry.WithEdge(edgeID).WithSnapshots(before, edge.Snapshot())

	applied, err := s.edges.UpdateStatus(ctx, ownerID, edgeID, from, target, entry)
	if err != nil {
		return nil, err
	}
	if !applied {
		current, err := s.edges.GetByID(ctx, ownerID, edgeID)
		if err != nil {
			return nil, err
		}
		if current.Status == target {
			return current, nil
		}
		if _, terr := ontology.Transition("edge", current.Status, target); terr != nil {
			return nil, terr
		}
		return nil, appErrors.NewConflictError("edge was concurrently modified")
	}

	s.logger.Info("edge transitioned",
		zap.String("edgeID", edgeID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	return edge, nil
}

// SuggestLinks retrieves candidates similar to the node, asks the
// reasoning capability to propose typed relationships, and creates each
// accepted proposal as an experimental edge. One link_suggest ledger entry
// summarizes proposed versus created.
func (s *GovernanceService) SuggestLinks(ctx context.Context, ownerID, nodeID string) (*LinkSuggestionReport, error) {
	node, err := s.nodes.GetByID(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.findCandidates(ctx, ownerID, node)
	if err != nil {
		return nil, err
	}

	report := &LinkSuggestionReport{Edges: []*ontology.Edge{}}
	if len(candidates) > 0 {
		raw, err := s.completer.Complete(ctx, linkSuggestSystemPrompt, buildLinkSuggestPrompt(node, candidates), ports.CompletionOptions{
			Temperature: s.cfg.Temperature,
			MaxTokens:   s.cfg.MaxCompletionTokens,
			ForceJSON:   true,
		})
		if err != nil {
			return nil, appErrors.NewCapabilityError("completion", err)
		}
		proposals, err := parseLinkProposals(raw)
		if err != nil {
			return nil, appErrors.NewCapabilityError("completion", err)
		}
		report.Proposed = len(proposals)

		allowed := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			allowed[c.Node.ID] = true
		}
		for _, proposal := range proposals {
			edge, createErr := s.createSuggestedEdge(ctx, ownerID, node, proposal, allowed)
			if createErr != nil {
				s.logger.Warn("link suggestion skipped",
					zap.String("target", proposal.TargetNodeID),
					zap.Error(createErr),
				)
				continue
			}
			report.Edges = append(report.Edges, edge)
		}
	}
	report.Created = len(report.Edges)

	edgeIDs := make([]string, len(report.Edges))
	for i, e := range report.Edges {
		edgeIDs[i] = e.ID
	}
	summary, err := ontology.NewLogEntry(ownerID, ontology.ActionLinkSuggest, ontology.ActorAI)
	if err == nil {
		summary.WithNode(nodeID).
			WithModel(s.model.ModelID, s.model.Version).
			WithMetadata(map[string]interface{}{
				"proposed": report.Proposed,
				"created":  report.Created,
				"edge_ids": edgeIDs,
			})
		err = s.logs.Append(ctx, summary)
	}
	if err != nil {
		s.logger.Error("failed to record link suggestion summary", zap.Error(err))
	}

	s.logger.Info("link suggestion finished",
		zap.String("nodeID", nodeID),
		zap.Int("proposed", report.Proposed),
		zap.Int("created", report.Created),
	)
	return report, nil
}

// findCandidates prefers vector similarity when the node has an embedding
// and falls back to lexical similarity otherwise. The node itself never
// counts as a candidate.
func (s *GovernanceService) findCandidates(ctx context.Context, ownerID string, node *ontology.Node) ([]ports.ScoredNode, error) {
	var (
		scored []ports.ScoredNode
		err    error
	)
	if node.HasEmbedding() {
		scored, err = s.retrieval.SearchByVector(ctx, ownerID, node.Embedding, s.cfg.SuggestThreshold, s.cfg.SuggestCandidates+1)
	} else {
		query := strings.TrimSpace(node.Title + " " + truncateRunes(node.Content, 500))
		scored, err = s.retrieval.SearchByText(ctx, ownerID, query, s.cfg.SuggestCandidates+1)
	}
	if err != nil {
		return nil, err
	}

	candidates := make([]ports.ScoredNode, 0, len(scored))
	for _, hit := range scored {
		if hit.Node.ID == node.ID {
			continue
		}
		candidates = append(candidates, hit)
		if len(candidates) == s.cfg.SuggestCandidates {
			break
		}
	}
	return candidates, nil
}

func (s *GovernanceService) createSuggestedEdge(ctx context.Context, ownerID string, node *ontology.Node, proposal linkProposal, allowed map[string]bool) (*ontology.Edge, error) {
	if !allowed[proposal.TargetNodeID] {
		return nil, appErrors.NewValidationError("proposed target is not one of the candidates")
	}
	edgeType, err := ontology.ParseEdgeType(strings.ToLower(proposal.Type))
	if err != nil {
		return nil, err
	}
	edge, err := ontology.NewEdge(ownerID, ontology.NewEdgeParams{
		SourceID: node.ID,
		TargetID: proposal.TargetNodeID,
		Type:     edgeType,
		Weight:   proposal.Weight,
		Provenance: ontology.Provenance{
			Creator:      ontology.ActorAI,
			ModelID:      s.model.ModelID,
			ModelVersion: s.model.Version,
			SourceNodeID: node.ID,
			Method:       linkSuggestMethod,
		},
	})
	if err != nil {
		return nil, err
	}

	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionCreate, ontology.ActorAI)
	if err != nil {
		return nil, err
	}
	entry.WithEdge(edge.ID).
		WithModel(s.model.ModelID, s.model.Version).
		WithSnapshots(nil, edge.Snapshot())

	if err := s.edges.Create(ctx, edge, entry); err != nil {
		return nil, err
	}
	s.metrics.EdgesCreated.Inc()
	return edge, nil
}

func buildLinkSuggestPrompt(node *ontology.Node, candidates []ports.ScoredNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source note:\nTitle: %s\nType: %s\n", node.Title, node.Type)
	if node.Content != "" {
		fmt.Fprintf(&b, "Content: %s\n", truncateRunes(node.Content, 2000))
	}
	b.WriteString("\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id: %s, title: %s, type: %s\n", c.Node.ID, c.Node.Title, c.Node.Type)
		if c.Node.Content != "" {
			fmt.Fprintf(&b, "  excerpt: %s\n", truncateRunes(c.Node.Content, 300))
		}
	}
	return b.String()
}

func parseLinkProposals(raw string) ([]linkProposal, error) {
	cleaned := stripJSONFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.DisallowUnknownFields()

	var proposals []linkProposal
	if err := dec.Decode(&proposals); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON array")
	}
	return proposals, nil
}
