package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/observability"
)

// Extraction batch states. Every run ends committed or failed; analyzed is
// the intermediate state after the reasoning capability returned a payload
// that validated against the schema.
const (
	ExtractionSubmitted = "submitted"
	ExtractionAnalyzed  = "analyzed"
	ExtractionCommitted = "committed"
	ExtractionFailed    = "failed"
)

const extractionMethod = "extract_graph"

const extractionSystemPrompt = `You are a knowledge extraction engine. Decompose the user's text into atomic claims, the relationships between them, and the entities they mention.

Return a single JSON object with exactly this structure:
{
  "claims": [{"text": "...", "type": "claim", "confidence": 0.9}],
  "relationships": [{"source_index": 0, "target_index": 1, "type": "supports", "weight": 0.8}],
  "entities": [{"name": "...", "type": "person"}]
}

Rules:
1. Each claim is one atomic statement taken from the text
2. Claim types: claim, evidence, definition, source
3. confidence is 0.0-1.0 and reflects how strongly the text commits to the statement
4. source_index and target_index are positions in the claims array
5. Relationship types: related_to, supports, refutes, defines, caused_by, derived_from, example_of, part_of
6. weight is 0.0-1.0 relationship strength
7. Entity types: person, source, definition
8. Return only JSON, no commentary`

// claimNodeTypes and entityNodeTypes restrict what the reasoning
// capability may create; anything outside these sets is skipped.
var claimNodeTypes = map[string]ontology.NodeType{
	"claim":      ontology.NodeTypeClaim,
	"evidence":   ontology.NodeTypeEvidence,
	"definition": ontology.NodeTypeDefinition,
	"source":     ontology.NodeTypeSource,
}

var entityNodeTypes = map[string]ontology.NodeType{
	"person":     ontology.NodeTypePerson,
	"source":     ontology.NodeTypeSource,
	"definition": ontology.NodeTypeDefinition,
}

type extractedClaim struct {
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
}

type extractedRelationship struct {
	SourceIndex int     `json:"source_index"`
	TargetIndex int     `json:"target_index"`
	Type        string  `json:"type"`
	Weight      float64 `json:"weight"`
}

type extractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type extractionPayload struct {
	Claims        []extractedClaim        `json:"claims"`
	Relationships []extractedRelationship `json:"relationships"`
	Entities      []extractedEntity       `json:"entities"`
}

// ExtractionInput is one extraction request
type ExtractionInput struct {
	Text         string
	SourceNodeID string
}

// ExtractionReport is the structured outcome of a run. A committed run
// with skipped items is a success with counts, never an error.
type ExtractionReport struct {
	Status                string   `json:"status"`
	Reason                string   `json:"reason,omitempty"`
	ProposedClaims        int      `json:"proposed_claims"`
	ProposedRelationships int      `json:"proposed_relationships"`
	ProposedEntities      int      `json:"proposed_entities"`
	NodesCreated          int      `json:"nodes_created"`
	EdgesCreated          int      `json:"edges_created"`
	NodeIDs               []string `json:"node_ids"`
	EdgeIDs               []string `json:"edge_ids"`
}

// ExtractionConfig tunes the pipeline
type ExtractionConfig struct {
	// Temperature for the decomposition call; low keeps output parseable
	Temperature float64
	// MaxCompletionTokens bounds the reasoning response
	MaxCompletionTokens int
}

// DefaultExtractionConfig returns the standard tuning
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{Temperature: 0.2, MaxCompletionTokens: 4096}
}

// ExtractionService turns free text into experimental graph structure.
// One run moves submitted -> analyzed -> committed | failed; item-level
// problems inside the commit phase are skipped and counted, not fatal.
type ExtractionService struct {
	nodes     ports.NodeRepository
	edges     ports.EdgeRepository
	logs      ports.LogRepository
	completer ports.Completer
	model     ports.ModelRef
	cfg       ExtractionConfig
	logger    *zap.Logger
	metrics   *observability.Collector
}

// NewExtractionService creates a new extraction service
func NewExtractionService(
	nodes ports.NodeRepository,
	edges ports.EdgeRepository,
	logs ports.LogRepository,
	completer ports.Completer,
	model ports.ModelRef,
	cfg ExtractionConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *ExtractionService {
	return &ExtractionService{
		nodes:     nodes,
		edges:     edges,
		logs:      logs,
		completer: completer,
		model:     model,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run executes one extraction. A capability failure or malformed payload
// is a failed terminal state returned as a report, not an error; caller
// errors (empty text, unknown source node) are returned as errors before
// anything runs.
func (s *ExtractionService) Run(ctx context.Context, ownerID string, input ExtractionInput) (*ExtractionReport, error) {
	if ownerID == "" {
		return nil, appErrors.NewValidationError("owner id is required")
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, appErrors.NewValidationError("text is required")
	}
	if input.SourceNodeID != "" {
		if _, err := s.nodes.GetByID(ctx, ownerID, input.SourceNodeID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("extraction submitted",
		zap.String("ownerID", ownerID),
		zap.Int("textLength", len(input.Text)),
		zap.String("sourceNodeID", input.SourceNodeID),
	)

	raw, err := s.completer.Complete(ctx, extractionSystemPrompt, input.Text, ports.CompletionOptions{
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxCompletionTokens,
		ForceJSON:   true,
	})
	if err != nil {
		return s.fail(fmt.Sprintf("reasoning capability failed: %v", err)), nil
	}

	payload, err := parseExtractionPayload(raw)
	if err != nil {
		return s.fail(fmt.Sprintf("malformed extraction output: %v", err)), nil
	}

	s.logger.Debug("extraction analyzed",
		zap.Int("claims", len(payload.Claims)),
		zap.Int("relationships", len(payload.Relationships)),
		zap.Int("entities", len(payload.Entities)),
	)

	report := s.commit(ctx, ownerID, input, payload)
	s.metrics.Extractions.WithLabelValues(report.Status).Inc()
	return report, nil
}

func (s *ExtractionService) fail(reason string) *ExtractionReport {
	s.logger.Warn("extraction failed", zap.String("reason", reason))
	s.metrics.Extractions.WithLabelValues(ExtractionFailed).Inc()
	return &ExtractionReport{
		Status:  ExtractionFailed,
		Reason:  reason,
		NodeIDs: []string{},
		EdgeIDs: []string{},
	}
}

// commit creates nodes for claims and entities, then edges for the
// relationships whose endpoints both resolved to created nodes. Item
// failures are skipped; the summary ledger entry records proposed versus
// created counts regardless.
func (s *ExtractionService) commit(ctx context.Context, ownerID string, input ExtractionInput, payload *extractionPayload) *ExtractionReport {
	report := &ExtractionReport{
		Status:                ExtractionCommitted,
		ProposedClaims:        len(payload.Claims),
		ProposedRelationships: len(payload.Relationships),
		ProposedEntities:      len(payload.Entities),
		NodeIDs:               []string{},
		EdgeIDs:               []string{},
	}

	indexToNode := make(map[int]string, len(payload.Claims))
	for i, claim := range payload.Claims {
		nodeType, ok := claimNodeTypes[strings.ToLower(claim.Type)]
		if !ok {
			s.logger.Warn("claim skipped: unknown type", zap.String("type", claim.Type))
			continue
		}
		id, createErr := s.createNode(ctx, ownerID, ontology.NewNodeParams{
			Content:    claim.Text,
			Type:       nodeType,
			Provenance: s.provenance(input.SourceNodeID, claim.Confidence),
		})
		if createErr != nil {
			s.logger.Warn("claim node skipped", zap.Int("index", i), zap.Error(createErr))
			continue
		}
		indexToNode[i] = id
		report.NodeIDs = append(report.NodeIDs, id)
	}

	for _, entity := range payload.Entities {
		nodeType, ok := entityNodeTypes[strings.ToLower(entity.Type)]
		if !ok {
			s.logger.Warn("entity skipped: unknown type", zap.String("type", entity.Type))
			continue
		}
		id, createErr := s.createNode(ctx, ownerID, ontology.NewNodeParams{
			Title:      entity.Name,
			Type:       nodeType,
			Provenance: s.provenance(input.SourceNodeID, nil),
		})
		if createErr != nil {
			s.logger.Warn("entity node skipped", zap.String("name", entity.Name), zap.Error(createErr))
			continue
		}
		report.NodeIDs = append(report.NodeIDs, id)
	}

	for _, rel := range payload.Relationships {
		sourceID, okSource := indexToNode[rel.SourceIndex]
		targetID, okTarget := indexToNode[rel.TargetIndex]
		if !okSource || !okTarget || sourceID == targetID {
			s.logger.Debug("relationship skipped: unresolved or identical endpoints",
				zap.Int("sourceIndex", rel.SourceIndex),
				zap.Int("targetIndex", rel.TargetIndex),
			)
			continue
		}
		edgeType, parseErr := ontology.ParseEdgeType(strings.ToLower(rel.Type))
		if parseErr != nil {
			s.logger.Warn("relationship skipped: unknown type", zap.String("type", rel.Type))
			continue
		}
		edge, newErr := ontology.NewEdge(ownerID, ontology.NewEdgeParams{
			SourceID:   sourceID,
			TargetID:   targetID,
			Type:       edgeType,
			Weight:     rel.Weight,
			Provenance: s.provenance(input.SourceNodeID, nil),
		})
		if newErr != nil {
			s.logger.Warn("relationship skipped", zap.Error(newErr))
			continue
		}
		entry, logErr := ontology.NewLogEntry(ownerID, ontology.ActionCreate, ontology.ActorAI)
		if logErr != nil {
			s.logger.Warn("relationship skipped", zap.Error(logErr))
			continue
		}
		entry.WithEdge(edge.ID).
			WithModel(s.model.ModelID, s.model.Version).
			WithSnapshots(nil, edge.Snapshot())
		if createErr := s.edges.Create(ctx, edge, entry); createErr != nil {
			s.logger.Warn("relationship edge skipped", zap.Error(createErr))
			continue
		}
		s.metrics.EdgesCreated.Inc()
		report.EdgeIDs = append(report.EdgeIDs, edge.ID)
	}

	report.NodesCreated = len(report.NodeIDs)
	report.EdgesCreated = len(report.EdgeIDs)

	summary, err := ontology.NewLogEntry(ownerID, ontology.ActionExtractGraph, ontology.ActorAI)
	if err == nil {
		summary.WithModel(s.model.ModelID, s.model.Version).
			WithMetadata(map[string]interface{}{
				"claims_proposed":        report.ProposedClaims,
				"relationships_proposed": report.ProposedRelationships,
				"entities_proposed":      report.ProposedEntities,
				"nodes_created":          report.NodesCreated,
				"edges_created":          report.EdgesCreated,
				"node_ids":               report.NodeIDs,
				"edge_ids":               report.EdgeIDs,
			})
		if input.SourceNodeID != "" {
			summary.WithNode(input.SourceNodeID)
		}
		err = s.logs.Append(ctx, summary)
	}
	if err != nil {
		s.logger.Error("failed to record extraction summary", zap.Error(err))
	}

	s.logger.Info("extraction committed",
		zap.Int("nodesCreated", report.NodesCreated),
		zap.Int("edgesCreated", report.EdgesCreated),
		zap.Int("claimsProposed", report.ProposedClaims),
		zap.Int("relationshipsProposed", report.ProposedRelationships),
	)
	return report
}

func (s *ExtractionService) createNode(ctx context.Context, ownerID string, params ontology.NewNodeParams) (string, error) {
	node, err := ontology.NewNode(ownerID, params)
	if err != nil {
		return "", err
	}
	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionCreate, ontology.ActorAI)
	if err != nil {
		return "", err
	}
	entry.WithNode(node.ID).
		WithModel(s.model.ModelID, s.model.Version).
		WithSnapshots(nil, node.Snapshot())
	if err := s.nodes.Create(ctx, node, entry); err != nil {
		return "", err
	}
	s.metrics.NodesCreated.Inc()
	return node.ID, nil
}

func (s *ExtractionService) provenance(sourceNodeID string, confidence *float64) ontology.Provenance {
	return ontology.Provenance{
		Creator:      ontology.ActorAI,
		ModelID:      s.model.ModelID,
		ModelVersion: s.model.Version,
		SourceNodeID: sourceNodeID,
		Confidence:   confidence,
		Method:       extractionMethod,
	}
}

// parseExtractionPayload validates the capability output against the
// schema: fences stripped, unknown fields rejected, nothing after the
// object. Anything that does not decode is malformed, never coerced.
func parseExtractionPayload(raw string) (*extractionPayload, error) {
	cleaned := stripJSONFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.DisallowUnknownFields()

	var payload extractionPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return &payload, nil
}

// stripJSONFences removes markdown code fences some providers wrap
// around JSON output
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
