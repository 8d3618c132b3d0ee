package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/observability"
)

const answerSystemPrompt = `You are a careful research assistant answering questions from a personal knowledge graph.

Rules:
1. Answer only from the provided sources; never use outside knowledge
2. Cite sources inline as [Source N]
3. When sources conflict, acknowledge the conflict and present both sides
4. When the sources are insufficient to answer, say so plainly`

// AnswerConfig tunes the question answering pipeline
type AnswerConfig struct {
	// SimilarityThreshold for candidate retrieval; deliberately looser
	// than the search default so marginal context still reaches the model
	SimilarityThreshold float64
	// TopK caps the number of source nodes
	TopK int
	// NeighborDepth is the traversal depth around each source node
	NeighborDepth int
	// Temperature for the answer call
	Temperature float64
	// MaxCompletionTokens bounds the answer length
	MaxCompletionTokens int
}

// DefaultAnswerConfig returns the standard tuning
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		SimilarityThreshold: 0.4,
		TopK:                5,
		NeighborDepth:       1,
		Temperature:         0.3,
		MaxCompletionTokens: 2048,
	}
}

// Source is one retrieved node with its similarity and graph neighborhood,
// returned alongside the answer for client-side citation rendering
type Source struct {
	Node       *ontology.Node `json:"node"`
	Similarity float64        `json:"similarity"`
	Neighbors  []Neighbor     `json:"neighbors"`
}

// Answer is the outcome of one question
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// AnswerService runs the retrieval-augmented answering pipeline: embed the
// question, rank candidates by vector similarity, widen each candidate
// with its graph neighborhood, then ask the completion capability to
// answer from that bundle alone.
type AnswerService struct {
	retrieval *RetrievalService
	completer ports.Completer
	logs      ports.LogRepository
	model     ports.ModelRef
	cfg       AnswerConfig
	logger    *zap.Logger
	metrics   *observability.Collector
}

// NewAnswerService creates a new answer service
func NewAnswerService(
	retrieval *RetrievalService,
	completer ports.Completer,
	logs ports.LogRepository,
	model ports.ModelRef,
	cfg AnswerConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *AnswerService {
	return &AnswerService{
		retrieval: retrieval,
		completer: completer,
		logs:      logs,
		model:     model,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Ask answers a question from the owner's graph. Zero retrieval hits is
// not an error: the pipeline continues with an empty context bundle and
// the model is expected to state that evidence is insufficient. A
// capability failure is surfaced to the caller since no answer can be
// produced without it.
func (s *AnswerService) Ask(ctx context.Context, ownerID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, appErrors.NewValidationError("question is required")
	}

	scored, err := s.retrieval.SearchSemantic(ctx, ownerID, question, s.cfg.SimilarityThreshold, s.cfg.TopK)
	if err != nil {
		s.metrics.Answers.WithLabelValues("failed").Inc()
		return nil, err
	}

	sources := make([]Source, 0, len(scored))
	for _, hit := range scored {
		neighbors, err := s.retrieval.NeighborContext(ctx, ownerID, hit.Node.ID, s.cfg.NeighborDepth)
		if err != nil {
			s.metrics.Answers.WithLabelValues("failed").Inc()
			return nil, err
		}
		sources = append(sources, Source{
			Node:       hit.Node,
			Similarity: hit.Score,
			Neighbors:  neighbors,
		})
	}

	answer, err := s.completer.Complete(ctx, answerSystemPrompt, buildAnswerPrompt(sources, question), ports.CompletionOptions{
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxCompletionTokens,
	})
	if err != nil {
		s.metrics.Answers.WithLabelValues("failed").Inc()
		return nil, appErrors.NewCapabilityError("completion", err)
	}

	sourceIDs := make([]string, len(sources))
	for i, src := range sources {
		sourceIDs[i] = src.Node.ID
	}

	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionSummarize, ontology.ActorAI)
	if err == nil {
		entry.WithModel(s.model.ModelID, s.model.Version).
			WithMetadata(map[string]interface{}{
				"question":        question,
				"source_node_ids": sourceIDs,
				"source_count":    len(sourceIDs),
			})
		err = s.logs.Append(ctx, entry)
	}
	if err != nil {
		s.logger.Error("failed to record answer summary", zap.Error(err))
	}

	s.metrics.Answers.WithLabelValues("ok").Inc()
	s.logger.Info("question answered",
		zap.String("ownerID", ownerID),
		zap.Int("sourceCount", len(sources)),
	)
	return &Answer{Answer: answer, Sources: sources}, nil
}

// buildAnswerPrompt renders one block per source: title, type, similarity,
// full content, and the flattened neighbor lines. An empty bundle states
// that no sources were found.
func buildAnswerPrompt(sources []Source, question string) string {
	var b strings.Builder
	if len(sources) == 0 {
		b.WriteString("No sources were found for this question.\n\n")
	}
	for i, src := range sources {
		fmt.Fprintf(&b, "[Source %d] %s (type: %s, similarity: %.2f)\n",
			i+1, src.Node.Title, src.Node.Type, src.Similarity)
		if src.Node.Content != "" {
			fmt.Fprintf(&b, "Content: %s\n", src.Node.Content)
		}
		if len(src.Neighbors) == 0 {
			b.WriteString("Connections: none\n")
		} else {
			b.WriteString("Connections:\n")
			for _, n := range src.Neighbors {
				fmt.Fprintf(&b, "- [%s] %s (%s)\n", n.EdgeType, n.Node.Title, n.Direction)
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
