package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lumen-tools/engram/internal/chunker"
	"github.com/lumen-tools/engram/internal/store"
)

// IngestPRD chunks a requirements document and atomically replaces any prior
// chunks stored under the same prdID. Chunks are embedded when the provider
// is up. Returns the number of chunks stored.
func (e *Engine) IngestPRD(ctx context.Context, prdID, fileName, content string) (int, error) {
	if prdID == "" {
		return 0, fmt.Errorf("prd id required")
	}

	pieces := chunker.Chunk(content, chunker.DefaultMaxChunkSize)
	chunks := make([]store.PRDChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = store.PRDChunk{
			ID:        store.NewID(),
			Section:   p.Section,
			Content:   p.Content,
			ChunkType: p.Type,
			Embedding: e.Provider.Embed(ctx, p.Content),
			FileName:  fileName,
		}
	}

	if err := e.DB.ReplacePRDChunks(prdID, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// PRDContext is a token-budgeted markdown context window.
type PRDContext struct {
	Context      string  `json:"context"`
	TopRelevance float64 `json:"top_relevance"`
	ChunksUsed   int     `json:"chunks_used"`
}

// minSimilarity is the relevance floor for context inclusion. Chunks below
// it are admitted only while fewer than minSections distinct sections are
// present, so a poor match still yields some context without drowning a
// good one in noise.
const (
	minSimilarity = 0.1
	minSections   = 3
)

// GetPRDContext ranks stored chunks against the query and greedily assembles
// a markdown context string within maxTokens (4 chars per token heuristic).
// Chunks whose similarity is within 0.1 of each other are ordered by chunk
// type: constraints and criteria come first. Returns nil when no chunks
// exist for the given scope.
func (e *Engine) GetPRDContext(ctx context.Context, query string, maxTokens int, prdID string) (*PRDContext, error) {
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	chunks, err := e.DB.ListPRDChunks(prdID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	queryVec := e.Provider.Embed(ctx, query)

	type scored struct {
		chunk      store.PRDChunk
		similarity float64
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		var sim float64
		if queryVec != nil && len(c.Embedding) > 0 {
			sim = CosineSimilarity(queryVec, c.Embedding)
		} else {
			sim = LexicalScore(query, c.Content)
		}
		ranked[i] = scored{chunk: c, similarity: sim}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if math.Abs(ranked[i].similarity-ranked[j].similarity) <= 0.1 {
			return chunker.TypePriority(ranked[i].chunk.ChunkType) < chunker.TypePriority(ranked[j].chunk.ChunkType)
		}
		return ranked[i].similarity > ranked[j].similarity
	})

	charBudget := maxTokens * 4
	var b strings.Builder
	seenSections := make(map[string]bool)
	used := 0
	topRelevance := 0.0

	for _, r := range ranked {
		if r.similarity < minSimilarity && len(seenSections) >= minSections {
			continue
		}

		var piece strings.Builder
		if !seenSections[r.chunk.Section] {
			piece.WriteString("### " + r.chunk.Section + "\n\n")
		}
		piece.WriteString(r.chunk.Content + "\n\n")

		if b.Len()+piece.Len() > charBudget {
			break
		}

		seenSections[r.chunk.Section] = true
		b.WriteString(piece.String())
		used++
		if r.similarity > topRelevance {
			topRelevance = r.similarity
		}
	}

	return &PRDContext{
		Context:      strings.TrimSpace(b.String()),
		TopRelevance: topRelevance,
		ChunksUsed:   used,
	}, nil
}
