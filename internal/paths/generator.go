package paths

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/jsonx"
	"github.com/mindforge-ai/mindforge/internal/llm"
)

// ChatClient is the slice of the LLM multiplexer the generator needs.
type ChatClient interface {
	Chat(ctx context.Context, req *llm.ChatRequest) *llm.Response
}

// DefaultMaxPaths caps the candidate set when the caller passes zero.
const DefaultMaxPaths = 6

// Generator produces candidate reasoning paths for a query. The LLM ranks
// and annotates strategies from the fixed vocabulary; when it is unavailable
// or answers garbage, the static templates serve in preference order.
type Generator struct {
	client ChatClient
	log    zerolog.Logger
}

// NewGenerator builds a Generator. client may be nil for heuristics-only use.
func NewGenerator(client ChatClient, log zerolog.Logger) *Generator {
	return &Generator{client: client, log: log}
}

// Generate returns between 1 and maxPaths distinct candidate paths. Distinct
// means one instance per strategy_id. strategy_id assignment is always
// deterministic from path_type regardless of what the LLM returns.
func (g *Generator) Generate(ctx context.Context, seed, query string, maxPaths int) []ReasoningPath {
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}

	if g.client != nil {
		if generated := g.generateWithLLM(ctx, seed, query, maxPaths); len(generated) > 0 {
			return generated
		}
	}
	return g.staticPaths(maxPaths)
}

func (g *Generator) generateWithLLM(ctx context.Context, seed, query string, maxPaths int) []ReasoningPath {
	resp := g.client.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: generatorSystemPrompt(),
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Framing: %s\n\nQuery: %s\n\nReturn up to %d strategies.", seed, query, maxPaths),
		}},
		Temperature: 0.3,
		MaxTokens:   800,
	})
	if !resp.Success || strings.TrimSpace(resp.Content) == "" {
		return nil
	}

	raw := jsonx.ExtractArray(resp.Content)
	if raw == "" {
		return nil
	}
	var entries []struct {
		PathType    string  `json:"path_type"`
		Description string  `json:"description"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		g.log.Debug().Err(err).Msg("path generator: unparseable strategy list")
		return nil
	}

	seen := make(map[string]bool)
	var out []ReasoningPath
	for _, e := range entries {
		sid := NormalizeStrategyID(e.PathType)
		tmpl, known := vocabularyIndex[sid]
		if !known || seen[sid] {
			continue
		}
		seen[sid] = true

		p := fromTemplate(tmpl)
		if desc := strings.TrimSpace(e.Description); desc != "" {
			p.Description = desc
		}
		if e.Confidence > 0 && e.Confidence <= 1 {
			p.ConfidenceScore = e.Confidence
		}
		out = append(out, p)
		if len(out) >= maxPaths {
			break
		}
	}
	return out
}

// staticPaths returns the vocabulary in preference order.
func (g *Generator) staticPaths(maxPaths int) []ReasoningPath {
	n := maxPaths
	if n > len(vocabulary) {
		n = len(vocabulary)
	}
	out := make([]ReasoningPath, 0, n)
	for _, t := range vocabulary[:n] {
		out = append(out, fromTemplate(t))
	}
	return out
}

func generatorSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You select reasoning strategies for answering a query. Choose only from this catalog:\n")
	for _, t := range vocabulary {
		fmt.Fprintf(&b, "- %s: %s\n", t.pathType, t.description)
	}
	b.WriteString("\nRespond with a JSON array ordered best-first, each element ")
	b.WriteString(`{"path_type": "...", "description": "one line tailored to the query", "confidence": 0.0-1.0}. `)
	b.WriteString("No text outside the JSON.")
	return b.String()
}
