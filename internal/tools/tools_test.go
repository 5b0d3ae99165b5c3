package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupIsFallible(t *testing.T) {
	r := NewRegistry()

	_, err := r.Execute(context.Background(), "no_such_tool", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_tool")
	assert.False(t, r.Has("no_such_tool"))
}

func TestRegistryExecuteWrapsToolErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(NewIdeaVerificationTool())

	// Empty input violates the tool contract; the registry reports a
	// failed result rather than an error.
	res, err := r.Execute(context.Background(), "idea_verification", map[string]any{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestRegistryCatalog(t *testing.T) {
	r := NewRegistry()
	r.Register(NewIdeaVerificationTool())
	r.Register(NewWebSearchTool())

	catalog := r.Catalog()
	require.Len(t, catalog, 2)
	// Sorted by name.
	assert.Equal(t, "idea_verification", catalog[0].Name)
	assert.Equal(t, "web_search", catalog[1].Name)
	assert.NotEmpty(t, catalog[0].Description)
}

func TestIdeaVerificationScoresConcreteHigherThanVague(t *testing.T) {
	tool := NewIdeaVerificationTool()

	concrete, err := tool.Execute(context.Background(), map[string]any{
		"idea_text": "First decompose the question into steps, then search for each sub-answer and verify the combination.",
	})
	require.NoError(t, err)

	vague, err := tool.Execute(context.Background(), map[string]any{
		"idea_text": "Maybe somehow it will just work out with magic, hopefully.",
	})
	require.NoError(t, err)

	cf := concrete.Data["feasibility_score"].(float64)
	vf := vague.Data["feasibility_score"].(float64)
	assert.Greater(t, cf, vf)
	assert.GreaterOrEqual(t, cf, 0.0)
	assert.LessOrEqual(t, cf, 1.0)

	cr := concrete.Data["reward_score"].(float64)
	vr := vague.Data["reward_score"].(float64)
	assert.Greater(t, cr, vr)
	assert.GreaterOrEqual(t, vr, -1.0)
	assert.LessOrEqual(t, cr, 1.0)
}

func TestWebSearchRequiresAPIKey(t *testing.T) {
	tool := NewWebSearchTool()
	_, err := tool.Execute(context.Background(), map[string]any{"query": "rust runtimes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestWebSearchExecutesAndCaches(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(tavilyResponse{
			Answer: "tokio and async-std <script>alert(1)</script>",
			Results: []tavilyResult{
				{Title: "Tokio", URL: "https://tokio.rs", Content: "An async runtime", Score: 0.9},
			},
		})
	}))
	defer server.Close()

	tool := NewWebSearchTool(WithAPIKey("test-key"), WithEndpoint(server.URL))

	res, err := tool.Execute(context.Background(), map[string]any{"query": "rust async runtimes"})
	require.NoError(t, err)
	require.True(t, res.Success)

	// Sanitization removed the script tag.
	assert.NotContains(t, res.Data["answer"].(string), "<script>")
	assert.False(t, res.Data["from_cache"].(bool))

	res2, err := tool.Execute(context.Background(), map[string]any{"query": "rust async runtimes"})
	require.NoError(t, err)
	assert.True(t, res2.Data["from_cache"].(bool))
	assert.Equal(t, 1, calls)
}

func TestKnowledgeToolRoundTrip(t *testing.T) {
	tool, err := NewKnowledgeTool(":memory:")
	require.NoError(t, err)
	defer tool.Close()

	ctx := context.Background()
	require.NoError(t, tool.Put(ctx, "rust", "Tokio is the dominant async runtime."))
	require.NoError(t, tool.Put(ctx, "go", "Goroutines are scheduled by the runtime."))

	res, err := tool.Execute(ctx, map[string]any{"query": "rust"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data["count"].(int))

	// topic form of the input works too
	res, err = tool.Execute(ctx, map[string]any{"topic": "runtime"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Data["count"].(int))
}
