package clipper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dinnerplan/internal/llm"
	"dinnerplan/internal/recipe"
	"dinnerplan/internal/shared"
	"dinnerplan/internal/store"
	"dinnerplan/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockTextGenerator struct {
	Response    string
	ShouldError bool
	LastPrompt  string
}

func (m *MockTextGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (llm.ContentResponse, error) {
	m.LastPrompt = req.Prompt
	if m.ShouldError {
		return llm.ContentResponse{}, errors.New("mock ai error")
	}
	return llm.ContentResponse{Content: m.Response, Usage: shared.TokenUsage{PromptTokens: 10}}, nil
}

type MockUsageRecorder struct {
	Metas []shared.AgentMeta
}

func (m *MockUsageRecorder) RecordMeta(meta shared.AgentMeta) error {
	m.Metas = append(m.Metas, meta)
	return nil
}

func pageServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// --- Tests ---

func TestFetchAndCleanHTML(t *testing.T) {
	ts := pageServer(t, `
		<html>
			<head><script>alert('bad');</script></head>
			<body>
				<h1>Tasty Recipe</h1>
				<div class="ads">Buy stuff!</div>
				<p>Mix flour and water.</p>
				<script>more_bad_stuff()</script>
				<footer>Copyright 2024</footer>
			</body>
		</html>`)

	c := NewClipper(&MockTextGenerator{})
	cleanText, err := c.fetchAndCleanHTML(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if strings.Contains(cleanText, "alert('bad')") {
		t.Error("Failed to remove <script> tags")
	}
	if strings.Contains(cleanText, "Buy stuff!") {
		t.Error("Failed to remove .ads class")
	}
	if strings.Contains(cleanText, "Copyright 2024") {
		t.Error("Failed to remove <footer>")
	}
	if !strings.Contains(cleanText, "Tasty Recipe Mix flour and water.") {
		t.Errorf("Expected collapsed body text, got %q", cleanText)
	}
}

func TestFetchAndCleanHTML_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := NewClipper(&MockTextGenerator{}).fetchAndCleanHTML(context.Background(), ts.URL)
	assert.ErrorContains(t, err, "status 404")
}

func TestClipURL_Success(t *testing.T) {
	aiResponse := `{"recipeName": "Mock Pie", "prepTimeMinutes": 20, "cookTimeMinutes": 40, "ingredients": ["2 cup apples"], "timeline": [{"minutesBefore": 60, "action": "Bake"}], "instructions": ["Bake"]}`
	ts := pageServer(t, "<html><body>Grandma's apple pie</body></html>")

	mockAI := &MockTextGenerator{Response: aiResponse}
	usage := &MockUsageRecorder{}
	c := NewClipper(mockAI, WithUsageRecorder(usage))

	gw := storetest.NewMemory()
	favorites := recipe.NewFavorites(gw, store.Paths{AppID: "app", UserID: "u1"})

	fav, err := c.ClipURL(context.Background(), ts.URL, favorites)
	require.NoError(t, err)

	assert.Equal(t, "Mock Pie", fav.RecipeName)
	assert.Equal(t, ts.URL, fav.MealSource)
	assert.Contains(t, mockAI.LastPrompt, "Grandma's apple pie")
	require.Len(t, usage.Metas, 1)
	assert.Equal(t, shared.AgentClipper, usage.Metas[0].AgentName)

	names, err := favorites.Names(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Mock Pie"}, names)

	// Clipping the same recipe again keeps a single favorite.
	again, err := c.ClipURL(context.Background(), ts.URL, favorites)
	require.NoError(t, err)
	assert.Equal(t, fav.ID, again.ID)
}

func TestClipURL_NoRecipe(t *testing.T) {
	ts := pageServer(t, "<html><body>About us</body></html>")
	c := NewClipper(&MockTextGenerator{Response: `{"recipeName": ""}`})
	gw := storetest.NewMemory()

	_, err := c.ClipURL(context.Background(), ts.URL, recipe.NewFavorites(gw, store.Paths{AppID: "app", UserID: "u1"}))
	assert.ErrorIs(t, err, ErrNoRecipe)
	assert.Zero(t, gw.Writes())
}

func TestClipURL_AIError(t *testing.T) {
	ts := pageServer(t, "<html><body>Soup</body></html>")
	c := NewClipper(&MockTextGenerator{ShouldError: true})

	_, err := c.ClipURL(context.Background(), ts.URL, recipe.NewFavorites(storetest.NewMemory(), store.Paths{AppID: "app", UserID: "u1"}))
	assert.ErrorContains(t, err, "ai extraction failed")
}
