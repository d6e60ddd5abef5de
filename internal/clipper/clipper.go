// Package clipper imports recipes from web pages as favorites.
package clipper

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"dinnerplan/internal/llm"
	"dinnerplan/internal/planner"
	"dinnerplan/internal/recipe"
	"dinnerplan/internal/shared"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

//go:embed clip_prompt.md
var clipPrompt string

var clipTmpl = template.Must(template.New("clip").Parse(clipPrompt))

// maxPageText bounds the page text sent to the model.
const maxPageText = 20000

// ErrNoRecipe is returned when the page has no recognizable recipe.
var ErrNoRecipe = errors.New("no recipe found on page")

// FavoriteSaver stores clipped recipes. recipe.Favorites satisfies it.
type FavoriteSaver interface {
	Add(ctx context.Context, detail recipe.RecipeDetail, mealSource string) (*recipe.Favorite, error)
}

// Clipper fetches recipe pages and saves them as favorites.
type Clipper struct {
	gen    llm.Generator
	http   *http.Client
	usage  planner.UsageRecorder
	logger *zap.Logger
}

// Option customizes a Clipper.
type Option func(*Clipper)

// WithHTTPClient sets the client used to fetch pages.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Clipper) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Clipper) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithUsageRecorder records token usage of extractions.
func WithUsageRecorder(u planner.UsageRecorder) Option {
	return func(cl *Clipper) { cl.usage = u }
}

// NewClipper creates a new Clipper instance.
func NewClipper(gen llm.Generator, opts ...Option) *Clipper {
	c := &Clipper{
		gen:    gen,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClipURL fetches url, extracts the recipe and saves it to favorites with the
// url as its meal source. An already saved recipe of the same name is returned
// as is.
func (c *Clipper) ClipURL(ctx context.Context, url string, favorites FavoriteSaver) (*recipe.Favorite, error) {
	detail, err := c.Extract(ctx, url)
	if err != nil {
		return nil, err
	}
	fav, err := favorites.Add(ctx, *detail, url)
	if err != nil {
		return nil, fmt.Errorf("failed to save clipped recipe: %w", err)
	}
	c.logger.Info("recipe clipped", zap.String("url", url), zap.String("recipe", fav.RecipeName))
	return fav, nil
}

// Extract fetches url and asks the model for the recipe on it.
func (c *Clipper) Extract(ctx context.Context, url string) (*recipe.RecipeDetail, error) {
	content, err := c.fetchAndCleanHTML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}
	if len(content) > maxPageText {
		content = content[:maxPageText]
	}

	var prompt strings.Builder
	if err := clipTmpl.Execute(&prompt, content); err != nil {
		return nil, fmt.Errorf("failed to render clip prompt: %w", err)
	}

	start := time.Now()
	resp, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Prompt: prompt.String(),
		Schema: recipe.DetailSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("ai extraction failed: %w", err)
	}
	if c.usage != nil {
		meta := shared.AgentMeta{AgentName: shared.AgentClipper, Usage: resp.Usage, Latency: time.Since(start)}
		if err := c.usage.RecordMeta(meta); err != nil {
			c.logger.Warn("failed to record usage", zap.Error(err))
		}
	}

	detail, err := recipe.ParseDetail(resp.Content)
	if err != nil {
		if errors.Is(err, recipe.ErrNoRecipeName) {
			return nil, ErrNoRecipe
		}
		return nil, err
	}
	return detail, nil
}

func (c *Clipper) fetchAndCleanHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	// Remove noise to save tokens
	doc.Find("script, style, nav, footer, iframe, noscript, form, .ads, #ads, .comments").Remove()

	lines := strings.Fields(doc.Find("body").Text())
	return strings.Join(lines, " "), nil
}
