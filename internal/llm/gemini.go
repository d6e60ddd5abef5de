package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dinnerplan/internal/shared"
)

// DefaultBaseURL is the public Gemini REST endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GeminiClient calls the generateContent REST endpoint through a retrying Client.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *Client
}

// NewGeminiClient creates a REST generator. An empty baseURL uses DefaultBaseURL.
func NewGeminiClient(apiKey, baseURL, model string, client *Client) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = NewClient(&http.Client{Timeout: 2 * time.Minute}, nil)
	}
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

// Generate sends the request and returns the first candidate's text.
func (g *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (ContentResponse, error) {
	body := geminiRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	if req.Schema != nil {
		body.GenerationConfig = &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   req.Schema,
		}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := g.client.Send(ctx, Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model),
		Header: http.Header{
			"Content-Type":   []string{"application/json"},
			"X-Goog-Api-Key": []string{g.apiKey},
		},
		Body: jsonData,
	})
	if err != nil {
		return ContentResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ContentResponse{}, &StatusError{StatusCode: resp.StatusCode, Body: truncate(resp.Body)}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	text := parsed.text()
	if text == "" {
		return ContentResponse{}, ErrEmptyResponse
	}

	model := parsed.ModelVersion
	if model == "" {
		model = g.model
	}
	usage := shared.TokenUsage{Model: model}
	if parsed.UsageMetadata != nil {
		usage.PromptTokens = parsed.UsageMetadata.PromptTokenCount
		usage.CompletionTokens = parsed.UsageMetadata.CandidatesTokenCount
		usage.TotalTokens = parsed.UsageMetadata.TotalTokenCount
	}
	return ContentResponse{Content: text, Usage: usage}, nil
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}
