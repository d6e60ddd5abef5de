package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"dinnerplan/internal/shared"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// SDKGenerator generates content with the official Gemini Go SDK.
type SDKGenerator struct {
	client  *genai.Client
	model   string
	retrier *Retrier
}

// NewSDKGenerator creates a Gemini SDK client.
func NewSDKGenerator(ctx context.Context, apiKey, model string, retrier *Retrier, opts ...option.ClientOption) (*SDKGenerator, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if retrier == nil {
		retrier = NewRetrier(DefaultRetryConfig())
	}
	return &SDKGenerator{client: client, model: model, retrier: retrier}, nil
}

// Generate sends the request and returns the first candidate's text.
func (g *SDKGenerator) Generate(ctx context.Context, req GenerateRequest) (ContentResponse, error) {
	// A fresh model handle per call keeps the configuration below from leaking
	// between concurrent requests.
	model := g.client.GenerativeModel(g.model)
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(req.Schema)
	}

	var resp *genai.GenerateContentResponse
	err := g.retrier.Do(ctx, func(ctx context.Context) error {
		r, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
		if err != nil {
			return classifySDKError(ctx, err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return ContentResponse{}, err
	}

	text := sdkText(resp)
	if text == "" {
		return ContentResponse{}, ErrEmptyResponse
	}

	usage := shared.TokenUsage{Model: g.model}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return ContentResponse{Content: text, Usage: usage}, nil
}

// Close closes the underlying Gemini client.
func (g *SDKGenerator) Close() error {
	return g.client.Close()
}

func sdkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String())
}

// classifySDKError maps SDK failures onto the same taxonomy as the REST client
// so the Retrier treats both backends alike.
func classifySDKError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if ae, ok := apierror.FromError(err); ok {
		code := ae.HTTPCode()
		if code <= 0 {
			code = grpcToHTTP(ae.GRPCStatus().Code())
		}
		return &StatusError{StatusCode: code, Body: err.Error()}
	}
	// A safety block repeats on every attempt.
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", ErrEmptyResponse, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func grpcToHTTP(c codes.Code) int {
	switch c {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Nullable:    s.Nullable,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenaiSchema(p)
		}
	}
	return out
}

func genaiType(t Type) genai.Type {
	switch t {
	case TypeString:
		return genai.TypeString
	case TypeNumber:
		return genai.TypeNumber
	case TypeInteger:
		return genai.TypeInteger
	case TypeBoolean:
		return genai.TypeBoolean
	case TypeArray:
		return genai.TypeArray
	case TypeObject:
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
