package adapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// ErrPermissionDenied is returned when Gemini rejects the credential or cannot find the
// requested model for it.
var ErrPermissionDenied = goerr.New("gemini permission denied")

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Credential selects the Gemini backend. An API key uses the Gemini API; otherwise Project
// and Location use Vertex AI with application default credentials.
type Credential struct {
	APIKey   string
	Project  string
	Location string
}

// Empty reports whether no backend can be selected
func (c Credential) Empty() bool {
	return c.APIKey == "" && c.Project == ""
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.generativeModel = model
		}
	}
}

// NewGemini builds a client for the credential. It does not contact the API.
func NewGemini(ctx context.Context, cred Credential, opts ...GeminiOption) (*GeminiClient, error) {
	if cred.Empty() {
		return nil, goerr.New("gemini credential is empty")
	}

	cfg := &genai.ClientConfig{
		APIKey:  cred.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cred.APIKey == "" {
		location := cred.Location
		if location == "" {
			location = "us-central1"
		}
		cfg = &genai.ClientConfig{
			Project:  cred.Project,
			Location: location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, ClassifyGeminiError(err)
	}
	return resp, nil
}

// ClassifyGeminiError wraps err with ErrPermissionDenied when the API reports an
// authorization or not-found condition, judged by HTTP code and status only.
func ClassifyGeminiError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return goerr.Wrap(err, "failed to generate content")
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized,
		apiErr.Code == http.StatusForbidden,
		apiErr.Code == http.StatusNotFound,
		apiErr.Status == "PERMISSION_DENIED",
		apiErr.Status == "UNAUTHENTICATED",
		apiErr.Status == "NOT_FOUND":
		return goerr.Wrap(errors.Join(ErrPermissionDenied, err), "gemini rejected the request",
			goerr.V("code", apiErr.Code),
			goerr.V("status", apiErr.Status))
	}

	return goerr.Wrap(err, "failed to generate content",
		goerr.V("code", apiErr.Code),
		goerr.V("status", apiErr.Status))
}
