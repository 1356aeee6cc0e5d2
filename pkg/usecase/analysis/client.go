package analysis

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/adapter"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/analyze.md
var analyzePromptRaw string

var analyzePromptTmpl = template.Must(template.New("analyze").Parse(analyzePromptRaw))

// DefaultInstrument is the index the entered price refers to
const DefaultInstrument = "NIFTY"

// CredentialSource provides the credential to use for the next request
type CredentialSource interface {
	Credential() adapter.Credential
}

// Connector builds a Gemini client for a credential
type Connector func(ctx context.Context, cred adapter.Credential) (adapter.Gemini, error)

// Client sends chart images and the current price to Gemini and returns the parsed report
type Client struct {
	creds      CredentialSource
	connect    Connector
	instrument string
	model      string
}

// Option is a functional option for Client
type Option func(*Client)

// WithConnector replaces how Gemini clients are created
func WithConnector(connect Connector) Option {
	return func(c *Client) {
		c.connect = connect
	}
}

// WithInstrument sets the instrument named in the prompt
func WithInstrument(instrument string) Option {
	return func(c *Client) {
		if instrument != "" {
			c.instrument = instrument
		}
	}
}

// WithModel sets the generative model used by the default connector
func WithModel(name string) Option {
	return func(c *Client) {
		c.model = name
	}
}

// New creates an analysis client
func New(creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		instrument: DefaultInstrument,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.connect == nil {
		c.connect = func(ctx context.Context, cred adapter.Credential) (adapter.Gemini, error) {
			return adapter.NewGemini(ctx, cred, adapter.WithGenerativeModel(c.model))
		}
	}
	return c
}

// Analyze issues exactly one generation request. Input validation is the caller's job.
func (c *Client) Analyze(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error) {
	cred := adapter.Credential{}
	if c.creds != nil {
		cred = c.creds.Credential()
	}
	if cred.Empty() {
		return nil, goerr.Wrap(model.ErrMissingCredential, "no credential to call the model")
	}

	content, err := c.buildContent(images, price)
	if err != nil {
		return nil, err
	}

	config, err := generateConfig()
	if err != nil {
		return nil, err
	}

	gemini, err := c.connect(ctx, cred)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrRequestFailed, err), "failed to connect to model")
	}

	logger := logging.From(ctx)
	logger.Debug("requesting analysis", "images", len(images), "instrument", c.instrument)

	resp, err := gemini.GenerateContent(ctx, []*genai.Content{content}, config)
	if err != nil {
		if errors.Is(err, adapter.ErrPermissionDenied) {
			return nil, goerr.Wrap(errors.Join(model.ErrPermissionDenied, err), "model rejected the credential")
		}
		return nil, goerr.Wrap(errors.Join(model.ErrRequestFailed, err), "analysis request failed")
	}

	rawJSON := stripCodeFence(responseText(resp))
	if rawJSON == "" {
		return nil, goerr.Wrap(model.ErrResponseFormat, "model returned no text")
	}

	analysis, err := model.ParseTradingAnalysis([]byte(rawJSON))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse model response", goerr.V("response", rawJSON))
	}

	return analysis, nil
}

func (c *Client) buildContent(images []*model.EncodedImage, price string) (*genai.Content, error) {
	var buf bytes.Buffer
	if err := analyzePromptTmpl.Execute(&buf, map[string]any{
		"ImageCount": len(images),
		"Instrument": c.instrument,
		"Price":      strings.TrimSpace(price),
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute analyze prompt template")
	}

	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, genai.NewPartFromText(buf.String()))
	for i, img := range images {
		if img == nil {
			return nil, goerr.Wrap(model.ErrEncoding, "image is nil", goerr.V("index", i))
		}
		data, err := base64.StdEncoding.DecodeString(img.Base64)
		if err != nil {
			return nil, goerr.Wrap(model.ErrEncoding, "image payload is not valid base64",
				goerr.V("index", i),
				goerr.V("mime_type", img.MIMEType))
		}
		parts = append(parts, genai.NewPartFromBytes(data, img.MIMEType))
	}

	return genai.NewContentFromParts(parts, genai.RoleUser), nil
}

func generateConfig() (*genai.GenerateContentConfig, error) {
	schema, err := responseSchema()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build response schema")
	}

	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}, nil
}
