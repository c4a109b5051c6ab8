// Package llm provides the Gemini model gateway. All model traffic flows
// through this package: it enforces the shared sliding-window rate limit,
// retries transient provider failures, and exposes the structured-output
// call that produces coaching plans.
//
// A gateway without an API key is valid: Enabled reports false and every
// model call fails with ErrNotConfigured, which the engine treats as a
// signal to use the deterministic fallback.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/nutribot/nutribot/internal/coach"
	"github.com/nutribot/nutribot/internal/log"
	"github.com/nutribot/nutribot/internal/ratelimit"
	"github.com/nutribot/nutribot/internal/retry"
)

var (
	// ErrNotConfigured indicates no API key is set.
	ErrNotConfigured = errors.New("model gateway is not configured")

	// ErrEmptyResponse indicates the provider returned no candidates.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrRefusal indicates the model declined to produce the structured plan.
	ErrRefusal = errors.New("model refused to respond")
)

// Image classification outcomes.
const (
	ImageFood     = "food"
	ImageRejected = "rejected"
)

// Config configures the gateway.
type Config struct {
	APIKey            string
	Model             string
	VisionModel       string
	UploadDir         string
	RequestsPerMinute int
}

// Client is the Gemini-backed model gateway. It implements
// coach.ModelGateway and is safe for concurrent use.
type Client struct {
	cfg     Config
	client  *genai.Client
	limiter *ratelimit.SlidingWindow
	schema  *jsonschema.Schema
	logger  log.Logger
}

// New creates a gateway. An empty API key yields a disabled gateway rather
// than an error.
func New(ctx context.Context, cfg Config, logger log.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.RequestsPerMinute < 1 {
		return nil, fmt.Errorf("requests per minute must be at least 1, got %d", cfg.RequestsPerMinute)
	}

	schema, err := jsonschema.For[coach.CoachResponse](nil)
	if err != nil {
		return nil, fmt.Errorf("building response schema: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		limiter: ratelimit.NewSlidingWindow(cfg.RequestsPerMinute, time.Minute),
		schema:  schema,
		logger:  logger,
	}

	if cfg.APIKey == "" {
		logger.Warn("no API key configured, coaching plans will use the deterministic fallback")
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	c.client = client

	return c, nil
}

// Enabled reports whether the gateway can reach a model.
func (c *Client) Enabled() bool {
	return c.client != nil
}

// ChatCompletion runs one model turn with tool declarations attached.
func (c *Client) ChatCompletion(ctx context.Context, system string, contents []*genai.Content, gen coach.GenerationConfig, tools []*genai.FunctionDeclaration) (*genai.Content, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	config := c.generateConfig(system, gen)
	if len(tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: tools}}
	}

	resp, err := retry.Do(ctx, retry.ModelConfig(), func() (*genai.GenerateContentResponse, error) {
		return c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}
	return resp.Candidates[0].Content, nil
}

// GenerateCoachResponse runs the structured-output turn. The response is
// constrained to the CoachResponse JSON schema; anything that fails to
// decode is treated as a refusal.
func (c *Client) GenerateCoachResponse(ctx context.Context, system string, contents []*genai.Content, gen coach.GenerationConfig) (*coach.CoachResponse, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	config := c.generateConfig(system, gen)
	config.ResponseMIMEType = "application/json"
	config.ResponseJsonSchema = c.schema

	resp, err := retry.Do(ctx, retry.ModelConfig(), func() (*genai.GenerateContentResponse, error) {
		return c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	})
	if err != nil {
		return nil, fmt.Errorf("structured generation: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, ErrRefusal
	}

	var plan coach.CoachResponse
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("%w: decoding plan: %v", ErrRefusal, err)
	}
	return &plan, nil
}

// ClassifyImage asks the vision model whether an uploaded image is food
// related. Returns ImageFood or ImageRejected; anything ambiguous counts as
// rejected.
func (c *Client) ClassifyImage(ctx context.Context, imageURL string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if err := c.acquire(ctx); err != nil {
		return "", err
	}

	imagePart, err := c.ImagePart(imageURL)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText("Is this image food or nutrition related? " +
				"Reply with exactly one word: 'food' or 'rejected'."),
			imagePart,
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0)),
		MaxOutputTokens: 10,
	}

	resp, err := retry.Do(ctx, retry.ModelConfig(), func() (*genai.GenerateContentResponse, error) {
		return c.client.Models.GenerateContent(ctx, c.cfg.VisionModel, contents, config)
	})
	if err != nil {
		return "", fmt.Errorf("classifying image: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(responseText(resp)))
	if strings.Contains(answer, "food") {
		return ImageFood, nil
	}
	return ImageRejected, nil
}

// ImagePart loads an uploaded image as an inline data part. The path is
// resolved under the upload directory and rejected if it escapes it.
func (c *Client) ImagePart(imageURL string) (*genai.Part, error) {
	uploadRoot, err := filepath.Abs(c.cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("resolving upload directory: %w", err)
	}

	// Chat requests reference uploads as /uploads/<name>; the file itself
	// lives directly under the upload directory.
	name := strings.TrimPrefix(imageURL, "/uploads/")
	candidate := filepath.Join(uploadRoot, strings.TrimPrefix(name, "/"))
	resolved, err := filepath.Abs(candidate)
	if err != nil {
		return nil, fmt.Errorf("resolving image path: %w", err)
	}
	if !strings.HasPrefix(resolved, uploadRoot+string(filepath.Separator)) {
		return nil, fmt.Errorf("image path %q is outside the upload directory", imageURL)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(resolved))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return genai.NewPartFromBytes(raw, mimeType), nil
}

func (c *Client) acquire(ctx context.Context) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("waiting for rate limit: %w", err)
	}
	return nil
}

func (c *Client) generateConfig(system string, gen coach.GenerationConfig) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(gen.Temperature)),
		TopP:            genai.Ptr(float32(gen.TopP)),
		MaxOutputTokens: int32(gen.MaxOutputTokens),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return config
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}
