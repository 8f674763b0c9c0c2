package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	// DefaultGeminiModel is the default generation model.
	DefaultGeminiModel = "gemini-2.5-flash"

	// geminiMaxRetries bounds retries for transient failures.
	geminiMaxRetries = 3

	// geminiInitialBackoff is the first retry delay; doubles per attempt.
	geminiInitialBackoff = time.Second
)

// GeminiClient implements the LLM interface using the Gemini API.
// A client-side token bucket keeps request rates under quota.
type GeminiClient struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

// GeminiOption is a functional option for configuring GeminiClient.
type GeminiOption func(*GeminiClient)

// GeminiWithModel sets the default model for the client.
func GeminiWithModel(model string) GeminiOption {
	return func(c *GeminiClient) {
		c.model = model
	}
}

// GeminiWithQPS sets the sustained request rate of the client-side limiter.
func GeminiWithQPS(qps float64) GeminiOption {
	return func(c *GeminiClient) {
		if qps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(qps), 2)
		}
	}
}

// NewGeminiClient creates a Gemini generation client.
func NewGeminiClient(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	c := &GeminiClient{
		client:  client,
		model:   DefaultGeminiModel,
		limiter: rate.NewLimiter(rate.Limit(2.0), 2),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close releases the underlying client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Generate sends a prompt to Gemini and returns the complete response.
// Transient failures are retried with exponential backoff; rate-limit
// responses surface as ErrRateLimited after retries are exhausted.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = c.model
	}

	model := c.client.GenerativeModel(modelName)
	if opts.Temperature > 0 {
		model.SetTemperature(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(opts.SystemPrompt)},
		}
	}

	var lastErr error
	backoff := geminiInitialBackoff
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			if isRateLimitError(err) {
				lastErr = fmt.Errorf("%w: %v", ErrRateLimited, err)
				continue
			}
			lastErr = fmt.Errorf("gemini generation failed: %w", err)
			continue
		}

		text := extractText(resp)
		if text == "" {
			lastErr = fmt.Errorf("gemini returned empty response")
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", geminiMaxRetries, lastErr)
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// isRateLimitError detects quota errors without relying on SDK error types.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota")
}

// Ensure GeminiClient implements LLM interface.
var _ LLM = (*GeminiClient)(nil)
