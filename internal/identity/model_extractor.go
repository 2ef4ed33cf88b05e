package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/docstream/dedupe/internal/types"
)

// DefaultModel is the extraction model. Blocking-key extraction is a simple
// structured-output task, so the cost-efficient tier is the default.
// Override with DEDUPE_EXTRACT_MODEL.
const DefaultModel = "claude-3-5-haiku-20241022"

const extractPrompt = `Extract identifying fields from this business document text.

Return ONLY a JSON object with these keys (omit keys you cannot find):
{
  "document_title": "...",
  "vendor_name": "...",
  "client_name": "...",
  "invoice_number": "...",
  "po_number": "...",
  "total_amount": "...",
  "document_date": "...",
  "contract_reference": "..."
}

Copy values verbatim from the text. Do not guess or infer missing fields.

Document text:
---
%s
---`

// ModelExtractorConfig configures the model-backed extractor.
type ModelExtractorConfig struct {
	APIKey             string        // falls back to ANTHROPIC_API_KEY
	Model              string        // falls back to DEDUPE_EXTRACT_MODEL, then DefaultModel
	MaxRetries         int           // retries after the first attempt (default 2)
	InitialBackoff     time.Duration // default 1s, doubled per retry
	RequestTimeout     time.Duration // per-call timeout (default 30s)
	MaxConcurrentCalls int64         // default 3
	CallsPerSecond     float64       // rate limit (default 5)
}

// ModelExtractor extracts blocking keys with a model-inference call. Calls
// are bounded by a semaphore and a rate limiter, carry a per-call timeout,
// and are retried with exponential backoff. Any exhausted failure surfaces
// as an error so the Guard can degrade to the regex fallback.
type ModelExtractor struct {
	client  *anthropic.Client
	model   string
	cfg     ModelExtractorConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

var _ Extractor = (*ModelExtractor)(nil)

// NewModelExtractor creates the extractor. Returns an error when no API key
// is available, so callers can fall back to the regex extractor at
// construction time instead of per call.
func NewModelExtractor(cfg ModelExtractorConfig) (*ModelExtractor, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set: %w", ErrUnavailable)
		}
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("DEDUPE_EXTRACT_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 3
	}
	if cfg.CallsPerSecond <= 0 {
		cfg.CallsPerSecond = 5
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ModelExtractor{
		client:  &client,
		model:   model,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentCalls),
		limiter: rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), 1),
	}, nil
}

// ExtractBlockingKeys sends the text prefix to the model and parses the
// JSON response.
func (e *ModelExtractor) ExtractBlockingKeys(ctx context.Context, text string) (*types.BlockingKeys, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire extraction slot: %w", err)
	}
	defer e.sem.Release(1)

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	prompt := fmt.Sprintf(extractPrompt, text)

	var responseText string
	backoff := e.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[EXTRACT] retrying model call (attempt %d/%d) after: %v",
				attempt, e.cfg.MaxRetries, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		responseText, lastErr = e.callModel(callCtx, prompt)
		cancel()
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("model extraction failed after %d attempts: %w", e.cfg.MaxRetries+1, lastErr)
	}

	keys, err := parseBlockingKeys(responseText)
	if err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return keys, nil
}

func (e *ModelExtractor) callModel(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// parseBlockingKeys parses the model response, salvaging JSON wrapped in
// code fences or surrounded by prose.
func parseBlockingKeys(text string) (*types.BlockingKeys, error) {
	var keys types.BlockingKeys
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &keys); err == nil {
		return &keys, nil
	}
	extracted := extractJSON(text)
	if extracted == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(extracted), &keys); err != nil {
		return nil, fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return &keys, nil
}

// extractJSON returns the first balanced top-level JSON object in text,
// skipping code fences and surrounding prose.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
