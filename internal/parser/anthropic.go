package parser

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/pkg/anthropic"
)

// AnthropicExtractor extracts menus with Claude.
type AnthropicExtractor struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	timeout     time.Duration
	maxSections int
	maxItems    int
}

// NewAnthropicExtractor creates an extractor. The prompt caps follow opts.
func NewAnthropicExtractor(client anthropic.Client, cfg config.AnthropicConfig, timeout time.Duration, opts Options) *AnthropicExtractor {
	def := DefaultOptions()
	if opts.MaxSections <= 0 {
		opts.MaxSections = def.MaxSections
	}
	if opts.MaxItemsPerSection <= 0 {
		opts.MaxItemsPerSection = def.MaxItemsPerSection
	}
	return &AnthropicExtractor{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		maxSections: opts.MaxSections,
		maxItems:    opts.MaxItemsPerSection,
	}
}

// Extract implements Extractor.
func (e *AnthropicExtractor) Extract(ctx context.Context, req Request) (*RawMenu, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: BuildUserPrompt(req, e.maxSections, e.maxItems)},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "anthropic extractor: create message")
	}
	resp.Usage.LogCost(e.model, "menu_parse")

	var menu RawMenu
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &menu); err != nil {
		return nil, eris.Wrap(err, "anthropic extractor: parse json")
	}
	return &menu, nil
}

// cleanJSON extracts a JSON object from text that may carry code fences or
// surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
