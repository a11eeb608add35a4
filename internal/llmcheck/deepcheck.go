package llmcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region types
// ChatCompleter is the subset of *openai.Client the checker needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls the deep check.
type Config struct {
	Model     string
	MaxTokens int
	// FailOpen turns model errors into a pass instead of a validation fault.
	FailOpen bool
}

// DefaultConfig targets a small chat model and fails open.
func DefaultConfig() Config {
	return Config{Model: "gpt-4o-mini", MaxTokens: 256, FailOpen: true}
}

// verdict is the JSON object the model is asked to return.
type verdict struct {
	Complete    *bool    `json:"complete"`
	MissingInfo []string `json:"missing_info"`
	Recoverable *bool    `json:"recoverable"`
	Suggestions []string `json:"suggestions"`
}
// #endregion types

// #region checker
// Checker asks a chat model whether the triplet captures the sentence.
type Checker struct {
	client ChatCompleter
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	temperature float32
}

// New wraps an OpenAI-compatible client.
func New(client ChatCompleter, cfg Config) *Checker {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Checker{
		client:      client,
		cfg:         cfg,
		logger:      logging.New("llmcheck"),
		temperature: float32(optimize.DefaultParameterSet().Temperature),
	}
}

// NewOpenAI builds a Checker on the official client. baseURL may point at
// any OpenAI-compatible endpoint; empty keeps the default.
func NewOpenAI(apiKey, baseURL string, cfg Config) *Checker {
	oc := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oc.BaseURL = baseURL
	}
	return New(openai.NewClientWithConfig(oc), cfg)
}

func (c *Checker) Name() string { return string(triplet.LayerDeepCheck) }

// Tune applies the generation temperature.
func (c *Checker) Tune(p optimize.ParameterSet) {
	c.mu.Lock()
	c.temperature = float32(p.Temperature)
	c.mu.Unlock()
}

// Check implements agent.Checker.
func (c *Checker) Check(ctx context.Context, sentence string, t triplet.Triplet) ([]triplet.Issue, error) {
	c.mu.RLock()
	temp := c.temperature
	c.mu.RUnlock()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: temp,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(sentence, t)},
		},
	})
	if err == nil && len(resp.Choices) == 0 {
		err = fmt.Errorf("no choices returned")
	}
	if err != nil {
		if c.cfg.FailOpen && ctx.Err() == nil {
			c.logger.Warn("deep check skipped", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	return parseVerdict(resp.Choices[0].Message.Content), nil
}
// #endregion checker

// #region prompt
const systemPrompt = "You are an NLP expert who audits (subject, predicate, object, modifiers) triplets. Reply with JSON only."

func buildPrompt(sentence string, t triplet.Triplet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sentence: %q\n", sentence)
	fmt.Fprintf(&b, "Triplet: %s\n\n", triplet.Format(t))
	b.WriteString("Does the triplet capture the core meaning, is any important information missing, ")
	b.WriteString("and can the sentence be recovered from it?\n")
	b.WriteString(`Answer as {"complete": bool, "missing_info": [string], "recoverable": bool, "suggestions": [string]}`)
	return b.String()
}
// #endregion prompt

// #region parse
// parseVerdict turns the model reply into issues. Replies without a JSON
// object fall back to keyword matching.
func parseVerdict(content string) []triplet.Issue {
	issue := func(msg string, cat triplet.Category) triplet.Issue {
		return triplet.Issue{Layer: triplet.LayerDeepCheck, Message: msg, Category: cat}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	var v verdict
	if start < 0 || end <= start || json.Unmarshal([]byte(content[start:end+1]), &v) != nil {
		lower := strings.ToLower(content)
		if strings.Contains(lower, "incomplete") || strings.Contains(content, "不完整") {
			return []triplet.Issue{issue("model judged the triplet incomplete", triplet.CategoryMissingEntity)}
		}
		return nil
	}

	var issues []triplet.Issue
	for _, m := range v.MissingInfo {
		if m = strings.TrimSpace(m); m != "" {
			issues = append(issues, issue("missing "+m, triplet.CategoryMissingEntity))
		}
	}
	if v.Complete != nil && !*v.Complete && len(v.MissingInfo) == 0 {
		issues = append(issues, issue("model judged the triplet incomplete", triplet.CategoryMissingEntity))
	}
	if v.Recoverable != nil && !*v.Recoverable {
		issues = append(issues, issue("sentence not recoverable from triplet arguments", triplet.CategoryIncompleteArgument))
	}
	if len(issues) > 0 {
		for _, s := range v.Suggestions {
			if s = strings.TrimSpace(s); s != "" {
				issues = append(issues, issue("suggestion: "+s, triplet.CategoryNone))
			}
		}
	}
	return issues
}
// #endregion parse
