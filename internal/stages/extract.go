package stages

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/kgforge/internal/llm"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/parser"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
)

// DefaultCharLimit caps the text sent to the model, in characters.
const DefaultCharLimit = 10000

// DefaultSystemPrompt asks for a JSON array of 3-element arrays.
const DefaultSystemPrompt = `You are a knowledge graph extraction expert. Extract entities and their relations from the given text and return the triples as a JSON array.
Each triple has the form: ["entity1", "relation", "entity2"]
Return only the JSON code block without any additional explanation.`

const userPromptPrefix = "Extract the triples from the following text:\n\n"

var retryDelay = 500 * time.Millisecond

// LLMExtraction asks a language model for triples over the concatenated
// document text.
type LLMExtraction struct {
	Client llm.Client
	Model  string
	// CharLimit truncates the text; 0 means DefaultCharLimit.
	CharLimit int
	// MaxTuples bounds the parenthesized fallback parser; 0 means no limit.
	MaxTuples int
	// Retries is how many times a failed model call is repeated. Errors
	// marked llm.ErrFatalAPI are never retried.
	Retries  int
	Reporter Reporter
}

func (s *LLMExtraction) Name() string { return StageLLMExtraction }

// Execute never fails on malformed model output; it returns no triples and
// logs a warning instead. Transport errors from the model are returned.
func (s *LLMExtraction) Execute(ctx context.Context, docs []models.Document, shared *pipeline.Shared) ([]models.Triple, error) {
	text := s.buildText(docs)
	if text == "" {
		slog.Warn("no document text, skipping extraction", "documents", len(docs))
		return []models.Triple{}, nil
	}
	report(ctx, s.Reporter, shared, ProgressExtracting, "extracting triples")

	system := shared.StringOr(KeyCustomPrompt, DefaultSystemPrompt)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: userPromptPrefix + text},
	}
	slog.Info("requesting triples", "model", s.Model, "text_len", len(text))

	raw, err := s.complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	slog.Debug("model output", "output", raw)

	return s.parse(raw), nil
}

// buildText joins non-empty bodies in order and truncates to the limit.
func (s *LLMExtraction) buildText(docs []models.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Content != "" {
			parts = append(parts, d.Content)
		}
	}
	text := strings.Join(parts, "\n\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}

	limit := s.CharLimit
	if limit <= 0 {
		limit = DefaultCharLimit
	}
	if runes := []rune(text); len(runes) > limit {
		slog.Warn("text too long for extraction, truncating", "chars", len(runes), "limit", limit)
		text = string(runes[:limit])
	}
	return text
}

func (s *LLMExtraction) complete(ctx context.Context, messages []llm.Message) (string, error) {
	for attempt := 0; ; attempt++ {
		raw, err := llm.Collect(s.Client.Stream(ctx, s.Model, messages))
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, llm.ErrFatalAPI) || ctx.Err() != nil || attempt >= s.Retries {
			return "", err
		}
		slog.Warn("model call failed, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-time.After(retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (s *LLMExtraction) parse(raw string) []models.Triple {
	triples, err := parser.ParseJSONTriples(raw)
	if err == nil {
		return triples
	}
	if tuples := parser.ParseTupleTriples(raw, s.MaxTuples); len(tuples) > 0 {
		slog.Debug("model output is not JSON, used tuple parser", "triples", len(tuples))
		return tuples
	}

	preview := raw
	if len(preview) > 200 {
		preview = preview[:200]
	}
	slog.Warn("failed to parse model output", "error", err, "output", preview)
	return []models.Triple{}
}
