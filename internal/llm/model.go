// Package llm streams chat completions from langchaingo providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/kgforge/internal/config"
	"github.com/raphaelgruber/kgforge/internal/metrics"
)

// Provider names accepted in configuration.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged chat message.
type Message struct {
	Role    Role
	Content string
}

// Client streams a completion for messages. An empty model uses the
// client's default model.
type Client interface {
	Stream(ctx context.Context, model string, messages []Message) iter.Seq2[string, error]
}

// Model wraps a langchaingo model.
type Model struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, mc *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.LLMHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.LLMModel)}
		if cfg.LLMAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.LLMAPIKey))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.LLMAPIKey == "" {
			return nil, errors.New("anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.LLMAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewFromLLM(model, cfg.LLMModel, mc), nil
}

// NewFromLLM wraps an existing langchaingo model.
func NewFromLLM(model llms.Model, modelName string, mc *metrics.Collector) *Model {
	return &Model{llm: model, modelName: modelName, metrics: mc}
}

// Model returns the default model name.
func (m *Model) Model() string {
	return m.modelName
}

var errStopped = errors.New("stream consumer stopped")

// Stream yields response text as the provider produces it. Providers that do
// not stream yield the whole response once. A terminal error is yielded with
// an empty chunk.
func (m *Model) Stream(ctx context.Context, model string, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		var out strings.Builder
		var input int64
		for _, msg := range messages {
			input += metrics.ApproxTokens(msg.Content)
		}
		defer func() {
			m.metrics.RecordLLMUsage(metrics.OpLLMStream, time.Since(start), input, metrics.ApproxTokens(out.String()))
		}()

		streamed, stopped := false, false
		opts := []llms.CallOption{
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				streamed = true
				out.Write(chunk)
				if !yield(string(chunk), nil) {
					stopped = true
					return errStopped
				}
				return nil
			}),
		}
		if model != "" {
			opts = append(opts, llms.WithModel(model))
		}

		resp, err := m.llm.GenerateContent(ctx, toMessageContent(messages), opts...)
		if stopped {
			return
		}
		if err != nil {
			yield("", fmt.Errorf("stream completion: %w", wrapFatalError(err)))
			return
		}
		if !streamed && resp != nil && len(resp.Choices) > 0 {
			out.WriteString(resp.Choices[0].Content)
			yield(resp.Choices[0].Content, nil)
		}
	}
}

func toMessageContent(messages []Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		var t llms.ChatMessageType
		switch msg.Role {
		case RoleSystem:
			t = llms.ChatMessageTypeSystem
		case RoleAssistant:
			t = llms.ChatMessageTypeAI
		default:
			t = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(t, msg.Content))
	}
	return content
}

// Collect drains a stream into one string. The first error aborts.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}
