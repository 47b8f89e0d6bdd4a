package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kgforge/internal/llm"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
)

func docs(bodies ...string) []models.Document {
	out := make([]models.Document, len(bodies))
	for i, b := range bodies {
		out[i] = models.Document{Content: b}
	}
	return out
}

func TestLLMExtractionOutputParsing(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []models.Triple
	}{
		{
			name:     "malformed output yields nothing",
			response: "not json at all",
			want:     []models.Triple{},
		},
		{
			name:     "fenced with trailing garbage",
			response: "```json\n[[\"A\",\"rel\",\"B\"]]\n```\n[[\"A\",\"rel\",\"B\"]] trailing",
			want:     []models.Triple{{Subject: "A", Predicate: "rel", Object: "B"}},
		},
		{
			name:     "garbage after value inside fence",
			response: "```json\n[[\"A\",\"rel\",\"B\"]] [[\"A\"\n```",
			want:     []models.Triple{{Subject: "A", Predicate: "rel", Object: "B"}},
		},
		{
			name:     "tuple fallback",
			response: "(Tencent, founded_in, 1998)\n(Tencent, located_in, Shenzhen)",
			want: []models.Triple{
				{Subject: "Tencent", Predicate: "founded_in", Object: "1998"},
				{Subject: "Tencent", Predicate: "located_in", Object: "Shenzhen"},
			},
		},
		{
			name:     "object instead of array",
			response: `{"triples": [["a","b","c"]]}`,
			want:     []models.Triple{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := &LLMExtraction{Client: &fakeLLM{response: tt.response}, Model: "qwen-max"}
			got, err := stage.Execute(context.Background(), docs("some text"), pipeline.NewShared())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMExtractionSkipsEmptyInput(t *testing.T) {
	fake := &fakeLLM{response: `[["a","b","c"]]`}
	stage := &LLMExtraction{Client: fake}

	for _, in := range [][]models.Document{nil, docs("", ""), docs("  \n ")} {
		got, err := stage.Execute(context.Background(), in, pipeline.NewShared())
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 0, fake.Calls())
}

func TestLLMExtractionRequest(t *testing.T) {
	fake := &fakeLLM{response: `[]`}
	stage := &LLMExtraction{Client: fake, Model: "qwen-max", CharLimit: 20}

	shared := pipeline.NewShared()
	_, err := stage.Execute(context.Background(), docs("first", "", "second document body"), shared)
	require.NoError(t, err)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, "qwen-max", fake.model)
	assert.Equal(t, llm.RoleSystem, fake.messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, fake.messages[0].Content)
	assert.Equal(t, llm.RoleUser, fake.messages[1].Role)

	body := strings.TrimPrefix(fake.messages[1].Content, userPromptPrefix)
	assert.Equal(t, "first\n\nsecond docume", body)
	assert.Len(t, []rune(body), 20)

	shared.Set(KeyCustomPrompt, "custom instruction")
	_, err = stage.Execute(context.Background(), docs("x"), shared)
	require.NoError(t, err)
	assert.Equal(t, "custom instruction", fake.messages[0].Content)
}

func TestLLMExtractionTruncatesByCharacters(t *testing.T) {
	fake := &fakeLLM{response: `[]`}
	stage := &LLMExtraction{Client: fake}

	_, err := stage.Execute(context.Background(), docs(strings.Repeat("腾", DefaultCharLimit+500)), pipeline.NewShared())
	require.NoError(t, err)
	body := strings.TrimPrefix(fake.messages[1].Content, userPromptPrefix)
	assert.Len(t, []rune(body), DefaultCharLimit)
}

func TestLLMExtractionStreamError(t *testing.T) {
	boom := errors.New("connection refused")
	stage := &LLMExtraction{Client: &fakeLLM{err: boom}}
	_, err := stage.Execute(context.Background(), docs("text"), pipeline.NewShared())
	assert.ErrorIs(t, err, boom)
}

func TestLLMExtractionRetries(t *testing.T) {
	defer func(d time.Duration) { retryDelay = d }(retryDelay)
	retryDelay = time.Millisecond

	t.Run("transient errors are retried", func(t *testing.T) {
		fake := &fakeLLM{response: `[["A","rel","B"]]`, err: errors.New("connection reset"), failures: 2}
		stage := &LLMExtraction{Client: fake, Retries: 2}
		got, err := stage.Execute(context.Background(), docs("text"), pipeline.NewShared())
		require.NoError(t, err)
		assert.Equal(t, []models.Triple{{Subject: "A", Predicate: "rel", Object: "B"}}, got)
		assert.Equal(t, 3, fake.Calls())
	})

	t.Run("retries are bounded", func(t *testing.T) {
		fake := &fakeLLM{err: errors.New("connection reset")}
		stage := &LLMExtraction{Client: fake, Retries: 2}
		_, err := stage.Execute(context.Background(), docs("text"), pipeline.NewShared())
		require.Error(t, err)
		assert.Equal(t, 3, fake.Calls())
	})

	t.Run("fatal api errors stop immediately", func(t *testing.T) {
		fake := &fakeLLM{err: fmt.Errorf("%w: invalid api key", llm.ErrFatalAPI)}
		stage := &LLMExtraction{Client: fake, Retries: 5}
		_, err := stage.Execute(context.Background(), docs("text"), pipeline.NewShared())
		assert.ErrorIs(t, err, llm.ErrFatalAPI)
		assert.Equal(t, 1, fake.Calls())
	})
}

func TestLLMExtractionReportsMilestone(t *testing.T) {
	rep := &recordingReporter{}
	stage := &LLMExtraction{Client: &fakeLLM{response: `[]`}, Reporter: rep}
	shared := pipeline.NewShared()
	shared.Set(KeyTaskID, "t1")

	_, err := stage.Execute(context.Background(), docs("text"), shared)
	require.NoError(t, err)
	require.Len(t, rep.events, 1)
	assert.Equal(t, progressEvent{"t1", ProgressExtracting, "extracting triples"}, rep.events[0])
}
