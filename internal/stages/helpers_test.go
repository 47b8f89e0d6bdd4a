package stages

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/raphaelgruber/kgforge/internal/llm"
)

// fakeLLM streams a canned response in small pieces.
type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	// failures makes the first calls fail with err before succeeding
	failures int
	calls    int
	model    string
	messages []llm.Message
}

func (f *fakeLLM) Stream(_ context.Context, model string, messages []llm.Message) iter.Seq2[string, error] {
	f.mu.Lock()
	f.calls++
	f.model = model
	f.messages = messages
	fail := f.err != nil && (f.failures == 0 || f.calls <= f.failures)
	f.mu.Unlock()

	return func(yield func(string, error) bool) {
		if fail {
			yield("", f.err)
			return
		}
		rest := f.response
		for len(rest) > 0 {
			n := min(7, len(rest))
			if !yield(rest[:n], nil) {
				return
			}
			rest = rest[n:]
		}
	}
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type progressEvent struct {
	taskID   string
	progress float64
	step     string
}

type recordingReporter struct {
	mu     sync.Mutex
	events []progressEvent
}

func (r *recordingReporter) Progress(_ context.Context, taskID string, progress float64, step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, progressEvent{taskID, progress, step})
}

func (r *recordingReporter) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var steps []string
	for _, e := range r.events {
		steps = append(steps, e.step)
	}
	return steps
}

var errEmbed = errors.New("embedding backend down")

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, errEmbed }
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errEmbed
}
func (failingEmbedder) Model() string  { return "failing" }
func (failingEmbedder) Dimension() int { return 8 }
