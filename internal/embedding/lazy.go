package embedding

import (
	"context"
	"sync"

	"github.com/raphaelgruber/kgforge/internal/metrics"
)

// Lazy builds its backend on first use. A failed build is retried on the
// next call.
type Lazy struct {
	factory func() (Embedder, error)
	metrics *metrics.Collector

	mu       sync.Mutex
	embedder Embedder
}

// NewLazy wraps factory. Batch timings are recorded on mc when non-nil.
func NewLazy(factory func() (Embedder, error), mc *metrics.Collector) *Lazy {
	return &Lazy{factory: factory, metrics: mc}
}

// Get returns the backend, building it if needed.
func (l *Lazy) Get() (Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.embedder != nil {
		return l.embedder, nil
	}
	e, err := l.factory()
	if err != nil {
		return nil, err
	}
	l.embedder = e
	return e, nil
}

func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := l.Get()
	if err != nil {
		return nil, err
	}
	defer l.metrics.Time(metrics.OpEmbedding)()
	return e.Embed(ctx, text)
}

func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.Get()
	if err != nil {
		return nil, err
	}
	defer l.metrics.Time(metrics.OpEmbedding)()
	return e.EmbedBatch(ctx, texts)
}

// Model returns the backend model name, or "" before initialization.
func (l *Lazy) Model() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.embedder == nil {
		return ""
	}
	return l.embedder.Model()
}

// Dimension returns the backend dimension, or 0 before initialization.
func (l *Lazy) Dimension() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.embedder == nil {
		return 0
	}
	return l.embedder.Dimension()
}
