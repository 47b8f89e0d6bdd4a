// Package metrics keeps in-memory timings and counters for the /stats
// endpoint.
package metrics

import (
	"strings"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpEmbedding   = "embedding"
	OpLLMStream   = "llm_stream"
	OpGraphQuery  = "graph_query"
	OpVectorStore = "vector_store"

	// StagePrefix prefixes per-stage timings, e.g. "stage:graph_import".
	StagePrefix = "stage:"
)

// Counter names.
const (
	TasksCompleted  = "tasks_completed"
	TasksFailed     = "tasks_failed"
	TasksCancelled  = "tasks_cancelled"
	TriplesImported = "triples_imported"
	VectorsStored   = "vectors_stored"
)

// span aggregates durations or token counts.
type span[T int64 | time.Duration] struct {
	n        int64
	sum      T
	min, max T
}

func (s *span[T]) add(v T) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.n++
	s.sum += v
}

type opStats struct {
	time   span[time.Duration]
	input  span[int64]
	output span[int64]
}

// TokenSnapshot summarizes approximate token usage of an LLM operation.
type TokenSnapshot struct {
	TotalInput  int64   `json:"total_input"`
	TotalOutput int64   `json:"total_output"`
	AvgInput    float64 `json:"avg_input"`
	AvgOutput   float64 `json:"avg_output"`
	MaxInput    int64   `json:"max_input"`
	MaxOutput   int64   `json:"max_output"`
}

// OperationSnapshot summarizes one operation.
type OperationSnapshot struct {
	Count       int64          `json:"count"`
	TotalTimeMs int64          `json:"total_time_ms"`
	AvgTimeMs   float64        `json:"avg_time_ms"`
	MinTimeMs   int64          `json:"min_time_ms"`
	MaxTimeMs   int64          `json:"max_time_ms"`
	Tokens      *TokenSnapshot `json:"tokens,omitempty"`
}

// Snapshot is the server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptime_seconds"`
	Embedding     *OperationSnapshot            `json:"embedding,omitempty"`
	LLMStream     *OperationSnapshot            `json:"llm_stream,omitempty"`
	GraphQuery    *OperationSnapshot            `json:"graph_query,omitempty"`
	VectorStore   *OperationSnapshot            `json:"vector_store,omitempty"`
	Stages        map[string]*OperationSnapshot `json:"stages,omitempty"`
	Counters      map[string]int64              `json:"counters,omitempty"`
}

// Collector aggregates runtime statistics.
// All methods are safe for concurrent use and no-ops on a nil Collector.
type Collector struct {
	mu       sync.Mutex
	started  time.Time
	ops      map[string]*opStats
	counters map[string]int64
}

func NewCollector() *Collector {
	return &Collector{
		started:  time.Now(),
		ops:      make(map[string]*opStats),
		counters: make(map[string]int64),
	}
}

func (c *Collector) op(name string) *opStats {
	s, ok := c.ops[name]
	if !ok {
		s = &opStats{}
		c.ops[name] = s
	}
	return s
}

// RecordTiming records one run of op.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.op(op).time.add(d)
	c.mu.Unlock()
}

// RecordLLMUsage records one LLM call with its approximate token usage.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	s := c.op(op)
	s.time.add(d)
	s.input.add(inputTokens)
	s.output.add(outputTokens)
	c.mu.Unlock()
}

// Time starts a timer for op; call the returned func when the operation ends.
func (c *Collector) Time(op string) func() {
	start := time.Now()
	return func() {
		c.RecordTiming(op, time.Since(start))
	}
}

// Add increments a counter.
func (c *Collector) Add(counter string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[counter] += n
	c.mu.Unlock()
}

// ApproxTokens estimates a token count from text length (about four
// characters per token).
func ApproxTokens(s string) int64 {
	return int64((len(s) + 3) / 4)
}

func (s *opStats) snapshot() *OperationSnapshot {
	if s == nil || s.time.n == 0 {
		return nil
	}
	snap := &OperationSnapshot{
		Count:       s.time.n,
		TotalTimeMs: s.time.sum.Milliseconds(),
		AvgTimeMs:   float64(s.time.sum.Milliseconds()) / float64(s.time.n),
		MinTimeMs:   s.time.min.Milliseconds(),
		MaxTimeMs:   s.time.max.Milliseconds(),
	}
	if s.input.n > 0 {
		snap.Tokens = &TokenSnapshot{
			TotalInput:  s.input.sum,
			TotalOutput: s.output.sum,
			AvgInput:    float64(s.input.sum) / float64(s.input.n),
			AvgOutput:   float64(s.output.sum) / float64(s.output.n),
			MaxInput:    s.input.max,
			MaxOutput:   s.output.max,
		}
	}
	return snap
}

// Snapshot returns a copy of all statistics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.started).Seconds(),
		Embedding:     c.ops[OpEmbedding].snapshot(),
		LLMStream:     c.ops[OpLLMStream].snapshot(),
		GraphQuery:    c.ops[OpGraphQuery].snapshot(),
		VectorStore:   c.ops[OpVectorStore].snapshot(),
	}
	for name, s := range c.ops {
		stage, ok := strings.CutPrefix(name, StagePrefix)
		if !ok {
			continue
		}
		if snap.Stages == nil {
			snap.Stages = make(map[string]*OperationSnapshot)
		}
		snap.Stages[stage] = s.snapshot()
	}
	if len(c.counters) > 0 {
		snap.Counters = make(map[string]int64, len(c.counters))
		for k, v := range c.counters {
			snap.Counters[k] = v
		}
	}
	return snap
}
