// Package pipeline executes a statically wired DAG of typed stages.
//
// A topology is declared once with a Builder: Then appends a stage after a
// node and Join2 merges two nodes. Build freezes it into a Pipeline whose Run
// may be called concurrently; every run gets its own shared context and its
// own memoized node results, so each stage executes exactly once per run.
// Independent branches below a join run concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrCancelled is returned when the run's cancel check fires between stages.
var ErrCancelled = errors.New("pipeline cancelled")

// StageError reports the stage a run failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Stage transforms one input into one output. Stages may read and write the
// run's shared context.
type Stage[In, Out any] interface {
	Name() string
	Execute(ctx context.Context, in In, shared *Shared) (Out, error)
}

type funcStage[In, Out any] struct {
	name string
	fn   func(context.Context, In, *Shared) (Out, error)
}

func (s funcStage[In, Out]) Name() string { return s.name }

func (s funcStage[In, Out]) Execute(ctx context.Context, in In, shared *Shared) (Out, error) {
	return s.fn(ctx, in, shared)
}

// Func adapts a function to a Stage.
func Func[In, Out any](name string, fn func(context.Context, In, *Shared) (Out, error)) Stage[In, Out] {
	return funcStage[In, Out]{name: name, fn: fn}
}

// Observer is notified around every stage execution of a run.
type Observer interface {
	StageStarted(ctx context.Context, stage string)
	StageFinished(ctx context.Context, stage string, elapsed time.Duration, err error)
}

type nodeInfo struct {
	name    string
	parents []int
}

// Builder declares a topology rooted at a value of type In.
type Builder[In any] struct {
	name  string
	nodes []nodeInfo
	root  *Node[In]
	names map[string]bool
	err   error
}

// Node is a point in the topology producing a value of type T.
type Node[T any] struct {
	graph any
	idx   int
	eval  func(ctx context.Context, r *run) (T, error)
}

// NewBuilder starts a topology. The root node yields the run input.
func NewBuilder[In any](name string) *Builder[In] {
	b := &Builder[In]{name: name, names: make(map[string]bool)}
	b.nodes = append(b.nodes, nodeInfo{name: "root"})
	b.root = &Node[In]{
		graph: b,
		idx:   0,
		eval: func(_ context.Context, r *run) (In, error) {
			in, _ := r.input.(In)
			return in, nil
		},
	}
	return b
}

// Root returns the node carrying the run input.
func (b *Builder[In]) Root() *Node[In] {
	return b.root
}

type graphBuilder interface {
	add(name string, parents ...int) int
	fail(err error)
}

func (b *Builder[In]) add(name string, parents ...int) int {
	if b.names[name] {
		b.fail(fmt.Errorf("duplicate stage name %q", name))
	}
	b.names[name] = true
	b.nodes = append(b.nodes, nodeInfo{name: name, parents: parents})
	return len(b.nodes) - 1
}

func (b *Builder[In]) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Then appends stage s after node n.
func Then[A, B any](n *Node[A], s Stage[A, B]) *Node[B] {
	g := n.graph.(graphBuilder)
	idx := g.add(s.Name(), n.idx)
	name := s.Name()
	return &Node[B]{
		graph: n.graph,
		idx:   idx,
		eval: func(ctx context.Context, r *run) (B, error) {
			var zero B
			in, err := get(ctx, r, n)
			if err != nil {
				return zero, err
			}
			return execute(ctx, r, name, func(ctx context.Context) (B, error) {
				return s.Execute(ctx, in, r.shared)
			})
		},
	}
}

// JoinFunc merges the outputs of two branches. Arguments arrive in the order
// the branches were passed to Join2, regardless of which finished first.
type JoinFunc[A, B, Out any] func(ctx context.Context, a A, b B, shared *Shared) (Out, error)

// Join2 waits for a and b, evaluated concurrently, then combines them.
func Join2[A, B, Out any](name string, a *Node[A], b *Node[B], combine JoinFunc[A, B, Out]) *Node[Out] {
	g := a.graph.(graphBuilder)
	if a.graph != b.graph {
		g.fail(fmt.Errorf("join %q: branches belong to different builders", name))
	}
	idx := g.add(name, a.idx, b.idx)
	return &Node[Out]{
		graph: a.graph,
		idx:   idx,
		eval: func(ctx context.Context, r *run) (Out, error) {
			var (
				zero Out
				av   A
				bv   B
			)
			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				var err error
				av, err = get(egCtx, r, a)
				return err
			})
			eg.Go(func() error {
				var err error
				bv, err = get(egCtx, r, b)
				return err
			})
			if err := eg.Wait(); err != nil {
				return zero, err
			}
			return execute(ctx, r, name, func(ctx context.Context) (Out, error) {
				return combine(ctx, av, bv, r.shared)
			})
		},
	}
}

// Pipeline is an immutable topology ready to run.
type Pipeline[In, Out any] struct {
	name     string
	stages   []string
	size     int
	terminal *Node[Out]
}

// Build freezes the topology ending in terminal. Every declared stage must be
// an ancestor of terminal.
func Build[In, Out any](b *Builder[In], terminal *Node[Out]) (*Pipeline[In, Out], error) {
	if b.err != nil {
		return nil, fmt.Errorf("build %s: %w", b.name, b.err)
	}
	if terminal == nil || terminal.graph != any(b) {
		return nil, fmt.Errorf("build %s: terminal node does not belong to this builder", b.name)
	}

	reached := make([]bool, len(b.nodes))
	var visit func(int)
	visit = func(i int) {
		if reached[i] {
			return
		}
		reached[i] = true
		for _, p := range b.nodes[i].parents {
			visit(p)
		}
	}
	visit(terminal.idx)

	stages := make([]string, 0, len(b.nodes)-1)
	for i, n := range b.nodes {
		if i == 0 {
			continue
		}
		if !reached[i] {
			return nil, fmt.Errorf("build %s: stage %q does not lead to the terminal stage", b.name, n.name)
		}
		stages = append(stages, n.name)
	}

	return &Pipeline[In, Out]{
		name:     b.name,
		stages:   stages,
		size:     len(b.nodes),
		terminal: terminal,
	}, nil
}

// Name returns the topology name.
func (p *Pipeline[In, Out]) Name() string {
	return p.name
}

// Stages lists stage names in declaration order.
func (p *Pipeline[In, Out]) Stages() []string {
	return append([]string(nil), p.stages...)
}

// RunOption configures a single run.
type RunOption func(*run)

// WithObserver reports stage start and finish to o.
func WithObserver(o Observer) RunOption {
	return func(r *run) { r.observer = o }
}

// WithCancelCheck makes the run stop with ErrCancelled before the next stage
// once cancelled returns true. Stages already executing are not interrupted.
func WithCancelCheck(cancelled func() bool) RunOption {
	return func(r *run) { r.cancelled = cancelled }
}

// WithShared seeds the run with a shared context.
func WithShared(s *Shared) RunOption {
	return func(r *run) { r.shared = s }
}

// Run executes the topology for in and returns the terminal output.
func (p *Pipeline[In, Out]) Run(ctx context.Context, in In, opts ...RunOption) (Out, error) {
	r := &run{
		input: in,
		slots: make([]slot, p.size),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.shared == nil {
		r.shared = NewShared()
	}
	return get(ctx, r, p.terminal)
}

type slot struct {
	once sync.Once
	val  any
	err  error
}

type run struct {
	input     any
	slots     []slot
	shared    *Shared
	observer  Observer
	cancelled func() bool
}

// get evaluates n at most once per run; concurrent callers wait for the
// first evaluation.
func get[T any](ctx context.Context, r *run, n *Node[T]) (T, error) {
	s := &r.slots[n.idx]
	s.once.Do(func() {
		s.val, s.err = n.eval(ctx, r)
	})
	if s.err != nil {
		var zero T
		return zero, s.err
	}
	v, _ := s.val.(T)
	return v, nil
}

func execute[T any](ctx context.Context, r *run, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r.cancelled != nil && r.cancelled() {
		return zero, fmt.Errorf("before %s: %w", name, ErrCancelled)
	}

	if r.observer != nil {
		r.observer.StageStarted(ctx, name)
	}
	start := time.Now()
	out, err := fn(ctx)
	if err != nil {
		err = &StageError{Stage: name, Err: err}
	}
	if r.observer != nil {
		r.observer.StageFinished(ctx, name, time.Since(start), err)
	}
	if err != nil {
		return zero, err
	}
	return out, nil
}
