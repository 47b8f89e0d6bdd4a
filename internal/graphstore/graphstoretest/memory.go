// Package graphstoretest provides an in-memory graph connector that
// understands the statements produced by package graphstore.
package graphstoretest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/raphaelgruber/kgforge/internal/graphstore"
	"github.com/raphaelgruber/kgforge/internal/models"
)

const lit = `'((?:[^'\\]|\\.)*)'`

var (
	mergeEntityRe   = regexp.MustCompile(`^MERGE \(n:Entity \{name: ` + lit + `\}\)$`)
	mergeRelationRe = regexp.MustCompile(`^MATCH \(a:Entity \{name: ` + lit + `\}\), \(b:Entity \{name: ` + lit + `\}\) MERGE \(a\)-\[r:Relation \{type: ` + lit + `\}\]->\(b\)$`)
	countRelationRe = regexp.MustCompile(`^MATCH \(a:Entity \{name: ` + lit + `\}\)-\[r:Relation \{type: ` + lit + `\}\]->\(b:Entity \{name: ` + lit + `\}\) RETURN count\(r\) AS count$`)
	countEntityRe   = regexp.MustCompile(`^MATCH \(n:Entity \{name: ` + lit + `\}\) RETURN count\(n\) AS count$`)

	unescaper = strings.NewReplacer(`\\`, `\`, `\'`, `'`)
)

type graph struct {
	nodes map[string]struct{}
	edges map[models.Triple]struct{}
}

func newGraph() *graph {
	return &graph{nodes: make(map[string]struct{}), edges: make(map[models.Triple]struct{})}
}

// Memory is a graphstore.Connector backed by maps. The default space always
// exists. Hooks let tests inject failures.
type Memory struct {
	scope sync.Mutex

	mu      sync.Mutex
	space   string
	spaces  map[string]*graph
	queries []string

	// ExistsErr and CreateErr are returned by Exists and Create when set.
	ExistsErr error
	CreateErr error
	// FailRun, when set, is consulted before each statement.
	FailRun func(query string) error
}

var (
	_ graphstore.Connector = (*Memory)(nil)
	_ sync.Locker          = (*Memory)(nil)
)

// NewMemory returns an empty connector pointing at the default space.
func NewMemory() *Memory {
	return &Memory{
		space:  graphstore.DefaultSpace,
		spaces: map[string]*graph{graphstore.DefaultSpace: newGraph()},
	}
}

func (m *Memory) Lock()   { m.scope.Lock() }
func (m *Memory) Unlock() { m.scope.Unlock() }

func (m *Memory) Space() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.space
}

func (m *Memory) SetSpace(space string) {
	m.mu.Lock()
	m.space = space
	m.mu.Unlock()
}

func (m *Memory) Exists(_ context.Context, space string) (bool, error) {
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.spaces[space]
	return ok, nil
}

func (m *Memory) Create(_ context.Context, space string) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.spaces[space]; !ok {
		m.spaces[space] = newGraph()
	}
	return nil
}

// Run applies one statement to the current space.
func (m *Memory) Run(_ context.Context, query string) ([]graphstore.Row, error) {
	if m.FailRun != nil {
		if err := m.FailRun(query); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)

	g, ok := m.spaces[m.space]
	if !ok {
		return nil, fmt.Errorf("graph space %q does not exist", m.space)
	}

	switch {
	case mergeEntityRe.MatchString(query):
		sub := mergeEntityRe.FindStringSubmatch(query)
		g.nodes[unescaper.Replace(sub[1])] = struct{}{}
		return nil, nil

	case mergeRelationRe.MatchString(query):
		sub := mergeRelationRe.FindStringSubmatch(query)
		t := models.Triple{
			Subject:   unescaper.Replace(sub[1]),
			Object:    unescaper.Replace(sub[2]),
			Predicate: unescaper.Replace(sub[3]),
		}
		_, hasS := g.nodes[t.Subject]
		_, hasO := g.nodes[t.Object]
		if hasS && hasO {
			g.edges[t] = struct{}{}
		}
		return nil, nil

	case countRelationRe.MatchString(query):
		sub := countRelationRe.FindStringSubmatch(query)
		t := models.Triple{
			Subject:   unescaper.Replace(sub[1]),
			Predicate: unescaper.Replace(sub[2]),
			Object:    unescaper.Replace(sub[3]),
		}
		var n int64
		if _, ok := g.edges[t]; ok {
			n = 1
		}
		return []graphstore.Row{{"count": n}}, nil

	case countEntityRe.MatchString(query):
		sub := countEntityRe.FindStringSubmatch(query)
		var n int64
		if _, ok := g.nodes[unescaper.Replace(sub[1])]; ok {
			n = 1
		}
		return []graphstore.Row{{"count": n}}, nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// Relations returns the edges of space as triples, sorted.
func (m *Memory) Relations(space string) []models.Triple {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.spaces[space]
	if !ok {
		return nil
	}
	out := make([]models.Triple, 0, len(g.edges))
	for t := range g.edges {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Entities returns the node names of space, sorted.
func (m *Memory) Entities(space string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.spaces[space]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Queries returns every statement run so far.
func (m *Memory) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}
