// Package graphstore writes triples into named graph spaces over Cypher.
package graphstore

import (
	"context"
	"errors"
	"sync"
)

// DefaultSpace is the well-known space used when a target space cannot be
// checked or created.
const DefaultSpace = "default"

// ErrNoConnector is returned when no graph backend is configured.
var ErrNoConnector = errors.New("graph store connector is not configured")

// Row is one result record keyed by column name.
type Row = map[string]any

// Connector is a graph database client with a mutable current space that
// Run executes against.
type Connector interface {
	Exists(ctx context.Context, space string) (bool, error)
	Create(ctx context.Context, space string) error
	Run(ctx context.Context, query string) ([]Row, error)
	Space() string
	SetSpace(space string)
}

// UseSpace points c at space and returns a func restoring the previous
// space. Connectors that implement sync.Locker stay locked until restore is
// called, so concurrent runs cannot observe each other's space.
//
//	restore := graphstore.UseSpace(conn, "finance")
//	defer restore()
func UseSpace(c Connector, space string) (restore func()) {
	if l, ok := c.(sync.Locker); ok {
		l.Lock()
	}
	prev := c.Space()
	c.SetSpace(space)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.SetSpace(prev)
			if l, ok := c.(sync.Locker); ok {
				l.Unlock()
			}
		})
	}
}

// EnsureSpace makes sure space exists, creating it if needed. On any error
// it returns DefaultSpace along with the error so callers can log and carry on.
func EnsureSpace(ctx context.Context, c Connector, space string) (string, error) {
	if space == "" || space == DefaultSpace {
		return DefaultSpace, nil
	}
	ok, err := c.Exists(ctx, space)
	if err != nil {
		return DefaultSpace, err
	}
	if ok {
		return space, nil
	}
	if err := c.Create(ctx, space); err != nil {
		return DefaultSpace, err
	}
	return space, nil
}
