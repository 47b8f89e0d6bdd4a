package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/raphaelgruber/kgforge/internal/metrics"
)

// Neo4jConnector maps graph spaces onto Neo4j databases. DefaultSpace is the
// user's home database. It works against Memgraph too, which only has the
// default space.
type Neo4jConnector struct {
	driver  neo4j.DriverWithContext
	metrics *metrics.Collector

	scope sync.Mutex // held between UseSpace and restore

	mu    sync.RWMutex
	space string
}

var (
	_ Connector   = (*Neo4jConnector)(nil)
	_ sync.Locker = (*Neo4jConnector)(nil)
)

// NewNeo4j connects to uri and verifies connectivity.
func NewNeo4j(ctx context.Context, uri, username, password string, mc *metrics.Collector) (*Neo4jConnector, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}

	slog.Info("connected to graph store", "uri", uri)
	return &Neo4jConnector{driver: driver, metrics: mc, space: DefaultSpace}, nil
}

// Close releases the driver.
func (c *Neo4jConnector) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Neo4jConnector) Lock()   { c.scope.Lock() }
func (c *Neo4jConnector) Unlock() { c.scope.Unlock() }

func (c *Neo4jConnector) Space() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.space
}

func (c *Neo4jConnector) SetSpace(space string) {
	c.mu.Lock()
	c.space = space
	c.mu.Unlock()
}

func (c *Neo4jConnector) Exists(ctx context.Context, space string) (bool, error) {
	if space == DefaultSpace {
		return true, nil
	}
	res, err := c.execute(ctx, "system",
		"SHOW DATABASES YIELD name WHERE name = $name RETURN name",
		map[string]any{"name": space})
	if err != nil {
		return false, fmt.Errorf("check graph space %s: %w", space, err)
	}
	return len(res.Records) > 0, nil
}

func (c *Neo4jConnector) Create(ctx context.Context, space string) error {
	if space == DefaultSpace {
		return nil
	}
	if _, err := c.execute(ctx, "system", "CREATE DATABASE $name IF NOT EXISTS WAIT",
		map[string]any{"name": space}); err != nil {
		return fmt.Errorf("create graph space %s: %w", space, err)
	}
	return nil
}

// Run executes query against the current space.
func (c *Neo4jConnector) Run(ctx context.Context, query string) ([]Row, error) {
	db := c.Space()
	if db == DefaultSpace {
		db = ""
	}
	res, err := c.execute(ctx, db, query, nil)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(res.Records))
	for _, rec := range res.Records {
		rows = append(rows, rec.AsMap())
	}
	return rows, nil
}

func (c *Neo4jConnector) execute(ctx context.Context, db, query string, params map[string]any) (*neo4j.EagerResult, error) {
	defer c.metrics.Time(metrics.OpGraphQuery)()

	var opts []neo4j.ExecuteQueryConfigurationOption
	if db != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(db))
	}
	res, err := neo4j.ExecuteQuery(ctx, c.driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return res, nil
}
