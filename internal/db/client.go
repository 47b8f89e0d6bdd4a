// Package db stores kgforge records and chunk vectors in SurrealDB over an
// auto-reconnecting WebSocket.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/raphaelgruber/kgforge/internal/metrics"
)

func init() {
	// WebSocket upgrades fail when wss negotiates HTTP/2 via ALPN.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// Reconnect policy of the underlying socket.
const (
	dialTimeout       = 5 * time.Second
	reconnectInitial  = time.Second
	reconnectMax      = 30 * time.Second
	reconnectAttempts = 10
)

type wsConn = rews.Connection[*gorillaws.Connection]

// Client is the SurrealDB implementation of store.Store and the backing
// client of the "surreal" vector backend.
type Client struct {
	conn    *wsConn
	db      *surrealdb.DB
	cfg     Config
	log     logger.Logger
	metrics *metrics.Collector
}

// NewClient connects, signs in and selects the namespace and database.
// A nil log uses slog's default handler.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger, mc *metrics.Collector) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{cfg: cfg, log: logger.New(log.Handler()), metrics: mc}

	c.conn = c.dial()
	c.log.Info("connecting to surrealdb", "url", cfg.URL)
	if err := c.conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := c.open(ctx); err != nil {
		_ = c.conn.Close(ctx)
		return nil, err
	}
	c.log.Info("surrealdb ready", "namespace", cfg.Namespace, "database", cfg.Database)
	return c, nil
}

func (c *Client) dial() *wsConn {
	codec := surrealcbor.New()
	// gorillaws appends /rpc itself
	base := strings.TrimSuffix(c.cfg.URL, "/rpc")

	conn := rews.New(
		func(context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     base,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      c.log,
			}), nil
		},
		dialTimeout,
		codec,
		c.log,
	)

	retry := rews.NewExponentialBackoffRetryer()
	retry.InitialDelay = reconnectInitial
	retry.MaxDelay = reconnectMax
	retry.Multiplier = 2.0
	retry.MaxRetries = reconnectAttempts
	conn.Retryer = retry
	return conn
}

// open authenticates and selects the namespace on a connected socket.
func (c *Client) open(ctx context.Context) error {
	db, err := surrealdb.FromConnection(ctx, c.conn)
	if err != nil {
		return fmt.Errorf("from connection: %w", err)
	}

	auth := surrealdb.Auth{Username: c.cfg.Username, Password: c.cfg.Password}
	if c.cfg.AuthLevel == "database" {
		auth.Namespace = c.cfg.Namespace
		auth.Database = c.cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		return fmt.Errorf("signin as %s (%s): %w", c.cfg.Username, c.cfg.AuthLevel, err)
	}
	if err := db.Use(ctx, c.cfg.Namespace, c.cfg.Database); err != nil {
		return fmt.Errorf("use %s/%s: %w", c.cfg.Namespace, c.cfg.Database, err)
	}
	c.db = db
	return nil
}

// Close closes the SurrealDB connection.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// InitSchema defines the tables. dimension sizes the HNSW vector index.
func (c *Client) InitSchema(ctx context.Context, dimension int) error {
	c.log.Info("initializing database schema", "dimension", dimension)
	if _, err := surrealdb.Query[any](ctx, c.db, schemaSQL(dimension), nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// WipeData deletes all records while preserving the schema. Tests only.
func (c *Client) WipeData(ctx context.Context) error {
	c.log.Warn("wiping all data from database")
	for _, table := range tables {
		if _, err := surrealdb.Query[any](ctx, c.db, "DELETE type::table($tb)", map[string]any{"tb": table}); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
