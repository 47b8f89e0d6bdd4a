//go:build integration

package graphstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/kgforge/internal/graphstore"
	"github.com/raphaelgruber/kgforge/internal/graphstore/graphstoretest"
	"github.com/raphaelgruber/kgforge/internal/models"
)

func startNeo4j(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "neo4j:5",
			ExposedPorts: []string{"7687/tcp"},
			Env:          map[string]string{"NEO4J_AUTH": "neo4j/kgforge-test"},
			WaitingFor:   wait.ForLog("Started.").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)
	return fmt.Sprintf("bolt://%s:%s", host, port.Port())
}

func TestNeo4jUpsertRoundTrip(t *testing.T) {
	uri := startNeo4j(t)
	ctx := context.Background()

	conn, err := graphstore.NewNeo4j(ctx, uri, "neo4j", "kgforge-test", nil)
	require.NoError(t, err)
	defer conn.Close(ctx)

	tr := models.Triple{Subject: "Tencent", Predicate: "founded in", Object: "1998"}

	restore := graphstore.UseSpace(conn, graphstore.DefaultSpace)
	for range 2 {
		for _, q := range graphstore.UpsertTriple(tr) {
			_, err := conn.Run(ctx, q)
			require.NoError(t, err)
		}
	}
	rows, err := conn.Run(ctx, graphstoretest.CountRelation(tr))
	restore()

	require.NoError(t, err)
	assert.Equal(t, int64(1), graphstoretest.Count(rows))
}
