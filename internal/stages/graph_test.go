package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kgforge/internal/graphstore"
	"github.com/raphaelgruber/kgforge/internal/graphstore/graphstoretest"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
)

func sharedWithSpace(space string) *pipeline.Shared {
	s := pipeline.NewShared()
	if space != "" {
		s.Set(KeyGraphSpace, space)
	}
	return s
}

func TestGraphImportNoConnector(t *testing.T) {
	stage := &GraphImport{}
	_, err := stage.Execute(context.Background(), nil, pipeline.NewShared())
	assert.ErrorIs(t, err, graphstore.ErrNoConnector)
}

func TestGraphImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := graphstoretest.NewMemory()
	stage := &GraphImport{Connector: mem}
	tr := models.Triple{Subject: "O'Neil", Predicate: "works for", Object: "Acme"}

	for range 2 {
		n, err := stage.Execute(ctx, []models.Triple{tr}, sharedWithSpace("hr"))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	assert.Equal(t, []string{"Acme", "O'Neil"}, mem.Entities("hr"))
	assert.Equal(t, []models.Triple{{Subject: "O'Neil", Predicate: "works_for", Object: "Acme"}}, mem.Relations("hr"))

	restore := graphstore.UseSpace(mem, "hr")
	rows, err := mem.Run(ctx, graphstoretest.CountRelation(tr))
	restore()
	require.NoError(t, err)
	assert.Equal(t, int64(1), graphstoretest.Count(rows))

	// the connector is pointed back at its previous space
	assert.Equal(t, graphstore.DefaultSpace, mem.Space())
}

func TestGraphImportFallsBackToDefaultSpace(t *testing.T) {
	mem := graphstoretest.NewMemory()
	mem.ExistsErr = errors.New("permission denied")
	stage := &GraphImport{Connector: mem}

	n, err := stage.Execute(context.Background(), []models.Triple{{Subject: "a", Predicate: "p", Object: "b"}}, sharedWithSpace("secret"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, mem.Relations(graphstore.DefaultSpace), 1)
	assert.Nil(t, mem.Relations("secret"))
}

func TestGraphImportUsesConfiguredDefault(t *testing.T) {
	mem := graphstoretest.NewMemory()
	stage := &GraphImport{Connector: mem, DefaultSpace: "fallback"}

	_, err := stage.Execute(context.Background(), []models.Triple{{Subject: "a", Predicate: "p", Object: "b"}}, pipeline.NewShared())
	require.NoError(t, err)
	assert.Len(t, mem.Relations("fallback"), 1)
}

func TestGraphImportSkipsFailingTriples(t *testing.T) {
	mem := graphstoretest.NewMemory()
	mem.FailRun = func(q string) error {
		if strings.Contains(q, "'broken'") {
			return errors.New("syntax error")
		}
		return nil
	}
	stage := &GraphImport{Connector: mem}

	n, err := stage.Execute(context.Background(), []models.Triple{
		{Subject: "a", Predicate: "p", Object: "b"},
		{Subject: "broken", Predicate: "p", Object: "c"},
		{Subject: "d", Predicate: "p", Object: "e"},
	}, sharedWithSpace("kg"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, mem.Relations("kg"), 2)
}

func TestGraphImportEmpty(t *testing.T) {
	mem := graphstoretest.NewMemory()
	n, err := (&GraphImport{Connector: mem}).Execute(context.Background(), nil, pipeline.NewShared())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, mem.Queries())
}
