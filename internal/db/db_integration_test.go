//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/store"
)

var testDB *Client

func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start surrealdb container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, nil)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := testDB.InitSchema(ctx, 4); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func wipe(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))
	return ctx
}

func TestTaskRoundTrip(t *testing.T) {
	ctx := wipe(t)
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, id := range []string{"t1", "t2", "t3"} {
		task := &models.Task{
			ID: id, UserID: "u1", GraphSpace: "space",
			Status:    models.TaskStatusPending,
			Files:     []models.FileInfo{{Name: "a.txt", Status: "pending"}},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, testDB.CreateTask(ctx, task))
	}
	err := testDB.CreateTask(ctx, &models.Task{ID: "t1", CreatedAt: base})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := testDB.GetTask(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "space", got.GraphSpace)
	assert.Equal(t, "a.txt", got.Files[0].Name)

	got.Status = models.TaskStatusRunning
	require.NoError(t, testDB.UpdateTask(ctx, got))

	tasks, total, err := testDB.ListTasks(ctx, models.TaskFilter{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t3", tasks[0].ID)

	tasks, total, err = testDB.ListTasks(ctx, models.TaskFilter{Status: models.TaskStatusRunning})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "t2", tasks[0].ID)

	unfinished, err := testDB.ListUnfinishedTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, unfinished, 3)

	require.NoError(t, testDB.SaveFileDetail(ctx, &models.FileDetail{ID: "f1", TaskID: "t1", FileName: "a.txt", CreatedAt: base}))
	files, err := testDB.ListFileDetails(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, testDB.DeleteTask(ctx, "t1"))
	_, err = testDB.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	files, err = testDB.ListFileDetails(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.ErrorIs(t, testDB.DeleteTask(ctx, "t1"), store.ErrNotFound)
	assert.ErrorIs(t, testDB.UpdateTask(ctx, &models.Task{ID: "missing"}), store.ErrNotFound)
}

func TestTemplates(t *testing.T) {
	ctx := wipe(t)
	now := time.Now().UTC()

	require.NoError(t, testDB.CreateTemplate(ctx, &models.PromptTemplate{ID: "s1", Name: "sys", IsSystem: true, CreatedAt: now}))
	require.NoError(t, testDB.CreateTemplate(ctx, &models.PromptTemplate{ID: "u1", Name: "mine", UserID: "alice", CreatedAt: now}))
	require.NoError(t, testDB.CreateTemplate(ctx, &models.PromptTemplate{ID: "u2", Name: "theirs", UserID: "bob", CreatedAt: now}))

	err := testDB.CreateTemplate(ctx, &models.PromptTemplate{ID: "dup", Name: "mine", CreatedAt: now})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	list, err := testDB.ListTemplates(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsSystem)

	n, err := testDB.CountSystemTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, testDB.DeleteTemplate(ctx, "u2"))
	assert.ErrorIs(t, testDB.DeleteTemplate(ctx, "u2"), store.ErrNotFound)
}

func TestSpacesDocumentsChunks(t *testing.T) {
	ctx := wipe(t)
	now := time.Now().UTC()

	require.NoError(t, testDB.CreateSpace(ctx, &models.KnowledgeSpace{Name: "kg", VectorType: "KnowledgeGraph", CreatedAt: now}))
	assert.ErrorIs(t, testDB.CreateSpace(ctx, &models.KnowledgeSpace{Name: "kg", CreatedAt: now}), store.ErrAlreadyExists)

	space, err := testDB.GetSpace(ctx, "kg")
	require.NoError(t, err)
	assert.True(t, space.IsGraph())

	doc := &models.KnowledgeDocument{ID: "d1", Name: "a.txt", Space: "kg", Status: models.DocStatusRunning, CreatedAt: now}
	require.NoError(t, testDB.SaveDocument(ctx, doc))
	doc.Status = models.DocStatusFinished
	require.NoError(t, testDB.SaveDocument(ctx, doc))

	found, err := testDB.FindDocument(ctx, "kg", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFinished, found.Status)

	require.NoError(t, testDB.SaveChunks(ctx, []models.DocumentChunk{
		{ID: "c2", Space: "kg", DocName: "a.txt", ChunkIndex: 1, Content: "second"},
		{ID: "c1", Space: "kg", DocName: "a.txt", ChunkIndex: 0, Content: "first"},
	}))
	chunks, err := testDB.ListChunks(ctx, "kg", "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first", chunks[0].Content)
}

func TestVectors(t *testing.T) {
	ctx := wipe(t)

	ids, err := testDB.StoreVectors(ctx, "kg", []VectorRecord{
		{ID: "v1", Content: "east", Embedding: []float32{1, 0, 0, 0}},
		{ID: "v2", Content: "north", Embedding: []float32{0, 1, 0, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, ids)

	n, err := testDB.CountVectors(ctx, "kg")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := testDB.SearchVectors(ctx, "kg", []float32{0.9, 0.1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v1", hits[0].ID)
}
