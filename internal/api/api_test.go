package api

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kgforge/internal/config"
	"github.com/raphaelgruber/kgforge/internal/embedding"
	"github.com/raphaelgruber/kgforge/internal/graphstore/graphstoretest"
	"github.com/raphaelgruber/kgforge/internal/llm"
	"github.com/raphaelgruber/kgforge/internal/loader"
	"github.com/raphaelgruber/kgforge/internal/metrics"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/parser"
	"github.com/raphaelgruber/kgforge/internal/service"
	"github.com/raphaelgruber/kgforge/internal/stages"
	"github.com/raphaelgruber/kgforge/internal/store/sqlite"
	"github.com/raphaelgruber/kgforge/internal/vectorstore"
)

type gatedLLM struct {
	response string
	gate     chan struct{}
	once     sync.Once
}

func (g *gatedLLM) release() { g.once.Do(func() { close(g.gate) }) }

func (g *gatedLLM) Stream(ctx context.Context, _ string, _ []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		select {
		case <-g.gate:
		case <-ctx.Done():
			yield("", ctx.Err())
			return
		}
		yield(g.response, nil)
	}
}

type testServer struct {
	*httptest.Server
	llm   *gatedLLM
	graph *graphstoretest.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "kg.db"))
	require.NoError(t, err)

	mc := metrics.NewCollector()
	notifier := service.NewNotifier(0)
	registry := service.NewRegistry(st, notifier)
	graph := graphstoretest.NewMemory()
	model := &gatedLLM{
		response: `[["Tencent","founded_in","1998"],["Tencent","located_in","Shenzhen"]]`,
		gate:     make(chan struct{}),
	}

	chroma, err := vectorstore.NewChromem("", false, mc)
	require.NoError(t, err)
	backends := vectorstore.NewRegistry(vectorstore.TypeChroma)
	backends.Register(vectorstore.TypeChroma, chroma)
	hash := embedding.NewHashEmbedder(16)

	topo, err := stages.Build(stages.Set{
		Parse:       &stages.FileParsing{Loader: loader.New(), Reporter: registry},
		Extract:     &stages.LLMExtraction{Client: model, Model: "qwen-max", Reporter: registry},
		Mapping:     &stages.MappingExtraction{Reporter: registry},
		Import:      &stages.GraphImport{Connector: graph, Reporter: registry},
		Chunk:       &stages.Chunking{Config: parser.DefaultChunkConfig()},
		Embed:       &stages.Embedding{Embedder: hash, Reporter: registry},
		StoreVector: &stages.VectorStore{Spaces: st, Backends: backends},
	})
	require.NoError(t, err)

	builder, err := service.NewGraphBuilder(service.BuilderConfig{
		Registry:   registry,
		Tasks:      st,
		Spaces:     st,
		Topologies: topo,
		Connector:  graph,
		Metrics:    mc,
		UploadDir:  t.TempDir(),
	})
	require.NoError(t, err)

	h := New(builder, service.NewTemplateService(st), service.NewSearchService(st, backends, hash), notifier, mc)
	srv := httptest.NewServer(h.Router())
	ts := &testServer{Server: srv, llm: model, graph: graph}

	t.Cleanup(func() {
		model.release()
		srv.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = builder.Shutdown(sctx)
		_ = st.Close(context.Background())
	})
	return ts
}

func (s *testServer) url(path string) string {
	return s.URL + config.APIPrefix + path
}

// do sends a request and decodes the envelope, with Data decoded into data.
func (s *testServer) do(t *testing.T, method, path string, body any, data any) (int, Result) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.url(path), rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req, data)
}

func (s *testServer) send(t *testing.T, req *http.Request, data any) (int, Result) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw struct {
		Result
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return resp.StatusCode, raw.Result
}

func (s *testServer) upload(t *testing.T, fields map[string]string, files map[string]string, data any) (int, Result) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.url("/upload"), &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(t, req, data)
}

func (s *testServer) waitStatus(t *testing.T, id string, status models.TaskStatus) models.Task {
	t.Helper()
	var task models.Task
	require.Eventually(t, func() bool {
		code, _ := s.do(t, http.MethodGet, "/tasks/"+id, nil, &task)
		return code == http.StatusOK && task.Status == status
	}, 5*time.Second, 20*time.Millisecond)
	return task
}

func TestHealthAndStats(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(s.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}

func TestUploadCreatesTaskAndCompletes(t *testing.T) {
	s := newTestServer(t)

	var task models.Task
	code, res := s.upload(t,
		map[string]string{"graph_space_name": "kg", "excel_mode": "text", "user_id": "alice"},
		map[string]string{"tencent.txt": "Tencent was founded in 1998 in Shenzhen."},
		&task)
	require.Equal(t, http.StatusOK, code, res.ErrMsg)
	assert.True(t, res.Success)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, "alice", task.UserID)
	require.Len(t, task.Files, 1)
	assert.Equal(t, "tencent.txt", task.Files[0].Name)

	s.llm.release()
	done := s.waitStatus(t, task.ID, models.TaskStatusCompleted)
	assert.Equal(t, 2, done.RelationsCount)
	assert.Equal(t, "completed", done.Files[0].Status)
	assert.Len(t, s.graph.Relations("kg"), 2)

	var page TaskPage
	code, _ = s.do(t, http.MethodGet, "/tasks?user_id=alice&status=completed", nil, &page)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)

	code, res = s.do(t, http.MethodPost, "/tasks/"+task.ID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, CodeConflict, res.ErrCode)

	var ref TaskRef
	code, _ = s.do(t, http.MethodDelete, "/tasks/"+task.ID, nil, &ref)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, TaskRef{Success: true, TaskID: task.ID}, ref)
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t)
	file := map[string]string{"people.xlsx": "x"}

	tests := []struct {
		name   string
		fields map[string]string
		files  map[string]string
	}{
		{"mapping mode without mapping", map[string]string{"excel_mode": "mapping"}, file},
		{"bad mode", map[string]string{"excel_mode": "spreadsheet"}, file},
		{"bad mapping json", map[string]string{"column_mapping": "{not json"}, file},
		{"bad workflow json", map[string]string{"workflow_config": "[1,"}, file},
		{"no files", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := s.upload(t, tt.fields, tt.files, nil)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, res.Success)
			assert.Equal(t, CodeInvalidRequest, res.ErrCode)
		})
	}
}

func TestUnknownTask(t *testing.T) {
	s := newTestServer(t)

	code, res := s.do(t, http.MethodGet, "/tasks/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, CodeNotFound, res.ErrCode)
	assert.Equal(t, "task not found", res.ErrMsg)

	code, _ = s.do(t, http.MethodDelete, "/tasks/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodPost, "/tasks/missing/cancel", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSpaces(t *testing.T) {
	s := newTestServer(t)

	var list SpaceList
	code, _ := s.do(t, http.MethodGet, "/spaces", nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"default"}, list.Spaces)

	var created SpaceCreated
	code, _ = s.do(t, http.MethodPost, "/spaces", map[string]string{"space_name": "hr"}, &created)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, SpaceCreated{Success: true, SpaceName: "hr"}, created)

	code, _ = s.do(t, http.MethodGet, "/spaces", nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"hr"}, list.Spaces)

	code, res := s.do(t, http.MethodPost, "/spaces", map[string]string{"space_name": "hr"}, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, res.Success)
}

func TestSearchSpace(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/spaces", map[string]string{"space_name": "kg"}, nil)
	require.Equal(t, http.StatusOK, code)

	var task models.Task
	code, _ = s.upload(t, map[string]string{"graph_space_name": "kg"},
		map[string]string{"tencent.txt": "Tencent was founded in 1998 in Shenzhen."}, &task)
	require.Equal(t, http.StatusOK, code)
	s.llm.release()
	require.Eventually(t, func() bool {
		var got models.Task
		code, _ := s.do(t, http.MethodGet, "/tasks/"+task.ID, nil, &got)
		return code == http.StatusOK && got.Status == models.TaskStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	var res SearchResults
	code, env := s.do(t, http.MethodGet, "/spaces/kg/search?q=Tencent+Shenzhen&limit=3", nil, &res)
	require.Equal(t, http.StatusOK, code, env.ErrMsg)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "Tencent was founded in 1998 in Shenzhen.", res.Matches[0].Content)
	assert.Equal(t, "tencent.txt", res.Matches[0].Metadata["doc_name"])

	code, env = s.do(t, http.MethodGet, "/spaces/kg/search", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, CodeInvalidRequest, env.ErrCode)

	code, _ = s.do(t, http.MethodGet, "/spaces/missing/search?q=x", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPrompts(t *testing.T) {
	s := newTestServer(t)

	var list []models.PromptTemplate
	code, _ := s.do(t, http.MethodGet, "/prompts?user_id=alice", nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, list)
	systemID := list[0].ID
	assert.True(t, list[0].IsSystem)

	var created models.PromptTemplate
	code, res := s.do(t, http.MethodPost, "/prompts?user_id=alice",
		models.TemplateInput{Name: "mine", PromptContent: "Extract."}, &created)
	require.Equal(t, http.StatusOK, code, res.ErrMsg)
	assert.Equal(t, "alice", created.UserID)

	code, res = s.do(t, http.MethodPost, "/prompts?user_id=bob",
		models.TemplateInput{Name: "mine", PromptContent: "dup"}, nil)
	assert.Equal(t, http.StatusConflict, code, res.ErrMsg)

	code, res = s.do(t, http.MethodDelete, "/prompts/"+systemID+"?user_id=alice", nil, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, CodeForbidden, res.ErrCode)

	code, _ = s.do(t, http.MethodPut, "/prompts/"+created.ID+"?user_id=bob", map[string]string{"name": "x"}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var updated models.PromptTemplate
	code, _ = s.do(t, http.MethodPut, "/prompts/"+created.ID+"?user_id=alice", map[string]string{"name": "renamed"}, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "renamed", updated.Name)

	code, _ = s.do(t, http.MethodDelete, "/prompts/"+created.ID+"?user_id=alice", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/prompts/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWebSocketStreamsProgress(t *testing.T) {
	s := newTestServer(t)

	var task models.Task
	code, _ := s.upload(t, map[string]string{"graph_space_name": "kg"},
		map[string]string{"tencent.txt": "Tencent was founded in 1998 in Shenzhen."}, &task)
	require.Equal(t, http.StatusOK, code)

	wsURL := "ws" + strings.TrimPrefix(s.url("/ws/task/"+task.ID), "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first service.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, service.EventProgress, first.Type)
	assert.Equal(t, task.ID, first.TaskID)

	// the model is still gated, so the pong must arrive before the run finishes
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	for {
		var ev service.Event
		require.NoError(t, conn.ReadJSON(&ev))
		require.NotEqual(t, service.EventCompleted, ev.Type)
		if ev.Type == "pong" {
			assert.Equal(t, task.ID, ev.TaskID)
			break
		}
	}
	s.llm.release()

	var sawImport bool
	for {
		var ev service.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == service.EventProgress && ev.Data != nil && ev.Data.Message == "importing graph" {
			sawImport = true
		}
		if ev.Type == service.EventCompleted {
			break
		}
	}
	assert.True(t, sawImport)
}

func TestWebSocketUnknownTask(t *testing.T) {
	s := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(s.url("/ws/task/missing"), "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
