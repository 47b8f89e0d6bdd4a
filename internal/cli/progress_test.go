package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kgforge/internal/client"
	"github.com/raphaelgruber/kgforge/internal/config"
	"github.com/raphaelgruber/kgforge/internal/models"
)

func event(typ string, status models.TaskStatus, progress float64, msg string) eventMsg {
	return eventMsg{
		Type:   typ,
		TaskID: "t1",
		Data:   &client.EventData{Progress: progress, Status: status, Message: msg},
	}
}

func update(t *testing.T, m tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next
}

func TestProgressModelCompletes(t *testing.T) {
	var m tea.Model = newProgressModel("t1")

	m = update(t, m, event(client.EventProgress, models.TaskStatusRunning, 40, "importing graph"))
	pm := m.(progressModel)
	assert.False(t, pm.done)
	assert.Contains(t, pm.renderContent(), "importing graph")
	assert.Contains(t, pm.renderContent(), "40.0%")

	m = update(t, m, event(client.EventCompleted, models.TaskStatusCompleted, 100, "processing complete: 2 triples, 1 vector chunks"))
	pm = m.(progressModel)
	assert.True(t, pm.done)
	assert.NoError(t, pm.err)
	assert.Contains(t, pm.renderContent(), "Completed")
}

func TestProgressModelFailure(t *testing.T) {
	var m tea.Model = newProgressModel("t1")
	m = update(t, m, event(client.EventProgress, models.TaskStatusFailed, 30, "processing failed: no graph connector"))
	pm := m.(progressModel)
	assert.True(t, pm.done)
	require.Error(t, pm.err)
	assert.Contains(t, pm.renderContent(), "no graph connector")
}

func TestProgressModelCancelled(t *testing.T) {
	var m tea.Model = newProgressModel("t1")
	m = update(t, m, eventMsg{Type: client.EventCancelled, TaskID: "t1"})
	pm := m.(progressModel)
	assert.True(t, pm.done)
	assert.True(t, pm.cancelled)
	assert.NoError(t, pm.err)
}

func TestProgressModelSocketError(t *testing.T) {
	var m tea.Model = newProgressModel("t1")
	m = update(t, m, watchDoneMsg{err: errors.New("connection reset")})
	pm := m.(progressModel)
	assert.True(t, pm.done)
	assert.ErrorContains(t, pm.err, "connection reset")

	// a socket closing after a terminal event is not an error
	m = newProgressModel("t1")
	m = update(t, m, event(client.EventCompleted, models.TaskStatusCompleted, 100, "done"))
	m = update(t, m, watchDoneMsg{err: errors.New("closed")})
	assert.NoError(t, m.(progressModel).err)
}

func TestPrintTaskProgress(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+config.APIPrefix+"/ws/task/{id}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range []string{
			`{"type":"progress","task_id":"t1","data":{"progress":10,"status":"running","message":"parsing files"}}`,
			`{"type":"progress","task_id":"t1","data":{"progress":60,"status":"failed","message":"processing failed: boom"}}`,
		} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		_, _, _ = conn.ReadMessage()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	err := printTaskProgress(context.Background(), client.New(srv.URL), "t1", &out)
	assert.EqualError(t, err, "task failed: boom")
	assert.Contains(t, out.String(), "parsing files")
	assert.Contains(t, out.String(), " 10.00%")
}

func TestReadJSONFile(t *testing.T) {
	got, err := readJSONFile("")
	require.NoError(t, err)
	assert.Empty(t, got)

	dir := t.TempDir()
	good := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"entity_columns":["name"]}`), 0o644))
	got, err = readJSONFile(good)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entity_columns":["name"]}`, got)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{nope`), 0o644))
	_, err = readJSONFile(bad)
	assert.Error(t, err)

	_, err = readJSONFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\t c", 10))
	assert.Equal(t, "腾讯公司...", preview("腾讯公司创始人", 4))
}
