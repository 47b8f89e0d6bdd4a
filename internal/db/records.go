package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/store"
)

var _ store.Store = (*Client)(nil)

type dataRow struct {
	Data string `json:"data"`
}

type countRow struct {
	Count int `json:"count"`
}

// rows runs sql and returns the data rows of the last statement.
func (c *Client) rows(ctx context.Context, sql string, vars map[string]any) ([]dataRow, error) {
	results, err := surrealdb.Query[[]dataRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[len(*results)-1].Result, nil
}

func (c *Client) count(ctx context.Context, sql string, vars map[string]any) (int, error) {
	results, err := surrealdb.Query[[]countRow](ctx, c.db, sql, vars)
	if err != nil {
		return 0, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

func decodeRows[T any](rows []dataRow) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := json.Unmarshal([]byte(r.Data), &v); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeOne[T any](rows []dataRow) (*T, error) {
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	var v T
	if err := json.Unmarshal([]byte(rows[0].Data), &v); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &v, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(b), nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func (c *Client) CreateTask(ctx context.Context, task *models.Task) error {
	data, err := encode(task)
	if err != nil {
		return err
	}
	_, err = c.rows(ctx, `
		CREATE type::record("task", $id) CONTENT {
			user_id: $user_id, status: $status, created_at: $created_at, data: $data
		} RETURN data
	`, map[string]any{
		"id": task.ID, "user_id": task.UserID, "status": string(task.Status),
		"created_at": task.CreatedAt.UnixNano(), "data": data,
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (c *Client) UpdateTask(ctx context.Context, task *models.Task) error {
	data, err := encode(task)
	if err != nil {
		return err
	}
	rows, err := c.rows(ctx, `
		UPDATE type::record("task", $id) SET status = $status, data = $data RETURN data
	`, map[string]any{"id": task.ID, "status": string(task.Status), "data": data})
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	rows, err := c.rows(ctx, `SELECT data FROM type::record("task", $id)`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return decodeOne[models.Task](rows)
}

func (c *Client) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, int, error) {
	f := filter.Normalize()
	where := "WHERE true"
	vars := map[string]any{"limit": f.Limit, "start": f.Offset()}
	if f.UserID != "" {
		where += " AND user_id = $user_id"
		vars["user_id"] = f.UserID
	}
	if f.Status != "" {
		where += " AND status = $status"
		vars["status"] = string(f.Status)
	}

	total, err := c.count(ctx, "SELECT count() AS count FROM task "+where+" GROUP ALL", vars)
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}
	rows, err := c.rows(ctx,
		"SELECT data, created_at FROM task "+where+" ORDER BY created_at DESC LIMIT $limit START $start", vars)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := decodeRows[*models.Task](rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	rows, err := c.rows(ctx, `
		DELETE file_detail WHERE task_id = $id;
		DELETE type::record("task", $id) RETURN BEFORE;
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) ListUnfinishedTasks(ctx context.Context) ([]*models.Task, error) {
	rows, err := c.rows(ctx, `
		SELECT data, created_at FROM task WHERE status IN [$pending, $running] ORDER BY created_at
	`, map[string]any{
		"pending": string(models.TaskStatusPending),
		"running": string(models.TaskStatusRunning),
	})
	if err != nil {
		return nil, fmt.Errorf("list unfinished tasks: %w", err)
	}
	return decodeRows[*models.Task](rows)
}

func (c *Client) SaveFileDetail(ctx context.Context, fd *models.FileDetail) error {
	data, err := encode(fd)
	if err != nil {
		return err
	}
	_, err = c.rows(ctx, `
		UPSERT type::record("file_detail", $id) CONTENT {
			task_id: $task_id, created_at: $created_at, data: $data
		} RETURN data
	`, map[string]any{"id": fd.ID, "task_id": fd.TaskID, "created_at": fd.CreatedAt.UnixNano(), "data": data})
	if err != nil {
		return fmt.Errorf("save file detail: %w", err)
	}
	return nil
}

func (c *Client) ListFileDetails(ctx context.Context, taskID string) ([]models.FileDetail, error) {
	rows, err := c.rows(ctx, `
		SELECT data, created_at FROM file_detail WHERE task_id = $task_id ORDER BY created_at
	`, map[string]any{"task_id": taskID})
	if err != nil {
		return nil, fmt.Errorf("list file details: %w", err)
	}
	return decodeRows[models.FileDetail](rows)
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

func (c *Client) CreateTemplate(ctx context.Context, t *models.PromptTemplate) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	_, err = c.rows(ctx, `
		CREATE type::record("prompt_template", $id) CONTENT {
			name: $name, is_system: $is_system, user_id: $user_id, created_at: $created_at, data: $data
		} RETURN data
	`, map[string]any{
		"id": t.ID, "name": t.Name, "is_system": t.IsSystem, "user_id": t.UserID,
		"created_at": t.CreatedAt.UnixNano(), "data": data,
	})
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (c *Client) UpdateTemplate(ctx context.Context, t *models.PromptTemplate) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	rows, err := c.rows(ctx, `
		UPDATE type::record("prompt_template", $id) SET name = $name, data = $data RETURN data
	`, map[string]any{"id": t.ID, "name": t.Name, "data": data})
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) GetTemplate(ctx context.Context, id string) (*models.PromptTemplate, error) {
	rows, err := c.rows(ctx, `SELECT data FROM type::record("prompt_template", $id)`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return decodeOne[models.PromptTemplate](rows)
}

func (c *Client) ListTemplates(ctx context.Context, userID string) ([]models.PromptTemplate, error) {
	rows, err := c.rows(ctx, `
		SELECT data, is_system, created_at FROM prompt_template
		WHERE is_system = true OR user_id = $user_id
		ORDER BY is_system DESC, created_at
	`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return decodeRows[models.PromptTemplate](rows)
}

func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	rows, err := c.rows(ctx, `DELETE type::record("prompt_template", $id) RETURN BEFORE`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) CountSystemTemplates(ctx context.Context) (int, error) {
	n, err := c.count(ctx, `SELECT count() AS count FROM prompt_template WHERE is_system = true GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count system templates: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Spaces, documents and chunk metadata
// ---------------------------------------------------------------------------

func (c *Client) CreateSpace(ctx context.Context, s *models.KnowledgeSpace) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	_, err = c.rows(ctx, `
		CREATE type::record("knowledge_space", $name) CONTENT { created_at: $created_at, data: $data } RETURN data
	`, map[string]any{"name": s.Name, "created_at": s.CreatedAt.UnixNano(), "data": data})
	if err != nil {
		return fmt.Errorf("create space: %w", err)
	}
	return nil
}

func (c *Client) GetSpace(ctx context.Context, name string) (*models.KnowledgeSpace, error) {
	rows, err := c.rows(ctx, `SELECT data FROM type::record("knowledge_space", $name)`, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	return decodeOne[models.KnowledgeSpace](rows)
}

func (c *Client) ListSpaces(ctx context.Context) ([]models.KnowledgeSpace, error) {
	rows, err := c.rows(ctx, `SELECT data, created_at FROM knowledge_space ORDER BY created_at`, nil)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	return decodeRows[models.KnowledgeSpace](rows)
}

func (c *Client) SaveDocument(ctx context.Context, d *models.KnowledgeDocument) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	_, err = c.rows(ctx, `
		UPSERT type::record("knowledge_document", $id) CONTENT {
			space: $space, name: $name, created_at: $created_at, data: $data
		} RETURN data
	`, map[string]any{"id": d.ID, "space": d.Space, "name": d.Name, "created_at": d.CreatedAt.UnixNano(), "data": data})
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (c *Client) FindDocument(ctx context.Context, space, name string) (*models.KnowledgeDocument, error) {
	rows, err := c.rows(ctx, `
		SELECT data FROM knowledge_document WHERE space = $space AND name = $name LIMIT 1
	`, map[string]any{"space": space, "name": name})
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return decodeOne[models.KnowledgeDocument](rows)
}

func (c *Client) ListDocuments(ctx context.Context, space string) ([]models.KnowledgeDocument, error) {
	rows, err := c.rows(ctx, `
		SELECT data, created_at FROM knowledge_document WHERE space = $space ORDER BY created_at
	`, map[string]any{"space": space})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return decodeRows[models.KnowledgeDocument](rows)
}

func (c *Client) SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	records := make([]map[string]any, 0, len(chunks))
	for i := range chunks {
		data, err := encode(&chunks[i])
		if err != nil {
			return err
		}
		records = append(records, map[string]any{
			"id":          chunks[i].ID,
			"space":       chunks[i].Space,
			"doc_name":    chunks[i].DocName,
			"chunk_index": chunks[i].ChunkIndex,
			"data":        data,
		})
	}
	_, err := c.rows(ctx, `
		FOR $r IN $records {
			UPSERT type::record("document_chunk", $r.id) CONTENT {
				space: $r.space, doc_name: $r.doc_name, chunk_index: $r.chunk_index, data: $r.data
			};
		};
	`, map[string]any{"records": records})
	if err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

func (c *Client) ListChunks(ctx context.Context, space, docName string) ([]models.DocumentChunk, error) {
	where := "WHERE space = $space"
	vars := map[string]any{"space": space}
	if docName != "" {
		where += " AND doc_name = $doc_name"
		vars["doc_name"] = docName
	}
	rows, err := c.rows(ctx,
		"SELECT data, doc_name, chunk_index FROM document_chunk "+where+" ORDER BY doc_name, chunk_index", vars)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return decodeRows[models.DocumentChunk](rows)
}
