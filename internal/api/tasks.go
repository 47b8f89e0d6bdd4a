package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/service"
	"github.com/raphaelgruber/kgforge/internal/vectorstore"
)

// TaskPage is one page of the task list.
type TaskPage struct {
	Tasks []*models.Task `json:"tasks"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// TaskRef acknowledges an operation on a task.
type TaskRef struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
}

// SpaceList is the payload of GET /spaces.
type SpaceList struct {
	Spaces []string `json:"spaces"`
}

// SpaceCreated is the payload of POST /spaces.
type SpaceCreated struct {
	Success   bool   `json:"success"`
	SpaceName string `json:"space_name"`
}

// SearchResults is the payload of GET /spaces/:name/search.
type SearchResults struct {
	Matches []vectorstore.Match `json:"matches"`
}

// view is the task as returned to clients.
func view(t *models.Task) *models.Task {
	t.Files = t.FileSnapshot()
	return t
}

// param reads a form field, falling back to the query string.
func param(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}

func (h *Handler) upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidRequest, "multipart form with files is required")
		return
	}

	mode, err := models.ParseExtractionMode(param(c, "excel_mode"))
	if err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	mapping, err := models.ParseColumnMapping(param(c, "column_mapping"))
	if err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	var workflow map[string]any
	if raw := param(c, "workflow_config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &workflow); err != nil {
			fail(c, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("invalid workflow_config: %v", err))
			return
		}
	}

	headers := form.File["files"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("open %s: %v", fh.Filename, err))
			return
		}
		defer f.Close()
		files = append(files, service.UploadFile{Name: fh.Filename, Reader: f})
	}

	task, err := h.builder.Upload(c.Request.Context(), service.UploadRequest{
		Files:          files,
		GraphSpace:     param(c, "graph_space_name"),
		Mode:           mode,
		CustomPrompt:   param(c, "custom_prompt"),
		ColumnMapping:  mapping,
		WorkflowConfig: workflow,
		UserID:         param(c, "user_id"),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	slog.Info("upload accepted", "task_id", task.ID, "files", len(files), "mode", mode)
	ok(c, view(task))
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.builder.Task(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, view(task))
}

func (h *Handler) listTasks(c *gin.Context) {
	filter := models.TaskFilter{
		UserID: c.Query("user_id"),
		Status: models.TaskStatus(c.Query("status")),
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", 20),
	}.Normalize()
	if filter.Status != "" && !filter.Status.Valid() {
		fail(c, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("unknown status %q", filter.Status))
		return
	}

	tasks, total, err := h.builder.Tasks(c.Request.Context(), filter)
	if err != nil {
		failErr(c, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	for _, t := range tasks {
		view(t)
	}
	ok(c, TaskPage{Tasks: tasks, Total: total, Page: filter.Page, Limit: filter.Limit})
}

func (h *Handler) cancelTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.builder.Cancel(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, TaskRef{Success: true, TaskID: id})
}

func (h *Handler) deleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.builder.Delete(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, TaskRef{Success: true, TaskID: id})
}

func (h *Handler) listSpaces(c *gin.Context) {
	ok(c, SpaceList{Spaces: h.builder.ListSpaces(c.Request.Context())})
}

func (h *Handler) createSpace(c *gin.Context) {
	var req service.SpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	if err := h.builder.CreateSpace(c.Request.Context(), req); err != nil {
		failErr(c, err)
		return
	}
	ok(c, SpaceCreated{Success: true, SpaceName: req.Name})
}

func (h *Handler) searchSpace(c *gin.Context) {
	matches, err := h.search.Search(c.Request.Context(), service.SearchOptions{
		Space: c.Param("name"),
		Query: c.Query("q"),
		Limit: queryInt(c, "limit", 0),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, SearchResults{Matches: matches})
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}
