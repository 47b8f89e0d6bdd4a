// Package client provides a REST and WebSocket client for the kgforge server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/kgforge/internal/config"
	"github.com/raphaelgruber/kgforge/internal/models"
)

// Client talks to the knowledge graph API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses KGFORGE_URL or defaults to localhost:8484.
// Timeout can be configured via KGFORGE_CLIENT_TIMEOUT (default 5m for large uploads).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("KGFORGE_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("KGFORGE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a failed response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: %d", e.Status)
	}
	return fmt.Sprintf("server error: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// envelope is the response wrapper of every JSON endpoint.
type envelope struct {
	Success bool            `json:"success"`
	ErrCode string          `json:"err_code"`
	ErrMsg  string          `json:"err_msg"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) url(path string) string {
	return c.baseURL + config.APIPrefix + path
}

// do sends a JSON request and decodes the envelope's data into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) send(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		return &APIError{Status: resp.StatusCode, Code: env.ErrCode, Message: env.ErrMsg}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TASKS
// =============================================================================

// UploadOptions configures an upload.
type UploadOptions struct {
	Space          string
	Mode           string
	CustomPrompt   string
	ColumnMapping  string // JSON text
	WorkflowConfig string // JSON text
	UserID         string
}

// Upload sends files from disk and returns the created task.
// The multipart body is streamed, not buffered.
func (c *Client) Upload(ctx context.Context, paths []string, opts UploadOptions) (*models.Task, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUpload(mw, paths, opts))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/upload"), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var task models.Task
	if err := c.send(req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func writeUpload(mw *multipart.Writer, paths []string, opts UploadOptions) error {
	fields := map[string]string{
		"graph_space_name": opts.Space,
		"excel_mode":       opts.Mode,
		"custom_prompt":    opts.CustomPrompt,
		"column_mapping":   opts.ColumnMapping,
		"workflow_config":  opts.WorkflowConfig,
		"user_id":          opts.UserID,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	for _, path := range paths {
		if err := copyFile(mw, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

func copyFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// TaskQuery selects a page of tasks.
type TaskQuery struct {
	UserID string
	Status string
	Page   int
	Limit  int
}

// TaskPage is one page of tasks.
type TaskPage struct {
	Tasks []*models.Task `json:"tasks"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// Task fetches one task.
func (c *Client) Task(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Tasks lists tasks, newest first.
func (c *Client) Tasks(ctx context.Context, q TaskQuery) (*TaskPage, error) {
	v := url.Values{}
	if q.UserID != "" {
		v.Set("user_id", q.UserID)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/tasks"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var page TaskPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CancelTask marks a running task cancelled.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// =============================================================================
// SPACES
// =============================================================================

// Spaces lists graph space names.
func (c *Client) Spaces(ctx context.Context) ([]string, error) {
	var out struct {
		Spaces []string `json:"spaces"`
	}
	if err := c.do(ctx, http.MethodGet, "/spaces", nil, &out); err != nil {
		return nil, err
	}
	return out.Spaces, nil
}

// SearchHit is a stored chunk returned by a space search.
type SearchHit struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Search returns the chunks of space most similar to query.
func (c *Client) Search(ctx context.Context, space, query string, limit int) ([]SearchHit, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Matches []SearchHit `json:"matches"`
	}
	path := "/spaces/" + url.PathEscape(space) + "/search?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// CreateSpace creates a graph space.
func (c *Client) CreateSpace(ctx context.Context, name, vectorType, description string) error {
	body := map[string]string{"space_name": name}
	if vectorType != "" {
		body["vector_type"] = vectorType
	}
	if description != "" {
		body["description"] = description
	}
	return c.do(ctx, http.MethodPost, "/spaces", body, nil)
}

// =============================================================================
// PROMPTS
// =============================================================================

func withUser(path, userID string) string {
	if userID == "" {
		return path
	}
	return path + "?user_id=" + url.QueryEscape(userID)
}

// Prompts lists system templates plus the user's own.
func (c *Client) Prompts(ctx context.Context, userID string) ([]models.PromptTemplate, error) {
	var out []models.PromptTemplate
	if err := c.do(ctx, http.MethodGet, withUser("/prompts", userID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Prompt fetches one template.
func (c *Client) Prompt(ctx context.Context, id string) (*models.PromptTemplate, error) {
	var out models.PromptTemplate
	if err := c.do(ctx, http.MethodGet, "/prompts/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePrompt adds a user template.
func (c *Client) CreatePrompt(ctx context.Context, userID string, in models.TemplateInput) (*models.PromptTemplate, error) {
	var out models.PromptTemplate
	if err := c.do(ctx, http.MethodPost, withUser("/prompts", userID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePrompt removes a user template.
func (c *Client) DeletePrompt(ctx context.Context, userID, id string) error {
	return c.do(ctx, http.MethodDelete, withUser("/prompts/"+url.PathEscape(id), userID), nil, nil)
}

// =============================================================================
// PROGRESS
// =============================================================================

// Event types sent on the progress socket.
const (
	EventProgress  = "progress"
	EventCompleted = "task_completed"
	EventCancelled = "task_cancelled"
)

// Event is one progress message.
type Event struct {
	Type   string     `json:"type"`
	TaskID string     `json:"task_id"`
	Data   *EventData `json:"data,omitempty"`
}

// EventData is the task snapshot carried by an event.
type EventData struct {
	Progress  float64           `json:"progress"`
	Status    models.TaskStatus `json:"status"`
	Message   string            `json:"message"`
	FileNames []models.FileInfo `json:"file_names"`
}

// Terminal reports whether no further events follow ev.
func (ev Event) Terminal() bool {
	switch ev.Type {
	case EventCompleted, EventCancelled:
		return true
	}
	return ev.Data != nil && ev.Data.Status.Terminal()
}

// Watch streams the events of a task to onEvent until the task reaches a
// terminal state, onEvent returns an error, or ctx is cancelled.
func (c *Client) Watch(ctx context.Context, id string, onEvent func(Event) error) error {
	wsURL := c.url("/ws/task/" + url.PathEscape(id))
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return &APIError{Status: resp.StatusCode, Code: "not_found", Message: "task not found"}
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}
		if ev.Type == "pong" {
			continue
		}
		if err := onEvent(ev); err != nil {
			return err
		}
		if ev.Terminal() {
			return nil
		}
	}
}
