// Package api exposes the knowledge graph service over HTTP and WebSocket.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/kgforge/internal/config"
	"github.com/raphaelgruber/kgforge/internal/metrics"
	"github.com/raphaelgruber/kgforge/internal/server"
	"github.com/raphaelgruber/kgforge/internal/service"
	"github.com/raphaelgruber/kgforge/internal/store"
)

// Result is the response envelope of every JSON endpoint.
type Result struct {
	Success bool   `json:"success"`
	ErrCode string `json:"err_code,omitempty"`
	ErrMsg  string `json:"err_msg,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Error codes carried in Result.ErrCode.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeForbidden      = "forbidden"
	CodeConflict       = "conflict"
	CodeInternal       = "internal"
)

// Handler serves the API.
type Handler struct {
	builder   *service.GraphBuilder
	templates *service.TemplateService
	search    *service.SearchService
	notifier  *service.Notifier
	metrics   *metrics.Collector
	upgrader  websocket.Upgrader

	// pingInterval is how often the websocket writer pings idle clients.
	pingInterval time.Duration
}

// New creates a handler.
func New(builder *service.GraphBuilder, templates *service.TemplateService, search *service.SearchService, notifier *service.Notifier, mc *metrics.Collector) *Handler {
	return &Handler{
		builder:   builder,
		templates: templates,
		search:    search,
		notifier:  notifier,
		metrics:   mc,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: 30 * time.Second,
	}
}

// Router returns the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), server.LoggingMiddleware())
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/stats", func(c *gin.Context) { c.JSON(http.StatusOK, h.metrics.Snapshot()) })

	kg := r.Group(config.APIPrefix)
	kg.POST("/upload", h.upload)
	kg.GET("/tasks", h.listTasks)
	kg.GET("/tasks/:id", h.getTask)
	kg.POST("/tasks/:id/cancel", h.cancelTask)
	kg.DELETE("/tasks/:id", h.deleteTask)
	kg.GET("/spaces", h.listSpaces)
	kg.POST("/spaces", h.createSpace)
	kg.GET("/spaces/:name/search", h.searchSpace)
	kg.GET("/ws/task/:id", h.watchTask)

	kg.GET("/prompts", h.listPrompts)
	kg.POST("/prompts", h.createPrompt)
	kg.GET("/prompts/:id", h.getPrompt)
	kg.PUT("/prompts/:id", h.updatePrompt)
	kg.DELETE("/prompts/:id", h.deletePrompt)
	return r
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Result{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, Result{Success: false, ErrCode: code, ErrMsg: msg})
}

// failErr maps service and store errors to a status and error code.
func failErr(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, CodeInternal
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		status, code = http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrTemplateNotFound),
		errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, service.ErrSystemTemplate),
		errors.Is(err, service.ErrPermissionDenied):
		status, code = http.StatusForbidden, CodeForbidden
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, store.ErrAlreadyExists):
		status, code = http.StatusConflict, CodeConflict
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	fail(c, status, code, err.Error())
}
