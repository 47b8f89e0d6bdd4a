package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/kgforge/internal/service"
)

const wsWriteWait = 10 * time.Second

// watchTask streams the events of one task over a websocket. The current task
// state is sent first. A text "ping" from the client is answered with a pong
// event; the subscription ends when the socket closes.
func (h *Handler) watchTask(c *gin.Context) {
	id := c.Param("id")
	task, err := h.builder.Task(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "task_id", id, "error", err)
		return
	}
	defer conn.Close()

	sub := h.notifier.Subscribe(id)
	defer sub.Close()
	slog.Info("websocket connected", "task_id", id, "subscribers", h.notifier.Subscribers(id))

	pings := make(chan struct{}, 1)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	send := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(v); err != nil {
			slog.Debug("websocket write failed", "task_id", id, "error", err)
			return false
		}
		return true
	}

	if !send(service.ProgressEvent(view(task))) {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, open := <-sub.Events():
			if !open || !send(ev) {
				return
			}
		case <-pings:
			if !send(service.Event{Type: "pong", TaskID: id}) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			slog.Info("websocket disconnected", "task_id", id)
			return
		}
	}
}
