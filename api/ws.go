package api

import (
	"log"
	"net/http"
	"time"

	"cineshorts/task"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin is policed by CORSMiddleware for the REST surface; the
	// socket accepts any origin like the rest of the local-tool API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressFrame is the recurring message on the progress stream. The terminal
// message replaces it: the full result for a completed task, or an error
// payload with progress reset to zero.
type progressFrame struct {
	TaskID   string      `json:"task_id"`
	Status   task.Status `json:"status"`
	Progress int         `json:"progress"`
	Message  string      `json:"message,omitempty"`
}

// handleProgress streams one task's state to one subscriber until the task
// reaches a terminal state or the subscriber disconnects. The loop polls at a
// fixed cadence, which bounds added latency by one interval. Disconnecting
// never affects the job itself.
func (h *Handler) handleProgress(c *gin.Context) {
	taskID := c.Param("taskId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for task %s: %v", taskID, err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(h.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		snap, ok := h.manager.Get(taskID)
		if !ok {
			conn.WriteJSON(gin.H{"status": "not_found", "task_id": taskID})
			h.closeStream(conn)
			return
		}

		if snap.Status.Terminal() {
			if snap.Status == task.StatusCompleted {
				// The cached artifact verbatim, so a subscriber cannot tell a
				// fresh completion from a cache hit.
				conn.WriteJSON(snap.Result)
			} else {
				conn.WriteJSON(gin.H{"status": task.StatusError, "progress": 0, "error": snap.Error})
			}
			h.closeStream(conn)
			return
		}

		if err := conn.WriteJSON(progressFrame{
			TaskID:   snap.ID,
			Status:   snap.Status,
			Progress: snap.Progress,
			Message:  snap.Message,
		}); err != nil {
			// Subscriber went away; the job keeps running.
			return
		}

		select {
		case <-ticker.C:
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Handler) closeStream(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
