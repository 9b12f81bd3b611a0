package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stockbt/jobs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamBacktest 通过 websocket 推送任务状态, 任务结束后关闭连接
func (h *Handler) StreamBacktest(c *gin.Context) {
	jobID := c.Param("id")

	// subscribe before reading the snapshot so no transition is missed
	updates, cancel := h.jobs.Subscribe(jobID)
	defer cancel()

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[API] ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	snapshot := jobs.StatusUpdate{
		JobID:    job.JobID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message,
		Error:    job.Error,
		At:       time.Now(),
	}
	if err := conn.WriteJSON(snapshot); err != nil {
		log.Printf("[API] ws write error: %v", err)
		return
	}
	if job.Status.Terminal() {
		closeWS(conn)
		return
	}

	// drain client frames so a closed socket ends the stream
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case u, open := <-updates:
			if !open {
				closeWS(conn)
				return
			}
			if u.Progress < snapshot.Progress && !u.Status.Terminal() {
				continue
			}
			if err := conn.WriteJSON(u); err != nil {
				log.Printf("[API] ws write error: %v", err)
				return
			}
		case <-gone:
			return
		}
	}
}

func closeWS(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
