package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamhaven/mediasync/pkg/models"
)

// streamEvents serves the admin event stream. Each connection gets its
// own buffered channel in the hub; a connection that cannot keep up is
// dropped by the hub without affecting other subscribers.
func (api *API) streamEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	connID := uuid.New().String()
	client := api.hub.AddClient(connID)
	defer api.hub.RemoveClient(connID)

	logger := api.logger.WithConnectionID(connID)
	logger.WithField("client_ip", c.ClientIP()).Info("Event stream connected")
	defer logger.Info("Event stream disconnected")

	// Confirm the subscription before any broadcast arrives
	if err := writeFrame(c.Writer, models.BroadcastConnected, json.RawMessage(`{}`)); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := newHeartbeat(api.cfg.Broadcast.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-client.Events():
			if !ok {
				// Hub shut down or dropped this connection
				return
			}
			if err := writeFrame(c.Writer, event.Name, event.Data); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// heartbeat wraps an optional ticker; a zero interval disables it and
// leaves C nil, which never fires in a select.
type heartbeat struct {
	C      <-chan time.Time
	ticker *time.Ticker
}

func newHeartbeat(interval time.Duration) *heartbeat {
	if interval <= 0 {
		return &heartbeat{}
	}
	t := time.NewTicker(interval)
	return &heartbeat{C: t.C, ticker: t}
}

func (h *heartbeat) Stop() {
	if h.ticker != nil {
		h.ticker.Stop()
	}
}

// writeFrame emits one named server-sent event.
func writeFrame(w io.Writer, name string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
