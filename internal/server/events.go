package server

import (
	"io"
	"time"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/rpc"
	"github.com/gin-gonic/gin"
)

const eventsPath = "events"

type realtimeEventPayload struct {
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// handleEvents streams realtime messages for the session user as server-sent events.
func (h *httpHandler) handleEvents(c *gin.Context) {
	session := sessionFrom(c)
	if session == nil {
		h.writeError(c, eventsPath, rpc.Unauthorized())
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, session.UserID)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{Timestamp: time.Now().UTC()})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{Data: message.Payload, Timestamp: message.Timestamp})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{Timestamp: tick.UTC()})
			return true
		}
	})
}
