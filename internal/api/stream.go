package api

import (
	"io"

	"github.com/gin-gonic/gin"
)

// streamEvents pushes coordination events to the client as server-sent
// events until the client disconnects or the broadcaster shuts down.
func (h *Handler) streamEvents(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(event.Kind(), event)
			return true
		}
	})
}
