package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"timetracker/internal/auth"
	"timetracker/internal/logging"
	"timetracker/internal/middleware"
	"timetracker/internal/syncer"
)

type SyncHandler struct {
	b         *syncer.Broadcaster
	tokens    *auth.TokenService
	heartbeat time.Duration
	log       *logging.Logger
}

func NewSyncHandler(b *syncer.Broadcaster, tokens *auth.TokenService, heartbeat time.Duration, log *logging.Logger) *SyncHandler {
	return &SyncHandler{b: b, tokens: tokens, heartbeat: heartbeat, log: log}
}

// Stream holds the response open and writes push frames until the client
// goes away. The transport cannot carry custom headers, so the credential
// arrives as a token or sessionId query parameter. Each frame is
// `id:`/`event:`/`data:` terminated by a blank line; heartbeats are bare
// comment lines that parsers must skip.
func (h *SyncHandler) Stream(c *gin.Context) {
	userID, ok := h.resolveUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn := h.b.Register(userID)
	defer h.b.Deregister(conn.ID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case f, open := <-conn.Events:
			if !open {
				return
			}
			if err := sse.Encode(c.Writer, sse.Event{
				Id:    strconv.FormatInt(f.Seq, 10),
				Event: f.Name,
				Data:  f.Data,
			}); err != nil {
				h.log.Debugf("sync: write to %s failed, closing: %v", conn.ID, err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-ticker.C:
			if _, err := fmt.Fprintf(c.Writer, ":heartbeat %d\n\n", time.Now().Unix()); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// Status reports live-connection counts and the current sequence value.
// Read-only; no behavioral effect.
func (h *SyncHandler) Status(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	total, user := h.b.Counts(userID)
	c.JSON(http.StatusOK, gin.H{
		"totalClients": total,
		"userClients":  user,
		"eventCounter": h.b.Seq(),
	})
}

func (h *SyncHandler) resolveUser(c *gin.Context) (string, bool) {
	if t := strings.TrimSpace(c.Query("token")); t != "" && h.tokens.Enabled() {
		userID, err := h.tokens.Verify(t)
		if err != nil {
			return "", false
		}
		return userID, true
	}
	if sid := strings.TrimSpace(c.Query("sessionId")); sid != "" {
		return auth.SessionUserID(sid), true
	}
	return "", false
}
