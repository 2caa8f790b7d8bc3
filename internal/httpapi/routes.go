package httpapi

import (
	"net/http"
	"strconv"

	"github.com/Skyhug-AI/skyhug-backend/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, opts Opts) {
	router.GET("/healthz", handleHealth())
	router.GET("/tts-stream/:message_id", handleTTSStream(opts))
	router.POST("/summarize_conversation", handleSummarize(opts))
	router.POST("/cleanup_inactive", handleCleanup(opts))
}

type summarizeRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleSummarize(opts Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req summarizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if err := opts.Summarizer.SummarizeAndStore(c.Request.Context(), req.ConversationID); err != nil {
			opts.Logger.Error("summarize failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleCleanup(opts Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := opts.Summarizer.CloseInactive(c.Request.Context(), opts.CleanupInterval); err != nil {
			opts.Logger.Error("cleanup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleTTSStream(opts Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("message_id")
		snippet := 0
		if raw := c.Query("snippet"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "snippet must be an integer"})
				return
			}
			snippet = n
		}

		w := &audioWriter{c: c}
		err := opts.Speech.Stream(c.Request.Context(), id, snippet, w)
		if err == nil {
			if !w.started {
				w.begin()
			}
			return
		}
		if w.started {
			// Headers are gone; all that is left is to cut the stream.
			opts.Logger.Warn("speech stream interrupted", zap.String("message_id", id), zap.Error(err))
			c.Abort()
			return
		}
		status := apperr.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			opts.Logger.Error("speech stream failed", zap.String("message_id", id), zap.Error(err))
		}
		c.JSON(status, gin.H{"detail": apperr.Detail(err)})
	}
}

// audioWriter sends the audio headers on the first write, so errors raised
// before any audio can still become JSON responses.
type audioWriter struct {
	c       *gin.Context
	started bool
}

func (w *audioWriter) begin() {
	w.started = true
	h := w.c.Writer.Header()
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

func (w *audioWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.begin()
	}
	return w.c.Writer.Write(p)
}

func (w *audioWriter) Flush() {
	w.c.Writer.Flush()
}
