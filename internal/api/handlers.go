package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/archofall1/ai-ap/internal/codec"
	"github.com/archofall1/ai-ap/internal/models"
	"github.com/archofall1/ai-ap/internal/service/ai"
	"github.com/archofall1/ai-ap/internal/service/assistant"
	"github.com/archofall1/ai-ap/internal/storage"
	"github.com/archofall1/ai-ap/internal/worker"
)

const (
	maxUploadBytes = 10 << 20
	streamTimeout  = 2 * time.Minute
)

// Dispatcher serializes conversation mutations.
type Dispatcher interface {
	Do(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Handler wires HTTP routes to the conversation.
type Handler struct {
	conv    *assistant.Conversation
	workers Dispatcher
	limiter *rate.Limiter
}

// NewHandler constructs a Handler. requestsPerMinute bounds POST /api/chat.
func NewHandler(conv *assistant.Conversation, workers Dispatcher, requestsPerMinute int) *Handler {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	every := time.Minute / time.Duration(requestsPerMinute)
	return &Handler{
		conv:    conv,
		workers: workers,
		limiter: rate.NewLimiter(rate.Every(every), requestsPerMinute),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.health)
	api.GET("/conversation", h.getConversation)
	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.newChat)
	api.POST("/sessions/:id/switch", h.switchSession)
	api.DELETE("/sessions/:id", h.deleteSession)
	api.DELETE("/sessions", h.clearSessions)
	api.POST("/chat", h.rateLimit(), h.chat)
}

func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please slow down"})
			return
		}
		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getConversation(c *gin.Context) {
	c.JSON(http.StatusOK, h.conv.Snapshot())
}

func (h *Handler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.conv.Sessions(c.Request.Context())})
}

func (h *Handler) newChat(c *gin.Context) {
	var snap assistant.Snapshot
	err := h.workers.Do(c.Request.Context(), "new-chat", func(context.Context) error {
		snap = h.conv.NewChat()
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *Handler) switchSession(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var snap assistant.Snapshot
	err := h.workers.Do(c.Request.Context(), "switch", func(ctx context.Context) error {
		var err error
		snap, err = h.conv.SwitchTo(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) deleteSession(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var snap assistant.Snapshot
	err := h.workers.Do(c.Request.Context(), "delete", func(ctx context.Context) error {
		var err error
		snap, err = h.conv.Delete(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) clearSessions(c *gin.Context) {
	var snap assistant.Snapshot
	err := h.workers.Do(c.Request.Context(), "clear", func(ctx context.Context) error {
		var err error
		snap, err = h.conv.ClearAll(ctx)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type chatRequest struct {
	Content string `json:"content"`
	// Image is an optional base64 payload, with or without a data URI prefix.
	Image string `json:"image"`
}

func (h *Handler) chat(c *gin.Context) {
	text, image, ok := readChatInput(c)
	if !ok {
		return
	}
	if strings.TrimSpace(text) == "" && len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": assistant.ErrEmptyInput.Error()})
		return
	}

	streamCtx, cancel := context.WithTimeout(c.Request.Context(), streamTimeout)
	defer cancel()
	// SSE Request construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	started := false
	sendEvent := func(event string, payload interface{}) error {
		if !started {
			c.Writer.Header().Set("Content-Type", "text/event-stream")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.Header().Set("Connection", "keep-alive")
			c.Writer.Header().Set("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	var res assistant.TurnResult
	err := h.workers.Do(streamCtx, "chat", func(ctx context.Context) error {
		var err error
		res, err = h.conv.Send(ctx, assistant.Input{
			Text:  text,
			Image: image,
			OnAccepted: func(m models.Message) {
				_ = sendEvent("ack", gin.H{"message": m})
			},
		}, func(buffer string) {
			_ = sendEvent("stream", gin.H{"content": buffer})
		})
		return err
	})

	if !started {
		// rejected before anything was streamed
		if err == nil {
			err = errors.New("turn produced no output")
		}
		writeError(c, err)
		return
	}
	if res.ImagesDropped {
		_ = sendEvent("warning", gin.H{"message": "Out of energy: the image was ignored and the text model answered."})
	}
	if res.Warning != "" {
		_ = sendEvent("warning", gin.H{"message": res.Warning})
	}
	if res.Reply != nil && res.Reply.Content.Kind() == models.KindImage {
		data, mediaType := res.Reply.Content.ImageData()
		_ = sendEvent("image", gin.H{
			"media_type": mediaType,
			"data":       base64.StdEncoding.EncodeToString(data),
		})
	}
	if err != nil {
		log.Printf("chat turn failed: %v", err)
		_ = sendEvent("error", gin.H{"message": err.Error()})
	}
	payload := gin.H{
		"user_message": res.User,
		"status":       res.Status.String(),
	}
	if res.Reply != nil {
		payload["ai_message"] = res.Reply
	}
	if res.Session.Title != "" {
		payload["title"] = res.Session.Title
	}
	_ = sendEvent("done", payload)
}

// readChatInput accepts JSON or a multipart form with an optional image file.
func readChatInput(c *gin.Context) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+1<<20)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return "", nil, false
		}
		text := c.PostForm("content")
		file, err := c.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return text, nil, true
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image field"})
			return "", nil, false
		}
		if file.Size > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return "", nil, false
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
			return "", nil, false
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return "", nil, false
		}
		if !checkUpload(c, data) {
			return "", nil, false
		}
		return text, data, true
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return "", nil, false
	}
	if req.Image == "" {
		return req.Content, nil, true
	}
	payload := req.Image
	if _, rest, found := strings.Cut(payload, ";base64,"); found {
		payload = rest
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image must be base64"})
		return "", nil, false
	}
	if !checkUpload(c, data) {
		return "", nil, false
	}
	return req.Content, data, true
}

func checkUpload(c *gin.Context, data []byte) bool {
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return false
	}
	if !codec.AllowedMediaType(codec.DetectMediaType(data)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var perr *ai.ProviderError
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		return
	case errors.Is(err, assistant.ErrEmptyInput), errors.Is(err, codec.ErrUndecodableImage),
		errors.Is(err, models.ErrEmptyContent), errors.Is(err, models.ErrInvalidRole):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	case errors.As(err, &perr) && perr.Kind == ai.KindPayloadTooLarge:
		status = http.StatusRequestEntityTooLarge
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
