package ai

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/archofall1/ai-ap/internal/models"
)

type Status int

const (
	StatusOK Status = iota
	StatusDegraded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WarningReducedCapability is raised once when a reply comes from the fallback model.
const WarningReducedCapability = "The primary model is unavailable, answering with reduced capability (images are ignored)."

type ErrorKind string

const (
	KindPayloadTooLarge ErrorKind = "payload_too_large"
	KindRateLimited     ErrorKind = "rate_limited"
	KindCanceled        ErrorKind = "canceled"
	KindProvider        ErrorKind = "provider"
)

// ProviderError is a failed completion, classified by its message text.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ClassifyError inspects the error text for known provider failure patterns.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindProvider
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "payload too large", "request entity too large", "413"):
		return KindPayloadTooLarge
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return KindRateLimited
	case containsAny(msg, "context deadline exceeded", "canceled"):
		return KindCanceled
	default:
		return KindProvider
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Result is the outcome of one streamed reply. Text holds whatever was
// produced, including a partial reply on failure.
type Result struct {
	Status  Status
	Text    string
	Warning string
	Err     *ProviderError
}

// Display receives the reply buffer after every fragment and once at the end.
type Display func(buffer string)

// Streamer drives one reply against Primary, falling back to Fallback once.
type Streamer struct {
	Primary      ChatModel
	Fallback     ChatModel
	Cursor       string
	SystemPrompt string
}

func (s *Streamer) Run(ctx context.Context, messages []models.Message, display Display) Result {
	if display == nil {
		display = func(string) {}
	}
	outbound := messages
	if s.SystemPrompt != "" {
		outbound = make([]models.Message, 0, len(messages)+1)
		outbound = append(outbound, models.Message{Role: models.RoleSystem, Content: models.Text(s.SystemPrompt)})
		outbound = append(outbound, messages...)
	}

	primaryText, err := s.attempt(ctx, s.Primary, outbound, display)
	if err == nil {
		display(primaryText)
		return Result{Status: StatusOK, Text: primaryText}
	}
	kind := ClassifyError(err)
	log.Printf("primary model failed (%s): %v", kind, err)

	if s.Fallback == nil || kind == KindCanceled {
		display(primaryText)
		return Result{Status: StatusFailed, Text: primaryText, Err: &ProviderError{Kind: kind, Err: err}}
	}

	fallbackText, err := s.attempt(ctx, s.Fallback, TextOnlyMessages(outbound), display)
	if err == nil {
		display(fallbackText)
		return Result{Status: StatusDegraded, Text: fallbackText, Warning: WarningReducedCapability}
	}
	log.Printf("fallback model failed: %v", err)

	partial := fallbackText
	if partial == "" {
		partial = primaryText
	}
	display(partial)
	return Result{
		Status:  StatusFailed,
		Text:    partial,
		Warning: WarningReducedCapability,
		Err:     &ProviderError{Kind: ClassifyError(err), Err: err},
	}
}

// attempt streams one reply. The returned text is the buffer so far, even on error.
func (s *Streamer) attempt(ctx context.Context, m ChatModel, messages []models.Message, display Display) (string, error) {
	if m == nil {
		return "", errNoModel
	}
	stream, err := m.Stream(ctx, messages)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var buffer strings.Builder
	for {
		token, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return buffer.String(), nil
		}
		if err != nil {
			return buffer.String(), err
		}
		if token == "" {
			continue
		}
		buffer.WriteString(token)
		display(buffer.String() + s.Cursor)
	}
}

// TextOnlyMessages drops every image from a message list.
func TextOnlyMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		out[i] = models.Message{Role: msg.Role, Content: msg.Content.TextOnly()}
	}
	return out
}
