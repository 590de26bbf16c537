package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/archofall1/ai-ap/internal/models"

	"github.com/ollama/ollama/api"
)

const defaultOllamaURL = "http://localhost:11434"

type ollamaChatModel struct {
	client    *api.Client
	model     string
	maxTokens int
}

func newOllamaChatModel(baseURL, model string, maxTokens int) (*ollamaChatModel, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return &ollamaChatModel{
		client:    api.NewClient(parsedURL, http.DefaultClient),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Stream runs the callback-driven ollama chat on its own goroutine and hands
// fragments over a channel.
func (o *ollamaChatModel) Stream(ctx context.Context, messages []models.Message) (TokenStream, error) {
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(messages),
		Stream:   func(b bool) *bool { return &b }(true),
	}
	if o.maxTokens > 0 {
		req.Options = map[string]any{"num_predict": o.maxTokens}
	}

	ctx, cancel := context.WithCancel(ctx)
	stream := &ollamaStream{tokens: make(chan string), cancel: cancel}
	go func() {
		defer close(stream.tokens)
		stream.err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			select {
			case stream.tokens <- resp.Message.Content:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return stream, nil
}

type ollamaStream struct {
	tokens chan string
	cancel context.CancelFunc
	// written before tokens is closed
	err error
}

func (s *ollamaStream) Recv() (string, error) {
	token, ok := <-s.tokens
	if ok {
		return token, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *ollamaStream) Close() {
	s.cancel()
	for range s.tokens {
	}
}

func toOllamaMessages(history []models.Message) []api.Message {
	out := make([]api.Message, 0, len(history))
	for _, msg := range history {
		m := api.Message{Role: string(msg.Role)}
		switch msg.Content.Kind() {
		case models.KindText:
			m.Content = msg.Content.Text()
		case models.KindParts:
			m.Content = msg.Content.PlainText()
			for _, part := range msg.Content.PartList() {
				if part.Kind != models.PartImage {
					continue
				}
				if raw, ok := decodeDataURI(part.URL); ok {
					m.Images = append(m.Images, api.ImageData(raw))
				}
			}
		case models.KindImage:
			m.Content = generatedImagePlaceholder
		}
		out = append(out, m)
	}
	return out
}

func decodeDataURI(uri string) ([]byte, bool) {
	_, payload, found := strings.Cut(uri, ";base64,")
	if !found {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	return raw, true
}
