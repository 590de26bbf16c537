package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/archofall1/ai-ap/internal/config"
	"github.com/archofall1/ai-ap/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// TokenStream yields reply fragments. Recv returns io.EOF once the reply is complete.
type TokenStream interface {
	Recv() (string, error)
	Close()
}

// ChatModel opens a streamed completion for a message list.
type ChatModel interface {
	Stream(ctx context.Context, messages []models.Message) (TokenStream, error)
}

// Collaborators are the models one process talks to. Only Text is mandatory.
type Collaborators struct {
	Text     ChatModel
	Vision   ChatModel
	Fallback ChatModel
	Image    ImageGenerator
}

// chatModelFactory is swapped in tests.
var chatModelFactory = NewChatModel

// NewCollaborators builds every configured model. token is used for any
// provider that carries no api_key of its own.
func NewCollaborators(ctx context.Context, cfg *config.Config, token string) (*Collaborators, error) {
	var (
		out Collaborators
		err error
	)
	out.Text, err = chatModelFactory(ctx, cfg, cfg.Models.Text, token)
	if err != nil {
		return nil, fmt.Errorf("text model: %w", err)
	}
	if cfg.Models.Vision.Enabled() {
		if out.Vision, err = chatModelFactory(ctx, cfg, cfg.Models.Vision, token); err != nil {
			return nil, fmt.Errorf("vision model: %w", err)
		}
	}
	if cfg.Models.Fallback.Enabled() {
		if out.Fallback, err = chatModelFactory(ctx, cfg, cfg.Models.Fallback, token); err != nil {
			return nil, fmt.Errorf("fallback model: %w", err)
		}
	}
	if cfg.Models.Image.Enabled() {
		if out.Image, err = NewImageGenerator(cfg, cfg.Models.Image, token); err != nil {
			return nil, fmt.Errorf("image model: %w", err)
		}
	}
	return &out, nil
}

// NewChatModel builds the chat collaborator for one models entry.
func NewChatModel(ctx context.Context, cfg *config.Config, spec config.ModelSpec, token string) (ChatModel, error) {
	provCfg, ok := cfg.Providers[spec.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", spec.Provider)
	}
	modelType := spec.Model
	if modelType == "" {
		modelType = provCfg.Model
	}
	if modelType == "" {
		return nil, fmt.Errorf("provider %s: model name required", spec.Provider)
	}
	if provCfg.APIKey != "" {
		token = provCfg.APIKey
	}
	maxTokens := cfg.BasicConfig.MaxTokens

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch spec.Provider {
	case "openai", "huggingface":
		baseURL := provCfg.BaseURL
		if baseURL == "" && spec.Provider == "huggingface" {
			baseURL = config.HuggingFaceRouterURL
		}
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   baseURL,
			Model:     modelType,
			APIKey:    token,
			MaxTokens: &maxTokens,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: token,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client:    client,
			Model:     modelType,
			MaxTokens: &maxTokens,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    token,
			Model:     modelType,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	case "ollama":
		return newOllamaChatModel(provCfg.BaseURL, modelType, maxTokens)
	default:
		return nil, fmt.Errorf("invalid provider: %s", spec.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", spec.Provider, err)
	}
	log.Printf("chat model ready: %s/%s", spec.Provider, modelType)
	return &einoChatModel{inner: chatModel}, nil
}

type einoChatModel struct {
	inner model.BaseChatModel
}

func (m *einoChatModel) Stream(ctx context.Context, messages []models.Message) (TokenStream, error) {
	reader, err := m.inner.Stream(ctx, toSchemaMessages(messages))
	if err != nil {
		return nil, fmt.Errorf("generate ai stream failed: %w", err)
	}
	return &einoStream{reader: reader}, nil
}

type einoStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *einoStream) Recv() (string, error) {
	chunk, err := s.reader.Recv()
	if err != nil {
		return "", err
	}
	if chunk == nil {
		return "", nil
	}
	return chunk.Content, nil
}

func (s *einoStream) Close() {
	s.reader.Close()
}

func toSchemaRole(role models.Role) schema.RoleType {
	switch role {
	case models.RoleAssistant:
		return schema.Assistant
	case models.RoleSystem:
		return schema.System
	default:
		return schema.User
	}
}

// toSchemaMessages converts history into eino messages. Generated images are
// not sent back to the model.
func toSchemaMessages(history []models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		out := &schema.Message{Role: toSchemaRole(msg.Role)}
		switch msg.Content.Kind() {
		case models.KindText:
			out.Content = msg.Content.Text()
		case models.KindParts:
			for _, part := range msg.Content.PartList() {
				switch part.Kind {
				case models.PartImage:
					out.MultiContent = append(out.MultiContent, schema.ChatMessagePart{
						Type:     schema.ChatMessagePartTypeImageURL,
						ImageURL: &schema.ChatMessageImageURL{URL: part.URL},
					})
				case models.PartText:
					out.MultiContent = append(out.MultiContent, schema.ChatMessagePart{
						Type: schema.ChatMessagePartTypeText,
						Text: part.Text,
					})
				}
			}
		case models.KindImage:
			out.Content = generatedImagePlaceholder
		}
		messages = append(messages, out)
	}
	return messages
}

const generatedImagePlaceholder = "[generated image]"

var errNoModel = errors.New("no chat model configured")
