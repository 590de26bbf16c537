package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/archofall1/ai-ap/internal/config"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ImageGenerator turns a prompt into encoded image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

const (
	ImageHTTPTimeout = 120 * time.Second
	maxImageBytes    = 20 << 20
)

// NewImageGenerator builds the generator for one models entry.
func NewImageGenerator(cfg *config.Config, spec config.ModelSpec, token string) (ImageGenerator, error) {
	provCfg, ok := cfg.Providers[spec.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", spec.Provider)
	}
	modelType := spec.Model
	if modelType == "" {
		modelType = provCfg.Model
	}
	if modelType == "" {
		return nil, fmt.Errorf("provider %s: image model name required", spec.Provider)
	}
	if provCfg.APIKey != "" {
		token = provCfg.APIKey
	}

	switch spec.Provider {
	case "openai":
		opts := []option.RequestOption{option.WithAPIKey(token)}
		if provCfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(provCfg.BaseURL))
		}
		return &openAIImageGenerator{
			client: openai.NewClient(opts...),
			model:  modelType,
		}, nil
	case "huggingface":
		return &hfImageGenerator{
			endpoint:   strings.TrimRight(config.HuggingFaceInferenceURL, "/") + "/" + modelType,
			token:      token,
			httpClient: &http.Client{Timeout: ImageHTTPTimeout},
		}, nil
	default:
		return nil, fmt.Errorf("provider %s does not support image generation", spec.Provider)
	}
}

type openAIImageGenerator struct {
	client openai.Client
	model  string
}

func (g *openAIImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.model),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("generate image: empty response")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return raw, nil
}

// hfImageGenerator posts the prompt to a text-to-image inference endpoint,
// which answers with the encoded image.
type hfImageGenerator struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func (g *hfImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"inputs": prompt})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(data))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return nil, fmt.Errorf("generate image: %s: %s", resp.Status, detail)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("generate image: unexpected content type %q", ct)
	}
	return data, nil
}
