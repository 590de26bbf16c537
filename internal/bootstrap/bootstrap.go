// Package bootstrap assembles the conversation from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/archofall1/ai-ap/internal/auth"
	"github.com/archofall1/ai-ap/internal/codec"
	"github.com/archofall1/ai-ap/internal/config"
	"github.com/archofall1/ai-ap/internal/service/ai"
	"github.com/archofall1/ai-ap/internal/service/assistant"
	"github.com/archofall1/ai-ap/internal/storage"
)

// App holds the wired components of one process run.
type App struct {
	Config       *config.Config
	Store        *storage.Store
	Conversation *assistant.Conversation
	Credential   auth.CredentialSource
}

// CredentialSource derives the token lookup chain from the config.
func CredentialSource(cfg *config.Config) auth.CredentialSource {
	return auth.CredentialSource{
		Name:        cfg.BasicConfig.CredentialName,
		EnvFile:     cfg.BasicConfig.EnvFile,
		SecretsFile: cfg.BasicConfig.SecretsFile,
	}
}

// New loads the config at path and wires the store, the models and the
// conversation. A missing credential is returned as auth.ErrMissingCredential.
func New(ctx context.Context, path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	source := CredentialSource(cfg)
	token, err := source.Lookup()
	if err != nil {
		return &App{Config: cfg, Credential: source}, err
	}

	log.Printf("store kind: %s", cfg.BasicConfig.StoreKind)
	kv, err := storage.OpenKV(cfg.BasicConfig.StoreKind, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := storage.NewStore(kv)

	collab, err := ai.NewCollaborators(ctx, cfg, token)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init models: %w", err)
	}

	conv := assistant.NewConversation(store, collab, assistant.Options{
		Cursor:       cfg.BasicConfig.Cursor,
		SystemPrompt: cfg.BasicConfig.SystemPrompt,
		EnergyLimit:  cfg.BasicConfig.EnergyLimit,
		Codec: codec.Options{
			Downscale: cfg.DownscaleEnabled(),
			MaxDim:    cfg.BasicConfig.ImageMaxDim,
			Quality:   cfg.BasicConfig.ImageQuality,
		},
	})
	conv.Init()

	return &App{Config: cfg, Store: store, Conversation: conv, Credential: source}, nil
}

// IsMissingCredential reports whether New failed for lack of a token.
func IsMissingCredential(err error) bool {
	return errors.Is(err, auth.ErrMissingCredential)
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
