package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Models      ModelsConfig              `json:"models"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// ModelSpec names one collaborator: which provider entry to use and which model on it.
type ModelSpec struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Enabled reports whether a provider is named.
func (m ModelSpec) Enabled() bool {
	return strings.TrimSpace(m.Provider) != ""
}

type ModelsConfig struct {
	Text     ModelSpec `json:"text"`
	Vision   ModelSpec `json:"vision"`
	Fallback ModelSpec `json:"fallback"`
	Image    ModelSpec `json:"image"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	StoreKind         string `json:"store_kind"`
	MaxTokens         int    `json:"max_tokens"`
	EnergyLimit       int    `json:"energy_limit"`
	Cursor            string `json:"cursor"`
	SystemPrompt      string `json:"system_prompt"`
	ImageMaxDim       int    `json:"image_max_dim"`
	ImageQuality      int    `json:"image_quality"`
	DownscaleImages   *bool  `json:"downscale_images"`
	CredentialName    string `json:"credential_name"`
	SecretsFile       string `json:"secrets_file"`
	EnvFile           string `json:"env_file"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	QueueSize         int    `json:"queue_size"`
}

const (
	DefaultServerAddress     = ":8090"
	DefaultStoreKind         = "sqlite3"
	DefaultMaxTokens         = 1000
	DefaultEnergyLimit       = 10
	DefaultCursor            = "▌"
	DefaultImageMaxDim       = 800
	DefaultImageQuality      = 85
	DefaultCredentialName    = "HF_TOKEN"
	DefaultSecretsFile       = ".streamlit/secrets.toml"
	DefaultEnvFile           = ".env"
	DefaultRequestsPerMinute = 30
	DefaultQueueSize         = 8
	DefaultSQLiteDSN         = "./data/chats.db"

	HuggingFaceRouterURL    = "https://router.huggingface.co/v1"
	HuggingFaceInferenceURL = "https://router.huggingface.co/hf-inference/models"

	defaultTextModel   = "HuggingFaceH4/zephyr-7b-beta"
	defaultVisionModel = "meta-llama/Llama-3.2-11B-Vision-Instruct"
	defaultImageModel  = "stabilityai/stable-diffusion-xl-base-1.0"
)

// Default returns the configuration used when no config file is present: a
// sqlite key-value file next to the working directory and the Hugging Face
// router for every collaborator.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Models.Vision = ModelSpec{Provider: "huggingface", Model: defaultVisionModel}
	cfg.Models.Image = ModelSpec{Provider: "huggingface", Model: defaultImageModel}
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; defaults are returned instead.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if sqliteCfg, ok := cfg.Databases["sqlite3"]; ok && sqliteCfg.DSN != "" && sqliteCfg.DSN != ":memory:" {
		if !filepath.IsAbs(sqliteCfg.DSN) {
			sqliteCfg.DSN = filepath.Join(filepath.Dir(absPath), sqliteCfg.DSN)
			cfg.Databases["sqlite3"] = sqliteCfg
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every enabled model spec references a configured provider.
func (c *Config) Validate() error {
	specs := map[string]ModelSpec{
		"text":     c.Models.Text,
		"vision":   c.Models.Vision,
		"fallback": c.Models.Fallback,
		"image":    c.Models.Image,
	}
	for name, spec := range specs {
		if !spec.Enabled() {
			continue
		}
		if _, ok := c.Providers[spec.Provider]; !ok {
			return fmt.Errorf("models.%s: provider %q not configured", name, spec.Provider)
		}
	}
	if !c.Models.Text.Enabled() {
		return errors.New("models.text must be configured")
	}
	return nil
}

// DownscaleEnabled reports whether uploads are resized before encoding.
func (c *Config) DownscaleEnabled() bool {
	if c.BasicConfig.DownscaleImages == nil {
		return true
	}
	return *c.BasicConfig.DownscaleImages
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = DefaultServerAddress
	}
	if b.StoreKind == "" {
		b.StoreKind = DefaultStoreKind
	}
	if b.MaxTokens <= 0 {
		b.MaxTokens = DefaultMaxTokens
	}
	if b.EnergyLimit <= 0 {
		b.EnergyLimit = DefaultEnergyLimit
	}
	if b.Cursor == "" {
		b.Cursor = DefaultCursor
	}
	if b.ImageMaxDim <= 0 {
		b.ImageMaxDim = DefaultImageMaxDim
	}
	if b.ImageQuality <= 0 || b.ImageQuality > 100 {
		b.ImageQuality = DefaultImageQuality
	}
	if b.CredentialName == "" {
		b.CredentialName = DefaultCredentialName
	}
	if b.SecretsFile == "" {
		b.SecretsFile = DefaultSecretsFile
	}
	if b.EnvFile == "" {
		b.EnvFile = DefaultEnvFile
	}
	if b.RequestsPerMinute <= 0 {
		b.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if b.QueueSize <= 0 {
		b.QueueSize = DefaultQueueSize
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if _, ok := c.Providers["huggingface"]; !ok {
		c.Providers["huggingface"] = ProviderConfig{BaseURL: HuggingFaceRouterURL}
	}
	if !c.Models.Text.Enabled() {
		c.Models.Text = ModelSpec{Provider: "huggingface", Model: defaultTextModel}
	}

	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if db, ok := c.Databases["sqlite3"]; !ok || db.DSN == "" {
		db.DSN = DefaultSQLiteDSN
		c.Databases["sqlite3"] = db
	}
}

func (c *Config) applyEnvOverrides() {
	if kind := os.Getenv("AIAP_STORE"); kind != "" {
		c.BasicConfig.StoreKind = kind
	}
	if addr := os.Getenv("AIAP_ADDR"); addr != "" {
		c.BasicConfig.ServerAddress = addr
	}
}
