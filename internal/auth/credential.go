package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

var ErrMissingCredential = errors.New("credential not found")

// CredentialSource lists where the bearer token is looked up, in order.
type CredentialSource struct {
	Name        string
	EnvFile     string
	SecretsFile string
}

// MissingMessage is shown to the operator when no source holds the token.
func (s CredentialSource) MissingMessage() string {
	return fmt.Sprintf("Missing API Key! Please add %s to your environment, .env or secrets.toml.", s.Name)
}

// Lookup returns the token from the process environment, the dotenv file,
// or the secrets file, whichever has it first.
func (s CredentialSource) Lookup() (string, error) {
	if s.Name == "" {
		return "", errors.New("credential name required")
	}
	if v := strings.TrimSpace(os.Getenv(s.Name)); v != "" {
		return v, nil
	}
	if s.EnvFile != "" {
		values, err := godotenv.Read(s.EnvFile)
		switch {
		case err == nil:
			if v := strings.TrimSpace(values[s.Name]); v != "" {
				return v, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("read %s: %w", s.EnvFile, err)
		}
	}
	if s.SecretsFile != "" {
		v, err := readSecret(s.SecretsFile, s.Name)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMissingCredential, s.Name)
}

// readSecret accepts the key at the top level or inside a [secrets] table.
func readSecret(path, name string) (string, error) {
	var doc map[string]any
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	if v, ok := doc[name].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	if table, ok := doc["secrets"].(map[string]any); ok {
		if v, ok := table[name].(string); ok {
			return strings.TrimSpace(v), nil
		}
	}
	return "", nil
}
