package config

import (
	"fmt"
	"os"
)

// AuthConfig represents git authentication configuration.
// Tokens and passwords are referenced by environment variable name so the
// secret value never lives in the config file and is read once per run.
type AuthConfig struct {
	Type        string `yaml:"type"` // "none", "ssh", "token", "basic"
	Username    string `yaml:"username,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	TokenEnv    string `yaml:"token_env,omitempty"`
	KeyPath     string `yaml:"key_path,omitempty"`
}

// Token resolves the configured token from the environment.
func (a *AuthConfig) Token() (string, error) {
	if a.TokenEnv == "" {
		return "", fmt.Errorf("token authentication requires token_env")
	}
	tok := os.Getenv(a.TokenEnv)
	if tok == "" {
		return "", fmt.Errorf("environment variable %s is not set", a.TokenEnv)
	}
	return tok, nil
}

// Password resolves the configured password from the environment.
func (a *AuthConfig) Password() (string, error) {
	if a.PasswordEnv == "" {
		return "", fmt.Errorf("basic authentication requires password_env")
	}
	pw := os.Getenv(a.PasswordEnv)
	if pw == "" {
		return "", fmt.Errorf("environment variable %s is not set", a.PasswordEnv)
	}
	return pw, nil
}
