// Package config provides configuration for the devchat tool.
package config

import (
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the tool configuration.
type Config struct {
	// Backend settings
	APIBase string
	APIKey  string
	Model   string
	Stream  bool

	// Database
	DBPath string

	// History token ceiling per prompt; 0 means unlimited.
	TokenLimit int

	// Workflow commands
	WorkflowDir string

	// Requester identity
	UserName  string
	UserEmail string

	// Timeouts
	RequestTimeout time.Duration

	// HTTP facade
	HTTPAddr string
}

// Load loads configuration from environment variables.
func Load() *Config {
	home, _ := os.UserHomeDir()
	chatDir := filepath.Join(home, ".chat")

	cfg := &Config{
		APIBase:        getEnv("OPENAI_API_BASE", "https://api.openai.com"),
		APIKey:         getEnv("OPENAI_API_KEY", ""),
		Model:          getEnv("DEVCHAT_MODEL", "gpt-4"),
		Stream:         getEnvBool("DEVCHAT_STREAM", true),
		DBPath:         getEnv("DEVCHAT_DB", filepath.Join(chatDir, "prompts.db")),
		TokenLimit:     getEnvInt("DEVCHAT_TOKEN_LIMIT", 0),
		WorkflowDir:    getEnv("DEVCHAT_WORKFLOWS", filepath.Join(chatDir, "workflows")),
		UserName:       getEnv("DEVCHAT_USER", gitConfig("user.name")),
		UserEmail:      getEnv("DEVCHAT_EMAIL", gitConfig("user.email")),
		RequestTimeout: time.Duration(getEnvInt("DEVCHAT_TIMEOUT_MS", 300000)) * time.Millisecond,
		HTTPAddr:       getEnv("DEVCHAT_HTTP_ADDR", ":8080"),
	}

	if cfg.UserName == "" {
		if u, err := user.Current(); err == nil {
			cfg.UserName = u.Username
		}
	}
	if cfg.UserEmail == "" {
		cfg.UserEmail = cfg.UserName + "@localhost"
	}

	return cfg
}

// gitConfig reads one git config value, best effort.
func gitConfig(key string) string {
	out, err := exec.Command("git", "config", key).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
