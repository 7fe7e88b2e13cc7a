package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file when present. Missing files are fine; secrets
// can equally arrive through the real environment.
func LoadEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// ApplyEnvOverrides layers environment variables over the file-based config.
// Only secrets and deploy-specific endpoints are overridable; strategy
// parameters stay in the config file where they are reviewable.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TRADEFUSE_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("TRADEFUSE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("TRADEFUSE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" && c.LLM.Provider == "deepseek" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TRADEFUSE_EXECUTION_ENDPOINT"); v != "" {
		c.Execution.Endpoint = v
		c.Execution.Mode = "http"
	}
	if v := os.Getenv("TRADEFUSE_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
		c.Metrics.Enabled = true
	}
	if v := os.Getenv("TRADEFUSE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}
