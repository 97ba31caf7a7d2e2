package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/titanous/json5"
)

// maxFetchLimit is the largest history page the bridge accepts.
const maxFetchLimit = 1000

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if cfg.Polling.TelegramFetchLimit > maxFetchLimit {
		cfg.Polling.TelegramFetchLimit = maxFetchLimit
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ENSEMBLE_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("ENSEMBLE_OPENAI_API_BASE", &c.Providers.OpenAI.APIBase)
	envStr("ENSEMBLE_BRIDGE_URL", &c.Bridge.BaseURL)
	envStr("ENSEMBLE_CHAT_ID", &c.Telegram.ChatID)
	envStr("ENSEMBLE_DATA_DIR", &c.DataDir)
	envStr("ENSEMBLE_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
}

// NodeSettings resolves the model configuration for a graph node. Falls back
// to the provider default model; ENSEMBLE_<NODE>_MODEL overrides the model
// per node (node names use underscores, e.g. ENSEMBLE_TRIGGER_ANALYSIS_MODEL).
func (c *Config) NodeSettings(node string) NodeSettings {
	ns, ok := c.Nodes[node]
	if !ok {
		ns = NodeSettings{Temperature: 0.7}
	}
	if ns.Model == "" {
		ns.Model = c.Providers.OpenAI.DefaultModel
	}
	if ns.Provider == "" {
		ns.Provider = "openai"
	}
	envKey := "ENSEMBLE_" + strings.ToUpper(strings.ReplaceAll(node, "-", "_")) + "_MODEL"
	if v := os.Getenv(envKey); v != "" {
		ns.Model = v
	}
	return ns
}
