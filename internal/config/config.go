// Package config loads the supervisor configuration from a JSON5 file with
// environment-variable overrides.
package config

// Config is the root configuration.
type Config struct {
	Telegram    TelegramConfig          `json:"telegram"`
	Polling     PollingConfig           `json:"polling"`
	HITL        HITLConfig              `json:"hitl"`
	Personality PersonalityConfig       `json:"personality_analysis"`
	Agents      []AgentSpec             `json:"agents"`
	Providers   ProvidersConfig         `json:"providers"`
	Nodes       map[string]NodeSettings `json:"nodes"`
	Bridge      BridgeConfig            `json:"bridge"`
	Telemetry   TelemetryConfig         `json:"telemetry"`

	DataDir        string `json:"data_dir"`
	LogsDir        string `json:"logs_dir"`
	CheckpointPath string `json:"checkpoint_path"`
}

// TelegramConfig identifies the group chat the supervisor owns.
type TelegramConfig struct {
	ChatID string `json:"chat_id"`
}

// PollingConfig controls the run-loop cadence and window sizes.
type PollingConfig struct {
	MessageCheckIntervalSeconds int `json:"message_check_interval_seconds"`
	TelegramFetchLimit          int `json:"telegram_fetch_limit"`
	MaxRecentMessages           int `json:"max_recent_messages"`
	MaxInitialActionsPerAgent   int `json:"max_initial_actions_per_agent"`
	SendCooldownSeconds         int `json:"send_cooldown_seconds"`
	IdleSleepSeconds            int `json:"idle_sleep_seconds"`
}

// HITLConfig controls the human-approval gate.
type HITLConfig struct {
	Enabled             bool   `json:"enabled"`
	StateDir            string `json:"state_dir"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

// PenaltyConfig reduces trait confidence for users with few messages.
type PenaltyConfig struct {
	Enabled                   bool    `json:"enabled"`
	MinMessagesFullConfidence int     `json:"min_messages_full_confidence"`
	PenaltyFactor             float64 `json:"penalty_factor"`
}

// PersonalityConfig controls the Big-Five analyzer.
type PersonalityConfig struct {
	MinMessagesForAnalysis      int                `json:"min_messages_for_analysis"`
	ConfidenceThresholds        map[string]float64 `json:"confidence_thresholds"`
	Penalty                     PenaltyConfig      `json:"message_count_confidence_penalty"`
	StopReanalysisWhenConfident bool               `json:"stop_reanalysis_when_confident"`
	TraitTimeoutSeconds         int                `json:"trait_timeout_seconds"`
}

// AgentSpec binds a persona file to an agent slot.
type AgentSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	AgentGoal   string `json:"agent_goal"`
	PersonaFile string `json:"persona_file"`
	Username    string `json:"username"`
}

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey       string `json:"api_key"`
	APIBase      string `json:"api_base"`
	DefaultModel string `json:"default_model"`
}

// ProvidersConfig groups provider credentials.
type ProvidersConfig struct {
	OpenAI ProviderConfig `json:"openai"`
}

// NodeSettings is the per-node model configuration.
type NodeSettings struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Provider    string  `json:"provider"`
}

// BridgeConfig points at the chat-transport bridge API.
type BridgeConfig struct {
	BaseURL        string  `json:"base_url"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	RatePerSecond  float64 `json:"rate_per_second"`
}

// TelemetryConfig enables optional OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Insecure    bool   `json:"insecure"`
	ServiceName string `json:"service_name"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Polling: PollingConfig{
			MessageCheckIntervalSeconds: 10,
			TelegramFetchLimit:          100,
			MaxRecentMessages:           50,
			MaxInitialActionsPerAgent:   10,
			SendCooldownSeconds:         160,
			IdleSleepSeconds:            15,
		},
		HITL: HITLConfig{
			StateDir:            "data/hitl",
			PollIntervalSeconds: 2,
		},
		Personality: PersonalityConfig{
			MinMessagesForAnalysis: 5,
			ConfidenceThresholds: map[string]float64{
				"openness":          0.8,
				"conscientiousness": 0.8,
				"extraversion":      0.8,
				"agreeableness":     0.8,
				"neuroticism":       0.8,
			},
			Penalty: PenaltyConfig{
				Enabled:                   true,
				MinMessagesFullConfidence: 20,
				PenaltyFactor:             0.02,
			},
			StopReanalysisWhenConfident: true,
			TraitTimeoutSeconds:         60,
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIBase:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
			},
		},
		Bridge: BridgeConfig{
			BaseURL:        "http://localhost:3000",
			TimeoutSeconds: 30,
			RatePerSecond:  5,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "ensemble",
		},
		DataDir:        "data",
		LogsDir:        "logs",
		CheckpointPath: "data/checkpoints.db",
	}
}
