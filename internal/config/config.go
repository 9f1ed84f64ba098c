package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// WorkerConfig controls the background job execution engine.
type WorkerConfig struct {
	// PollInterval is the delay, in milliseconds, between attempts to
	// claim the next pending job.
	PollIntervalMs int `mapstructure:"poll_interval_ms" validate:"required,gt=0"`

	// ClaimCapacity is the number of concurrent claim loops. The claim
	// itself is atomic, so values above 1 are safe; the default of 1
	// preserves the one-active-job-at-a-time behavior.
	ClaimCapacity int `mapstructure:"claim_capacity" validate:"required,gte=1"`

	// CancelPollIntervalMs is how often an active job checks whether
	// cancellation has been requested.
	CancelPollIntervalMs int `mapstructure:"cancel_poll_interval_ms" validate:"required,gt=0"`

	// LinkConcurrency bounds the concurrent fetch+generate tasks in the
	// link processing pipeline.
	LinkConcurrency int `mapstructure:"link_concurrency" validate:"required,gte=1"`

	// WriteBatchSize is the number of link outcomes applied per
	// transaction in the pipeline's write phase.
	WriteBatchSize int `mapstructure:"write_batch_size" validate:"required,gte=1"`
}

// LLMConfig contains all model-provider related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}
