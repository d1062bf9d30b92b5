package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header"`
	APIKeys      []string `json:"api_keys"`
	EnableAuth   bool     `json:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// AI / LLM
	ServedModel      string `json:"served_model"` // model name reported on the wire
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url"`
	AnthropicModel   string `json:"anthropic_model"`
	AgentTimeout     int    `json:"agent_timeout"`

	// Embeddings (Google GenAI)
	GoogleAPIKey   string `json:"google_api_key"`
	EmbeddingModel string `json:"embedding_model"`

	// Schema search (Elasticsearch)
	ElasticsearchAddresses []string `json:"elasticsearch_addresses"`
	ElasticsearchUser      string   `json:"elasticsearch_user"`
	ElasticsearchPassword  string   `json:"elasticsearch_password"`
	SchemaIndex            string   `json:"schema_index"`
	SearchTopK             int      `json:"search_top_k"`

	// SQL engine: "duckdb", "postgres" or "bigquery"
	SQLEngine                    string `json:"sql_engine"`
	QueryTimeout                 int    `json:"query_timeout"` // seconds, per statement
	DuckDBPath                   string `json:"duckdb_path"`
	PostgresDSN                  string `json:"postgres_dsn"`
	GCPProjectID                 string `json:"gcp_project_id"`
	GoogleApplicationCredentials string `json:"google_application_credentials"`
	BigQueryLocation             string `json:"bigquery_location"`

	// Query-resolution graph caps
	MaxToolCalls            int `json:"max_tool_calls"`
	MaxRetryCount           int `json:"max_retry_count"`
	MaxValidationRetryCount int `json:"max_validation_retry_count"`
	MaxSubQueries           int `json:"max_subqueries"`

	// Large-result thresholds
	LargeResultRowLimit  int `json:"large_result_row_limit"`
	LargeResultByteLimit int `json:"large_result_byte_limit"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:                    DefaultHost,
		Port:                    DefaultPort,
		Environment:             DefaultEnvironment,
		LogLevel:                DefaultLogLevel,
		CORSOrigins:             DefaultCORSOrigins,
		APIKeyHeader:            "X-API-Key",
		EnableAuth:              true,
		RateLimitPerMinute:      DefaultRateLimitPerMinute,
		ServedModel:             DefaultServedModel,
		AnthropicModel:          DefaultAnthropicModel,
		AgentTimeout:            DefaultAgentTimeout,
		EmbeddingModel:          DefaultEmbeddingModel,
		SchemaIndex:             DefaultSchemaIndex,
		SearchTopK:              DefaultSearchTopK,
		SQLEngine:               DefaultSQLEngine,
		QueryTimeout:            DefaultQueryTimeout,
		BigQueryLocation:        DefaultBigQueryLocation,
		MaxToolCalls:            DefaultMaxToolCalls,
		MaxRetryCount:           DefaultMaxRetryCount,
		MaxValidationRetryCount: DefaultMaxValidationRetryCount,
		MaxSubQueries:           DefaultMaxSubQueries,
		LargeResultRowLimit:     DefaultLargeResultRowLimit,
		LargeResultByteLimit:    DefaultLargeResultByteLimit,
	}

	// Load from JSON config file if specified
	if path := getEnv("GOPIE_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, err
		}
	}

	// Environment overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("GOPIE_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("GOPIE_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("GOPIE_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("GOPIE_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("GOPIE_API_KEYS", ""); v != "" {
		cfg.APIKeys = strings.Split(v, ",")
	}
	if v := getEnv("GOPIE_ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = v == "true" || v == "1"
	}
	if v := getEnv("GOPIE_SERVED_MODEL", ""); v != "" {
		cfg.ServedModel = v
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("GOPIE_ANTHROPIC_MODEL", ""); v != "" {
		cfg.AnthropicModel = v
	}
	if v := getEnv("GOOGLE_API_KEY", ""); v != "" {
		cfg.GoogleAPIKey = v
	}
	if v := getEnv("GOPIE_EMBEDDING_MODEL", ""); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := getEnv("ELASTICSEARCH_URL", ""); v != "" {
		cfg.ElasticsearchAddresses = strings.Split(v, ",")
	}
	if v := getEnv("ELASTICSEARCH_USER", ""); v != "" {
		cfg.ElasticsearchUser = v
	}
	if v := getEnv("ELASTICSEARCH_PASSWORD", ""); v != "" {
		cfg.ElasticsearchPassword = v
	}
	if v := getEnv("GOPIE_SCHEMA_INDEX", ""); v != "" {
		cfg.SchemaIndex = v
	}
	if v := getEnv("GOPIE_SQL_ENGINE", ""); v != "" {
		cfg.SQLEngine = v
	}
	if v := getEnv("GOPIE_QUERY_TIMEOUT", ""); v != "" {
		if t, err := strconv.Atoi(v); err == nil {
			cfg.QueryTimeout = t
		}
	}
	if v := getEnv("GOPIE_DUCKDB_PATH", ""); v != "" {
		cfg.DuckDBPath = v
	}
	if v := getEnv("GOPIE_POSTGRES_DSN", ""); v != "" {
		cfg.PostgresDSN = v
	}
	if v := getEnv("GCP_PROJECT_ID", ""); v != "" {
		cfg.GCPProjectID = v
	}
	if v := getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""); v != "" {
		cfg.GoogleApplicationCredentials = v
	}
	if v := getEnv("GOPIE_RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("GOPIE_MAX_VALIDATION_RETRY_COUNT", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.MaxValidationRetryCount = r
		}
	}
	if v := getEnv("GOPIE_AGENT_TIMEOUT", ""); v != "" {
		if t, err := strconv.Atoi(v); err == nil {
			cfg.AgentTimeout = t
		}
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
