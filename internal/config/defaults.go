package config

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultServedModel    = "gopie"
	DefaultAnthropicModel = "claude-sonnet-4-6"
	DefaultEmbeddingModel = "gemini-embedding-001"

	DefaultSchemaIndex = "dataset-schemas"
	DefaultSearchTopK  = 5

	DefaultSQLEngine        = "duckdb"
	DefaultBigQueryLocation = "US"
	DefaultQueryTimeout     = 60 // seconds, per SQL statement

	// Retry caps for the query-resolution graph. Every cyclic edge
	// increments one of these counters, so the caps are the sole
	// termination guarantee.
	DefaultMaxToolCalls            = 5
	DefaultMaxRetryCount           = 3
	DefaultMaxValidationRetryCount = 2
	DefaultMaxSubQueries           = 2

	// Results beyond these thresholds are summarized rather than inlined
	// into the synthesis prompt.
	DefaultLargeResultRowLimit  = 500
	DefaultLargeResultByteLimit = 256 * 1024

	DefaultAgentTimeout = 300 // seconds
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}
