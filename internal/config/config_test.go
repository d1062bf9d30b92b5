package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.SQLEngine != DefaultSQLEngine {
		t.Errorf("sql_engine = %q, want %q", cfg.SQLEngine, DefaultSQLEngine)
	}
	if cfg.MaxSubQueries != DefaultMaxSubQueries {
		t.Errorf("max_subqueries = %d, want %d", cfg.MaxSubQueries, DefaultMaxSubQueries)
	}
	if cfg.MaxRetryCount != DefaultMaxRetryCount {
		t.Errorf("max_retry_count = %d, want %d", cfg.MaxRetryCount, DefaultMaxRetryCount)
	}
	if cfg.QueryTimeout != DefaultQueryTimeout {
		t.Errorf("query_timeout = %d, want %d", cfg.QueryTimeout, DefaultQueryTimeout)
	}
	if !cfg.EnableAuth {
		t.Error("auth should default to enabled")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GOPIE_PORT", "9191")
	t.Setenv("GOPIE_SQL_ENGINE", "postgres")
	t.Setenv("GOPIE_QUERY_TIMEOUT", "15")
	t.Setenv("GOPIE_API_KEYS", "sk-a,sk-b")
	t.Setenv("GOPIE_ENABLE_AUTH", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.Port)
	}
	if cfg.SQLEngine != "postgres" {
		t.Errorf("sql_engine = %q", cfg.SQLEngine)
	}
	if cfg.QueryTimeout != 15 {
		t.Errorf("query_timeout = %d, want 15", cfg.QueryTimeout)
	}
	if len(cfg.APIKeys) != 2 {
		t.Errorf("api_keys = %v", cfg.APIKeys)
	}
	if cfg.EnableAuth {
		t.Error("auth should be disabled by override")
	}
}

func TestLoadIgnoresBadNumericEnv(t *testing.T) {
	t.Setenv("GOPIE_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("port = %d, want default kept on bad input", cfg.Port)
	}
}
