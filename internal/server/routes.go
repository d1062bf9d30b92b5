package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/agent"
	"github.com/factly/gopie/internal/engine"
	"github.com/factly/gopie/internal/handler"
	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/middleware"
	"github.com/factly/gopie/internal/prompts"
	"github.com/factly/gopie/internal/search"
)

// setupRoutes returns (router, querier, error) so the engine can be closed
// on shutdown.
func (s *Server) setupRoutes() (http.Handler, engine.Querier, error) {
	cfg := s.cfg
	ctx := context.Background()

	registry, err := prompts.Load()
	if err != nil {
		return nil, nil, err
	}

	querier, err := s.setupEngine(ctx)
	if err != nil {
		log.Warn().Err(err).Str("engine", cfg.SQLEngine).Msg("SQL engine unavailable")
		querier = nil
	}

	var store *search.SchemaStore
	if len(cfg.ElasticsearchAddresses) > 0 {
		embedder, embErr := search.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
		if embErr != nil {
			log.Warn().Err(embErr).Msg("embeddings unavailable, schema search disabled")
		} else {
			store, err = search.NewSchemaStore(cfg.ElasticsearchAddresses, cfg.ElasticsearchUser,
				cfg.ElasticsearchPassword, embedder, cfg.SchemaIndex, cfg.SearchTopK)
			if err != nil {
				log.Warn().Err(err).Msg("schema search unavailable")
				store = nil
			}
		}
	} else {
		log.Warn().Msg("ELASTICSEARCH_URL not set - schema search disabled")
	}

	llmClient := llm.New(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL)
	if cfg.AnthropicAPIKey == "" {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - model calls will fail")
	}

	// A nil *SchemaStore must not become a non-nil interface value.
	var searcher search.Searcher
	if store != nil {
		searcher = store
	}

	resolver, err := agent.New(llmClient, searcher, querier, registry, agent.Caps{
		MaxToolCalls:            cfg.MaxToolCalls,
		MaxRetryCount:           cfg.MaxRetryCount,
		MaxValidationRetryCount: cfg.MaxValidationRetryCount,
		MaxSubQueries:           cfg.MaxSubQueries,
		LargeResultRowLimit:     cfg.LargeResultRowLimit,
		LargeResultByteLimit:    cfg.LargeResultByteLimit,
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("sql_engine", cfg.SQLEngine).
		Bool("engine_available", querier != nil).
		Bool("schema_search_enabled", store != nil).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Msg("service configuration")
	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("WARNING: auth enabled but no API keys configured - all API requests will be rejected")
	}

	healthH := handler.NewHealthHandler(store, querier)
	modelsH := handler.NewModelsHandler(cfg.ServedModel)
	chatH := handler.NewChatHandler(resolver, cfg.ServedModel, time.Duration(cfg.AgentTimeout)*time.Second)

	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)

	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)

	apiMiddleware := []func(http.Handler) http.Handler{
		middleware.RateLimit(cfg.RateLimitPerMinute),
	}
	if cfg.EnableAuth && len(cfg.APIKeys) > 0 {
		apiMiddleware = append(apiMiddleware, middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
	}

	r.Group(func(r chi.Router) {
		for _, m := range apiMiddleware {
			r.Use(m)
		}
		r.Route("/v1", func(r chi.Router) {
			r.Get("/models", modelsH.List)
			r.Post("/chat/completions", chatH.ChatCompletions)
		})
	})

	return r, querier, nil
}

func (s *Server) setupEngine(ctx context.Context) (engine.Querier, error) {
	cfg := s.cfg
	timeout := time.Duration(cfg.QueryTimeout) * time.Second
	switch cfg.SQLEngine {
	case "postgres":
		return engine.NewPostgres(ctx, cfg.PostgresDSN, timeout)
	case "bigquery":
		return engine.NewBigQuery(ctx, cfg.GCPProjectID, cfg.GoogleApplicationCredentials, cfg.BigQueryLocation, timeout)
	default:
		return engine.NewDuckDB(cfg.DuckDBPath, timeout)
	}
}
