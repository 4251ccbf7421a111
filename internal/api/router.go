package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/api/handlers"
	mw "github.com/verityhq/verity/internal/api/middleware"
	"github.com/verityhq/verity/internal/classify"
	"github.com/verityhq/verity/internal/config"
	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/embedding"
	"github.com/verityhq/verity/internal/semantic"
	"github.com/verityhq/verity/internal/service"
	"github.com/verityhq/verity/internal/store"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Sweeper   *service.SweeperService
	startTime time.Time
	metrics   *mw.MetricsCollector
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	tenantStore := store.NewTenantStore(db)
	memoryStore := store.NewMemoryStore(db)
	ledgerStore := store.NewLedgerStore(db)

	// External clients via provider factories. Each degrades to its
	// deterministic fallback so the core pipeline never depends on a
	// remote service being up.
	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		logger.Warn("embedding client initialization failed, embeddings disabled",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
		embeddingClient = nil
	} else if embeddingClient != nil {
		logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	matcher, err := semantic.NewMatcher(config.SemanticProvider(), embeddingClient)
	if err != nil {
		logger.Warn("semantic matcher initialization failed, using lexical",
			zap.String("provider", config.SemanticProvider()), zap.Error(err))
		matcher = semantic.NewLexicalMatcher()
	} else {
		logger.Info("semantic matcher initialized", zap.String("provider", config.SemanticProvider()))
	}

	classifier, err := classify.NewClassifier(config.ClassifierProvider(), config.ClassifierAPIKey())
	if err != nil {
		logger.Warn("classifier initialization failed, using heuristic",
			zap.String("provider", config.ClassifierProvider()), zap.Error(err))
		classifier = classify.NewHeuristicClassifier()
	} else {
		logger.Info("classifier initialized", zap.String("provider", config.ClassifierProvider()))
	}

	// Verification pipeline
	extractor := service.NewClaimExtractor()

	grounding := service.NewGroundingMatcher(matcher, logger)
	grounding.SetSemanticThreshold(config.SemanticMatchThreshold())
	grounding.SetTierWeights(domain.TierWeights{
		domain.TierExact:    config.TierWeightExact(),
		domain.TierSemantic: config.TierWeightSemantic(),
	})

	detector := service.NewContradictionDetector(logger)
	detector.SetNoiseGapThreshold(config.NoiseGapThreshold())

	verifier := service.NewVerifier(extractor, grounding, detector, service.NewDisclosureChecker(), service.NewCorrector(extractor))
	verifier.SetMaxMemories(config.MaxMemoriesPerVerify())

	// Services
	ledgerSvc := service.NewLedgerService(ledgerStore, memoryStore, classifier, logger)
	ledgerSvc.SetTimeout(config.LedgerTimeout())

	memorySvc := service.NewMemoryService(memoryStore, embeddingClient, logger)

	verificationSvc := service.NewVerificationService(verifier, memoryStore, ledgerSvc, logger)
	verificationSvc.SetEmbeddingClient(embeddingClient)
	verificationSvc.SetMaxMemories(config.MaxMemoriesPerVerify())

	policySvc := service.NewPolicyService(ledgerSvc, memoryStore, logger)
	gateSvc := service.NewGateService(ledgerSvc, logger)

	sweeperSvc := service.NewSweeperService(memoryStore, ledgerSvc, extractor, detector, logger)
	sweeperSvc.SetInterval(config.SweepInterval())
	sweeperSvc.SetLookback(config.SweepLookback())
	sweeperSvc.SetMaxMemories(config.MaxMemoriesPerVerify())

	// Handlers
	tenantHandler := handlers.NewTenantHandler(tenantStore)
	memoryHandler := handlers.NewMemoryHandler(memorySvc)
	verifyHandler := handlers.NewVerifyHandler(verificationSvc)
	contradictionHandler := handlers.NewContradictionHandler(ledgerSvc, policySvc)
	gateHandler := handlers.NewGateHandler(gateSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Sweeper:   sweeperSvc,
		startTime: time.Now(),
		metrics:   mw.NewMetricsCollector(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Tenant creation (no auth, bootstrap endpoint)
	r.Post("/v1/tenants", tenantHandler.Create)

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(tenantStore))

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memoryHandler.Create)
			r.Get("/", memoryHandler.List)
			r.Get("/{id}", memoryHandler.GetByID)
		})

		r.Post("/verify", verifyHandler.Verify)

		r.Route("/contradictions", func(r chi.Router) {
			r.Get("/", contradictionHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/resolve", contradictionHandler.Resolve)
				r.Post("/auto", contradictionHandler.Auto)
			})
		})

		r.Post("/gate/check", gateHandler.Check)
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that manage no background
// services.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		snap := app.metrics.Snapshot()

		response := map[string]any{
			"uptime_seconds":     uptime.Seconds(),
			"uptime_human":       uptime.Round(time.Second).String(),
			"request_count":      snap.Requests,
			"error_count":        snap.Errors,
			"verification_count": snap.Verifies,
			"gate_check_count":   snap.GateChecks,
			"resolution_count":   snap.Resolutions,
			"goroutines":         runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.TenantStore      = (*store.TenantStore)(nil)
	_ domain.MemoryStore      = (*store.MemoryStore)(nil)
	_ domain.LedgerStore      = (*store.LedgerStore)(nil)
	_ domain.EmbeddingClient  = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient  = (*embedding.MockClient)(nil)
	_ domain.SemanticMatcher  = (*semantic.LexicalMatcher)(nil)
	_ domain.SemanticMatcher  = (*semantic.EmbeddingMatcher)(nil)
	_ domain.SemanticMatcher  = (*semantic.MockMatcher)(nil)
	_ domain.ChangeClassifier = (*classify.HeuristicClassifier)(nil)
	_ domain.ChangeClassifier = (*classify.AnthropicClassifier)(nil)
	_ domain.ChangeClassifier = (*classify.MockClassifier)(nil)
)
