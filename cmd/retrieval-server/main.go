// cmd/retrieval-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"finqa-retrieval/internal/alerting"
	"finqa-retrieval/internal/common/config"
	"finqa-retrieval/internal/common/database"
	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/common/observability"
	"finqa-retrieval/internal/orchestrator"
	"finqa-retrieval/internal/server"

	densehttp "finqa-retrieval/internal/sources/dense-http"
	metricstore "finqa-retrieval/internal/sources/metric-store"
	rerankhttp "finqa-retrieval/internal/sources/rerank-http"
	sparseelastic "finqa-retrieval/internal/sources/sparse-elastic"

	applyguardrails "finqa-retrieval/internal/stages/apply-guardrails"
	decomposequery "finqa-retrieval/internal/stages/decompose-query"
	fusescores "finqa-retrieval/internal/stages/fuse-scores"
	groundeddecision "finqa-retrieval/internal/stages/grounded-decision"
	hybridsearch "finqa-retrieval/internal/stages/hybrid-search"
	parsetimefilter "finqa-retrieval/internal/stages/parse-time-filter"
	rerankcandidates "finqa-retrieval/internal/stages/rerank-candidates"
	selectpolicy "finqa-retrieval/internal/stages/select-policy"

	"finqa-retrieval/pkg/policyregistry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// stageTimeout maps an operator-set stage timeout over the compiled default.
func stageTimeout(cfg *config.Config, stage string, fallback time.Duration) time.Duration {
	if sc, ok := cfg.Stages[stage]; ok && sc.Timeout > 0 {
		return config.GetDuration(sc.Timeout)
	}
	return fallback
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New("info", "console")
		bootstrap.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting retrieval server...")

	obs := observability.New("retrieval-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var rds *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rds, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return rds.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rds.Close()
	zapLog.Info("Redis connected successfully")

	// --- Policy registry ---
	registry, err := policyregistry.New(cfg.Policies.TablePath)
	if err != nil {
		zapLog.Fatal("policy table load failed", zap.Error(err))
	}
	zapLog.Info("Policy registry loaded", zap.Int("intents", len(registry.All())))

	// --- Retrieval sources ---
	denseCfg := densehttp.LoadConfig()
	denseCfg.BaseURL = cfg.Services.DenseSearch.BaseURL
	denseCfg.APIKey = cfg.Services.DenseSearch.APIKey
	denseCfg.Timeout = config.GetDuration(cfg.Services.DenseSearch.Timeout)
	dense := densehttp.NewClient(denseCfg, log)

	sparse := sparseelastic.NewSearcher(sparseelastic.LoadConfig(), esClient.Client, log)

	rerankClientCfg := rerankhttp.LoadConfig()
	if cfg.Services.Reranker.BaseURL != "" {
		rerankClientCfg.BaseURL = cfg.Services.Reranker.BaseURL
	}
	rerankClientCfg.APIKey = cfg.Services.Reranker.APIKey
	rerankClientCfg.Timeout = config.GetDuration(cfg.Services.Reranker.Timeout)
	rerankClientCfg.RequestsPerSecond = cfg.Services.Reranker.RateLimit
	rerankClientCfg.Burst = cfg.Services.Reranker.Burst
	rerankClientCfg.CacheTTL = time.Duration(cfg.Services.Reranker.CacheTTL) * time.Second
	scorer := rerankhttp.NewClient(rerankClientCfg, log)

	store := metricstore.NewStore(metricstore.LoadConfig(), pg.DB, log)

	zapLog.Info("All retrieval sources initialized")

	// --- Pipeline stages ---
	recorder := applyguardrails.NewRecorder(cfg.Guardrails.MetricsBufferSize)

	selectCfg := selectpolicy.LoadConfig()
	selectCfg.Timeout = stageTimeout(cfg, selectpolicy.StageName, selectCfg.Timeout)
	selectStage := selectpolicy.NewHandler(selectCfg, registry, log)

	timeCfg := parsetimefilter.LoadConfig()
	timeCfg.Timeout = stageTimeout(cfg, parsetimefilter.StageName, timeCfg.Timeout)
	timeStage := parsetimefilter.NewHandler(timeCfg, log)

	decomposeCfg := decomposequery.LoadConfig()
	decomposeCfg.Timeout = stageTimeout(cfg, decomposequery.StageName, decomposeCfg.Timeout)
	decomposeStage := decomposequery.NewHandler(decomposeCfg, log)

	hybridCfg := hybridsearch.LoadConfig()
	hybridCfg.DenseWeight = cfg.Search.DenseWeight
	hybridCfg.SparseWeight = cfg.Search.SparseWeight
	hybridCfg.KFinal = cfg.Search.KDefault
	hybridCfg.BranchTimeout = config.GetDuration(cfg.Search.BranchTimeout)
	hybridCfg.Timeout = stageTimeout(cfg, hybridsearch.StageName, hybridCfg.Timeout)
	hybridStage := hybridsearch.NewHandler(hybridCfg, dense, sparse, log)

	// Reranking can be switched off entirely; the orchestrator falls back
	// to fused initial scores when no rerank stage is wired.
	var rerankStage *rerankcandidates.Handler
	if config.IsStageEnabled(cfg, rerankcandidates.StageName) {
		rerankCfg := rerankcandidates.LoadConfig()
		rerankCfg.MaxConcurrent = cfg.Services.Reranker.MaxConcurrent
		rerankCfg.CallTimeout = config.GetDuration(cfg.Services.Reranker.Timeout)
		rerankCfg.Timeout = stageTimeout(cfg, rerankcandidates.StageName, rerankCfg.Timeout)
		rerankStage = rerankcandidates.NewHandler(rerankCfg, scorer, log)
	}

	fuseCfg := fusescores.LoadConfig()
	fuseCfg.Timeout = stageTimeout(cfg, fusescores.StageName, fuseCfg.Timeout)
	fuseStage := fusescores.NewHandler(fuseCfg, log)

	guardCfg := applyguardrails.LoadConfig()
	guardCfg.MinRelevanceScore = cfg.Guardrails.MinRelevanceScore
	guardCfg.MaxDocumentsPerSource = cfg.Guardrails.MaxDocumentsPerSource
	guardCfg.MaxContextChars = cfg.Guardrails.MaxContextChars
	guardCfg.RequireMinDocs = cfg.Guardrails.RequireMinDocs
	guardCfg.Timeout = stageTimeout(cfg, applyguardrails.StageName, guardCfg.Timeout)
	guardStage := applyguardrails.NewHandler(guardCfg, recorder, log)

	decideCfg := groundeddecision.LoadConfig()
	decideCfg.MinConfidence = cfg.Guardrails.MinConfidence
	decideCfg.RequireMinDocs = cfg.Guardrails.RequireMinDocs
	decideCfg.Timeout = stageTimeout(cfg, groundeddecision.StageName, decideCfg.Timeout)
	decideStage := groundeddecision.NewHandler(decideCfg, log)

	zapLog.Info("All pipeline stages initialized")

	// --- Orchestrator ---
	var cache orchestrator.ResultCache
	if cfg.Cache.Enabled {
		cache = orchestrator.NewRedisResultCache(rds.Client, time.Duration(cfg.Cache.TTL)*time.Second, log)
	}

	orchCfg := orchestrator.LoadConfig()
	orchCfg.MaxSteps = cfg.Search.MaxSteps
	orchCfg.CacheTTL = time.Duration(cfg.Cache.TTL) * time.Second
	orchCfg.Timeout = config.GetDuration(cfg.Server.RequestTimeout)

	orch := orchestrator.New(orchCfg, orchestrator.Dependencies{
		SelectPolicy:  selectStage,
		ParseTime:     timeStage,
		Decompose:     decomposeStage,
		Hybrid:        hybridStage,
		Rerank:        rerankStage,
		Fuse:          fuseStage,
		Guardrails:    guardStage,
		Decide:        decideStage,
		MetricStore:   store,
		Cache:         cache,
		Observability: obs,
	}, log)

	// --- Quality watcher ---
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	if cfg.Alerting.Enabled {
		alertCfg := alerting.LoadConfig()
		alertCfg.EmailEnabled = cfg.Alerting.Email.Enabled
		if cfg.Alerting.Email.FromEmail != "" {
			alertCfg.FromEmail = cfg.Alerting.Email.FromEmail
		}
		alertCfg.Recipients = cfg.Alerting.Email.Recipients
		alertCfg.TopicEnabled = cfg.Alerting.Topic.Enabled
		alertCfg.TopicARN = cfg.Alerting.Topic.TopicARN
		if cfg.Alerting.AWS.Region != "" {
			alertCfg.AWSRegion = cfg.Alerting.AWS.Region
		}
		alertCfg.EmptyRateThreshold = cfg.Alerting.EmptyRateThreshold
		alertCfg.LowScoreRateThreshold = cfg.Alerting.LowScoreRateThreshold
		alertCfg.MinSampleSize = cfg.Alerting.MinSampleSize
		alertCfg.Cooldown = time.Duration(cfg.Alerting.Cooldown) * time.Second

		alerter, err := alerting.NewAlerter(alertCfg, log)
		if err != nil {
			zapLog.Fatal("alerter init failed", zap.Error(err))
		}
		go alerter.Watch(watchCtx, recorder)
		zapLog.Info("Retrieval quality watcher started")
	}

	// --- HTTP server ---
	srvCfg := server.LoadConfig()
	srvCfg.Port = cfg.Server.Port
	srvCfg.RequestTimeout = config.GetDuration(cfg.Server.RequestTimeout)
	if len(cfg.Server.AllowedOrigins) > 0 {
		srvCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	}

	srv := server.New(&server.Dependencies{
		Config:    srvCfg,
		Retrieval: orch,
		Recorder:  recorder,
		Policies:  registry,
		Logger:    log,
		Checks: map[string]server.HealthChecker{
			"postgres":      pg.Ping,
			"elasticsearch": esClient.Ping,
			"redis":         rds.Ping,
		},
	})

	go func() {
		if err := srv.Start(); err != nil {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	stopWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down http server", zap.Error(err))
	}

	zapLog.Info("Retrieval server stopped gracefully")
}
