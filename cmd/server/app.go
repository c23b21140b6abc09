package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobsentry/api/internal/config"
	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/govern"
	"github.com/jobsentry/api/internal/platform/gemini"
	"github.com/jobsentry/api/internal/platform/postgres"
	"github.com/jobsentry/api/internal/store"
	"github.com/jobsentry/api/internal/task"
)

// application holds the wired dependency graph of the server.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	postingStore store.PostingStore

	queue    *govern.ProcessingQueue
	breaker  *govern.BreakerController
	governor govern.Governor

	dispatcher   *task.Dispatcher
	orchestrator *task.RecoveryOrchestrator
	validator    *task.OpportunisticValidator
	fetchJob     *task.FetchJob
	finalizer    *task.Finalizer
}

// newApplication wires every component from configuration. It does not
// start any background work; run does.
func newApplication(cfg *config.Config, appLogger *slog.Logger) (*application, error) {
	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	postingStore := postgres.NewPostgresPostingStore(db)

	queue := govern.NewProcessingQueue(appLogger)

	limiter := govern.NewRateLimiter(govern.RateLimiterConfig{
		Capacity:         cfg.Govern.RateCapacity,
		RefillPerSec:     cfg.Govern.RateRefillPerSec,
		InitialWait:      cfg.Govern.RateInitialWait,
		PollAttempts:     cfg.Govern.RatePollAttempts,
		PollInterval:     cfg.Govern.RatePollInterval,
		SlowPollInterval: cfg.Govern.RateSlowPollInterval,
	}, appLogger)

	breaker := govern.NewBreakerController(govern.BreakerConfig{
		FailureRate:  cfg.Govern.BreakerFailureRate,
		MinCalls:     int64(cfg.Govern.BreakerMinCalls),
		Window:       cfg.Govern.BreakerWindow,
		WaitDuration: cfg.Govern.BreakerWaitDuration,
		TrialCalls:   int32(cfg.Govern.BreakerTrialCalls),
	}, appLogger)

	govCfg := govern.GovernorConfig{
		MaxConcurrentPerType: int64(cfg.Govern.MaxConcurrentPerType),
	}
	govCfg.Timeouts[domain.TaskTypePrimaryAnalysis] = cfg.Govern.PrimaryAnalysisTimeout
	govCfg.Timeouts[domain.TaskTypeSkillExtraction] = cfg.Govern.SkillExtractionTimeout
	govCfg.Timeouts[domain.TaskTypeLogAnalysis] = cfg.Govern.LogAnalysisTimeout
	govCfg.Timeouts[domain.TaskTypeOther] = cfg.Govern.OtherTimeout

	requestGovernor := govern.NewRequestGovernor(limiter, breaker, queue, govCfg, appLogger)
	governor := govern.WithLogging(requestGovernor, appLogger)

	analyzerCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	analyzer, err := gemini.NewGeminiAnalyzer(analyzerCtx, appLogger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini analyzer: %w", err)
	}

	dispatcher := task.NewDispatcher(postingStore, queue, governor, analyzer, nil, task.DispatcherConfig{
		WorkerCount:    cfg.Pipeline.WorkerCount,
		ScoreThreshold: cfg.LLM.MinScore,
		ShutdownGrace:  cfg.Server.ShutdownGrace,
	}, appLogger)

	orchestrator := task.NewRecoveryOrchestrator(postingStore, governor, breaker, queue, task.OrchestratorConfig{
		TickInterval:       cfg.Pipeline.TickInterval,
		RetryWindow:        cfg.Pipeline.RetryWindow,
		AdmissionBatchSize: cfg.Pipeline.AdmissionBatchSize,
		RecoveryDebounce:   cfg.Pipeline.RecoveryDebounce,
		AdmissionDebounce:  cfg.Pipeline.AdmissionDebounce,
		ShutdownGrace:      cfg.Server.ShutdownGrace,
	}, appLogger)

	validator := task.NewOpportunisticValidator(
		postingStore,
		task.NewKeywordFilter(nil),
		task.NewHTTPLivenessChecker(nil, appLogger),
		task.ValidatorConfig{
			Interval:      cfg.Pipeline.ValidationInterval,
			BatchSize:     cfg.Pipeline.ValidationBatchSize,
			RetryWindow:   cfg.Pipeline.RetryWindow,
			ShutdownGrace: cfg.Server.ShutdownGrace,
		},
		appLogger,
	)
	requestGovernor.SetBusyHook(func() { validator.TriggerIfDue() })

	fetchJob := task.NewFetchJob(postingStore, nil, cfg.Pipeline.FetchInterval, appLogger)

	finalizer := task.NewFinalizer(postingStore, cfg.Pipeline.RetryWindow, appLogger)

	return &application{
		config:       cfg,
		logger:       appLogger,
		db:           db,
		postingStore: postingStore,
		queue:        queue,
		breaker:      breaker,
		governor:     governor,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		validator:    validator,
		fetchJob:     fetchJob,
		finalizer:    finalizer,
	}, nil
}

// run applies pending migrations, starts the background pipeline and serves
// HTTP until a shutdown signal arrives.
func (app *application) run(migrationsDir string) error {
	if err := migrateUp(app.db, migrationsDir, app.logger); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	app.orchestrator.Start()
	app.dispatcher.Start()
	app.fetchJob.Start()

	return app.startHTTPServer(app.setupRouter())
}

// cleanup stops background work and closes shared resources, in reverse
// dependency order.
func (app *application) cleanup() {
	app.fetchJob.Stop()
	app.dispatcher.Stop()
	app.orchestrator.Stop()
	app.validator.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}
