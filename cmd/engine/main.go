package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"council/internal/audit"
	"council/internal/config"
	"council/internal/consensus"
	"council/internal/council"
	cronrunner "council/internal/cron"
	"council/internal/db"
	"council/internal/grading"
	"council/internal/handler"
	"council/internal/ledger"
	"council/internal/learning"
	"council/internal/logger"
	"council/internal/registry"
	gormrepository "council/internal/repository/gorm"
	"council/internal/service"
)

func main() {
	cfgPath := os.Getenv("CE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("CE_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	categories := registry.Default()

	selector := &council.Selector{
		Store:    store,
		Registry: categories,
		Logger:   logger,
		Config:   cfg.Council,
		Season:   cfg.App.Season,
	}
	aggregator := &consensus.Aggregator{
		Registry:        categories,
		ConfidenceClamp: cfg.Aggregator.ConfidenceClamp,
		DefaultSigma:    cfg.Aggregator.DefaultSigma,
	}
	projector := &consensus.Projector{
		Tolerance:      cfg.Projector.Tolerance,
		SignPenalty:    cfg.Projector.SignPenalty,
		MaxRelaxations: cfg.Projector.MaxRelaxations,
	}
	grader := &grading.Grader{Store: store, Registry: categories, Logger: logger}
	bookie := &ledger.Ledger{Store: store, Logger: logger, Config: cfg.Settlement}
	learner := &learning.Learner{Store: store, Logger: logger, Config: cfg.Learner}

	auditClient := &audit.Client{BaseURL: cfg.Audit.BaseURL, Timeout: cfg.Audit.Timeout}
	emitter := audit.NewEmitter(auditClient, logger, cfg.Audit)

	ingest := &service.IngestService{
		Repo:             store,
		Registry:         categories,
		Logger:           logger,
		Audit:            emitter,
		Season:           cfg.App.Season,
		StartingBankroll: decimal.NewFromFloat(cfg.Settlement.StartingBankroll),
	}
	consensusSvc := &service.ConsensusService{
		Repo:       store,
		Registry:   categories,
		Logger:     logger,
		Selector:   selector,
		Aggregator: aggregator,
		Projector:  projector,
	}
	outcomeSvc := &service.OutcomeService{
		Repo:     store,
		Registry: categories,
		Logger:   logger,
		Grader:   grader,
		Ledger:   bookie,
		Learner:  learner,
		Audit:    emitter,
		Season:   cfg.App.Season,
	}
	truthStream := &service.TruthStreamService{
		Outcome: outcomeSvc,
		Logger:  logger,
		Config:  cfg.TruthFeed,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	bundleHandler := &handler.BundleHandler{Ingest: ingest, Repo: store}
	bundleHandler.Register(engine)
	gameHandler := &handler.GameHandler{Repo: store, Outcome: outcomeSvc, Consensus: consensusSvc}
	gameHandler.Register(engine)
	expertHandler := &handler.ExpertHandler{Repo: store}
	expertHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go emitter.Run(ctx)

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger)
		err = cronRunner.Add("consensus-sweep", cfg.Cron.Consensus, func(ctx context.Context) {
			if err := consensusSvc.RunDue(ctx, 50); err != nil {
				logger.Warn("cron consensus sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register consensus sweep failed", zap.Error(err))
		}
		err = cronRunner.Add("grade-retry", cfg.Cron.GradeRetry, func(ctx context.Context) {
			if err := outcomeSvc.RetryGradable(ctx, 50); err != nil {
				logger.Warn("cron grade retry failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register grade retry failed", zap.Error(err))
		}
		err = cronRunner.Add("pending-sweep", cfg.Cron.PendingSweep, func(ctx context.Context) {
			if _, err := bookie.SweepPendingPushes(ctx, 500); err != nil {
				logger.Warn("cron pending sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register pending sweep failed", zap.Error(err))
		}
		cronRunner.Start(ctx)
		defer cronRunner.Stop()
	}

	go func() {
		if err := truthStream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("truth stream stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
