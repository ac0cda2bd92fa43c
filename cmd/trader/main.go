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
	"go.uber.org/zap"

	"autotrader/internal/config"
	cronrunner "autotrader/internal/cron"
	"autotrader/internal/db"
	"autotrader/internal/decision"
	"autotrader/internal/execution"
	"autotrader/internal/features"
	"autotrader/internal/handler"
	"autotrader/internal/logger"
	"autotrader/internal/marketdata"
	"autotrader/internal/orchestrator"
	"autotrader/internal/outcome"
	gormrepository "autotrader/internal/repository/gorm"
	"autotrader/internal/service"
	"autotrader/internal/signalmodel"
)

func main() {
	cfgPath := os.Getenv("AT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AT_ENV_ONLY"); envOnlyRaw != "" {
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
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	marketHTTP := &http.Client{Timeout: cfg.MarketData.Timeout}
	marketClient := marketdata.NewClient(marketHTTP, cfg.MarketData.BaseURL)

	trainerHTTP := &http.Client{Timeout: cfg.Model.TrainerTimeout}
	trainerClient := signalmodel.NewTrainerClient(trainerHTTP, cfg.Model.TrainerBaseURL)
	modelSvc := &signalmodel.Service{
		Repo:               store,
		Trainer:            trainerClient,
		Logger:             logger,
		MinValidationScore: cfg.Model.MinValidationScore,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	baseCtx := ctx

	var quoteStream *marketdata.QuoteStream
	if cfg.Stream.Enabled && settingsSvc.IsEnabled(baseCtx, service.FeatureQuoteStream, false) {
		quoteStream = &marketdata.QuoteStream{
			URL:     cfg.Stream.URL,
			Symbols: cfg.Engine.Symbols,
			Backoff: cfg.Stream.ReconnectBackoff,
			Logger:  logger,
		}
		go func() {
			if err := quoteStream.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("quote stream stopped", zap.Error(err))
			}
		}()
	}

	var channels []execution.Channel
	if cfg.Execution.Broker.Enabled && settingsSvc.IsEnabled(baseCtx, service.FeatureBrokerChannel, true) {
		brokerHTTP := &http.Client{Timeout: cfg.Execution.Broker.Timeout}
		channels = append(channels, execution.NewBrokerChannel(
			brokerHTTP,
			cfg.Execution.Broker.BaseURL,
			cfg.Execution.Broker.APIKeyEnv,
			cfg.Execution.Broker.SecretEnv,
		))
	}
	if cfg.Execution.Agent.Enabled && settingsSvc.IsEnabled(baseCtx, service.FeatureAgentChannel, false) {
		agentHTTP := &http.Client{Timeout: cfg.Execution.Agent.Timeout}
		channels = append(channels, execution.NewAgentChannel(agentHTTP, cfg.Execution.Agent.BaseURL))
	}
	// Manual is always last so every order has a terminal channel.
	channels = append(channels, &execution.ManualChannel{Repo: store, Logger: logger})
	router := &execution.Router{
		Channels:   channels,
		MaxRetries: cfg.Execution.MaxRetries,
		Backoff:    cfg.Execution.RetryBackoff,
		Logger:     logger,
	}

	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		logger.Warn("invalid engine timezone, using UTC", zap.String("tz", cfg.Engine.Timezone), zap.Error(err))
		loc = time.UTC
	}

	policy := decision.DefaultPolicy()
	policy.SellThreshold = cfg.Decision.SellThreshold
	policy.SecondarySell = cfg.Decision.SecondarySell
	policy.MinBullishFlags = cfg.Decision.MinBullishFlags
	policy.BaseAllocation = cfg.Decision.BaseAllocation
	policy.StopLossPct = cfg.Decision.StopLossPct
	policy.TakeProfitPct = cfg.Decision.TakeProfitPct
	policy.MinTradeInterval = cfg.Decision.MinTradeInterval

	engine := &orchestrator.Engine{
		Repo:          store,
		Market:        marketClient,
		Quotes:        quoteStream,
		Features:      features.NewEngine(cfg.Features.MinHistory),
		Models:        modelSvc,
		Policy:        policy,
		Router:        router,
		Logger:        logger,
		Symbols:       cfg.Engine.Symbols,
		HistoryDays:   cfg.MarketData.HistoryDays,
		EquityUSD:     cfg.Decision.EquityUSD,
		DefaultBuyThr: cfg.Decision.BuyThreshold,
		CycleInterval: cfg.Engine.CycleInterval,
		IdleInterval:  cfg.Engine.IdleInterval,
		Workers:       cfg.Engine.Workers,
		Location:      loc,
	}

	tracker := &outcome.Tracker{
		Repo:          store,
		Models:        modelSvc,
		Thresholds:    engine,
		Logger:        logger,
		Symbols:       cfg.Engine.Symbols,
		Window:        cfg.Outcome.Window,
		MinTrades:     cfg.Outcome.MinTrades,
		RetrainBelow:  cfg.Outcome.RetrainBelow,
		LoosenAbove:   cfg.Outcome.LoosenAbove,
		ThresholdStep: cfg.Outcome.ThresholdStep,
		FloorBuy:      cfg.Decision.BuyThresholdFloor,
		CapBuy:        cfg.Decision.BuyThresholdCap,
		Snapshot:      cfg.Outcome.SnapshotOnScan,
	}

	snapshotSvc := &service.PortfolioSnapshotService{
		Repo:   store,
		Quotes: quoteStream,
		Logger: logger,
		Flags:  settingsSvc,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	ginEngine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(ginEngine)
	tradesHandler := &handler.TradesHandler{Repo: store, Logger: logger}
	tradesHandler.Register(ginEngine)
	positionsHandler := &handler.PositionsHandler{Repo: store, Logger: logger}
	positionsHandler.Register(ginEngine)
	decisionsHandler := &handler.DecisionsHandler{Repo: store, Logger: logger}
	decisionsHandler.Register(ginEngine)
	modelsHandler := &handler.ModelsHandler{Repo: store, Logger: logger}
	modelsHandler.Register(ginEngine)
	performanceHandler := &handler.PerformanceHandler{Repo: store, Logger: logger}
	performanceHandler.Register(ginEngine)
	instructionsHandler := &handler.InstructionsHandler{Repo: store, Logger: logger}
	instructionsHandler.Register(ginEngine)
	settingsHandler := &handler.SystemSettingsHandler{Repo: store, Settings: settingsSvc, Logger: logger}
	settingsHandler.Register(ginEngine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: ginEngine,
	}

	cronRunner := cronrunner.New(logger, baseCtx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add("outcome_scan", cfg.Cron.OutcomeScan, func(ctx context.Context) {
			if !settingsSvc.IsEnabled(ctx, service.FeatureOutcomeTracker, true) {
				return
			}
			if err := tracker.RunOnce(ctx); err != nil {
				logger.Warn("outcome scan failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register outcome scan failed", zap.Error(err))
		}

		_, err = cronRunner.Add("portfolio_snapshot", cfg.Cron.PortfolioSnapshot, func(ctx context.Context) {
			if err := snapshotSvc.RunOnce(ctx); err != nil {
				logger.Warn("portfolio snapshot failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register portfolio snapshot failed", zap.Error(err))
		}

		_, err = cronRunner.Add("instruction_expiry", cfg.Cron.InstructionExpiry, func(ctx context.Context) {
			cutoff := time.Now().UTC().Add(-24 * time.Hour)
			n, err := store.ExpireTradeInstructions(ctx, cutoff)
			if err != nil {
				logger.Warn("instruction expiry failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("expired stale trade instructions", zap.Int64("count", n))
			}
		})
		if err != nil {
			logger.Warn("cron register instruction expiry failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if settingsSvc.IsEnabled(baseCtx, service.FeatureEngine, true) {
		go func() {
			if err := engine.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("trading engine stopped", zap.Error(err))
			}
		}()
	}

	if quoteStream != nil && settingsSvc.IsEnabled(baseCtx, service.FeatureExitSweep, false) {
		go func() {
			if err := engine.RunSweep(baseCtx, cfg.Stream.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("exit sweep stopped", zap.Error(err))
			}
		}()
	}

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
