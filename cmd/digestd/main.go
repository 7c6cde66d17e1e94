package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slackapi "github.com/slack-go/slack"

	"github.com/RishbhaJain/daily-digest/internal/config"
	"github.com/RishbhaJain/daily-digest/internal/digest"
	"github.com/RishbhaJain/daily-digest/internal/extract"
	"github.com/RishbhaJain/daily-digest/internal/health"
	"github.com/RishbhaJain/daily-digest/internal/metrics"
	"github.com/RishbhaJain/daily-digest/internal/mgmt"
	"github.com/RishbhaJain/daily-digest/internal/phase"
	"github.com/RishbhaJain/daily-digest/internal/pipeline"
	"github.com/RishbhaJain/daily-digest/internal/rank"
	"github.com/RishbhaJain/daily-digest/internal/scheduler"
	slackpkg "github.com/RishbhaJain/daily-digest/internal/slack"
	"github.com/RishbhaJain/daily-digest/internal/store"
	"github.com/RishbhaJain/daily-digest/internal/summarize"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Bool("summarizer_enabled", cfg.SummarizerEnabled()).
		Msg("starting digest service")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Persistence
	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	// Project registry
	projects, err := extract.LoadRegistry(cfg.ProjectsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ProjectsFile).Msg("failed to load project registry")
	}
	extractor := extract.New(projects, logger)

	m := metrics.New()

	checker := health.NewChecker(logger)
	checker.Register("store", func(ctx context.Context) health.Status {
		if err := st.Ping(); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	// Slack ingestion and delivery (optional)
	var ingester pipeline.Ingester
	var deliverer pipeline.Deliverer
	if cfg.SlackEnabled() {
		api := slackapi.New(cfg.SlackBotToken)
		ingester = slackpkg.NewIngester(api, cfg.SlackChannelList(), logger)
		deliverer = slackpkg.NewNotifier(api, logger)
		checker.Register("slack", func(ctx context.Context) health.Status {
			if _, err := api.AuthTestContext(ctx); err != nil {
				return health.StatusDegraded
			}
			return health.StatusOK
		})
		logger.Info().Int("channels", len(cfg.SlackChannelList())).Msg("Slack ingestion enabled")
	} else {
		logger.Info().Msg("Slack not configured — running on stored messages only")
	}

	// Summarizer (optional — review groups fall back to deterministic text)
	var summarizer summarize.Summarizer
	if cfg.SummarizerEnabled() {
		summarizer = summarize.NewAnthropic(cfg.AnthropicAPIKey, logger,
			summarize.WithModel(cfg.SummarizerModel))
		checker.Register("summarizer", func(ctx context.Context) health.Status {
			return health.StatusOK
		})
		logger.Info().Str("model", cfg.SummarizerModel).Msg("summarizer enabled")
	} else {
		logger.Info().Msg("summarizer not configured — using deterministic summaries")
	}

	// Pipeline
	machine := phase.NewMachine(phase.Config{
		StalenessWindow: cfg.StalenessWindow,
		ActivityWindow:  cfg.ActivityWindow,
	}, logger)
	scorer := rank.NewScorer(rank.Config{
		HalfLife:          cfg.RecencyHalfLife,
		UrgencyBoost:      cfg.UrgencyBoost,
		MentionBoost:      cfg.MentionBoost,
		ActivityBoostStep: cfg.ActivityBoostStep,
		ActivityBoostCap:  cfg.ActivityBoostCap,
		ReviewMultiplier:  cfg.ReviewMultiplier,
		UnknownScore:      cfg.UnknownScore,
		BlockedFloor:      cfg.BlockedFloorScore,
	})
	assembler := digest.NewAssembler(digest.Config{
		MaxItems:      cfg.MaxDigestItems,
		SummaryMaxLen: 150,
	}, summarizer, logger)

	pipe := pipeline.New(pipeline.Config{
		MessageWindow:  cfg.MessageWindow,
		ActivityWindow: cfg.ActivityWindow,
	}, st, ingester, deliverer, extractor, machine, scorer, assembler, m, logger)

	users := cfg.DigestUserList()
	if len(users) == 0 {
		logger.Warn().Msg("no digest users configured — runs will be no-ops")
	}

	sched := scheduler.New(cfg.DigestInterval, func(ctx context.Context, now time.Time) error {
		_, err := pipe.Run(ctx, users, now)
		return err
	}, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("scheduler error")
		}
	}()

	// Management API
	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:   cfg.MgmtAuthMode,
			APIKey: cfg.MgmtAPIKey,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: cfg.MgmtCORSOrigins,
	}, st, sched, checker, m, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := mgmtServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("digest service stopped")
}
