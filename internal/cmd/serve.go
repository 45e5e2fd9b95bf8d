package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/classify"
	"github.com/paperscope/paperscope/internal/core"
	apperrors "github.com/paperscope/paperscope/internal/errors"
	"github.com/paperscope/paperscope/internal/metrics"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/server"
	"github.com/paperscope/paperscope/internal/server/handlers"
)

const uptimeInterval = 15 * time.Second

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker reports whether the Prometheus exporter is running.
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return apperrors.NewServiceUnavailableError("telemetry system not initialized")
	}
	return nil
}

type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return apperrors.NewValidationError("app identity missing binary name")
	case i.envPrefix == "":
		return apperrors.NewValidationError("app identity missing env prefix")
	case i.configName == "":
		return apperrors.NewValidationError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the classifier over HTTP",
	Long: `Start the HTTP service with graceful shutdown support.

Endpoints:
  POST /v1/classify   classify one paper or a batch for a feed
  POST /v1/quality    score a paper's quality
  GET  /v1/limits     window, quota and cache diagnostics
  GET  /health        aggregate health (plus /health/live, /ready, /startup)

Provider rate limits answer 429 and an exhausted daily quota answers 503; the
process keeps serving.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file and apply the quota tier`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		observability.InitServerLogger(identity.BinaryName, settings.GetString("logging.level"), namespace)
		logger := observability.Server()

		a, err := newApp(ctx, appOptions{withModels: true, logger: logger})
		if err != nil {
			return err
		}
		defer a.close()

		if cmd.Flags().Changed("host") {
			a.cfg.Server.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			a.cfg.Server.Port = serverPort
		}

		hm := handlers.NewHealthManager(versionInfo.Version)
		if a.cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, a.cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "metrics initialization failed")
			}
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
		hm.RegisterChecker("store", handlers.CheckFunc(func(ctx context.Context) error {
			_, err := a.db.CountPapers(ctx, a.cfg.FeedType())
			return err
		}))

		handlers.SetAppIdentity(identity)
		handlers.SetModels(a.cfg.AILink.ModelFor("quick"), a.cfg.AILink.ModelFor("detailed"))

		aiSecurity := a.classifier(core.FeedAISecurity, false)
		web3Security := a.classifier(core.FeedWeb3Security, false)
		api := &handlers.API{
			Classifiers: map[core.FeedType]handlers.Classifier{
				core.FeedAISecurity:   aiSecurity,
				core.FeedWeb3Security: web3Security,
			},
			Reviewer:   classify.NewReviewer(a.service, a.cfg.AILink.ModelFor("quality"), logger),
			Governance: a.governor,
			Cache: func() core.CacheStats {
				ai, web3 := aiSecurity.CacheStats(), web3Security.CacheStats()
				return core.CacheStats{
					Entries: ai.Entries + web3.Entries,
					Hits:    ai.Hits + web3.Hits,
					Misses:  ai.Misses + web3.Misses,
				}
			},
		}

		srv := server.New(server.Config{
			Host:         a.cfg.Server.Host,
			Port:         a.cfg.Server.Port,
			API:          api,
			Health:       hm,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		})

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", a.cfg.Server.Host),
			zap.Int("port", a.cfg.Server.Port),
			zap.Bool("metrics", a.cfg.Metrics.Enabled))

		shutdownTimeout := a.cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		uptimeCtx, stopUptime := context.WithCancel(ctx)
		defer stopUptime()
		started := time.Now()
		metrics.SetServerStartTime(started.Unix())
		go trackUptime(uptimeCtx, started)

		// Shutdown handlers run LIFO: the HTTP server stops before the logger flushes.
		signals.OnShutdown(func(ctx context.Context) error {
			if observability.ServerLogger != nil {
				if err := observability.ServerLogger.Sync(); err != nil {
					logger.Debug("Logger sync returned error (may be benign)", zap.Error(err))
				}
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			stopUptime()
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			return reloadSettings(ctx, a, logger)
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
				return
			}
			errChan <- nil
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server error")
		}
		return nil
	},
}

// reloadSettings re-reads the config file on SIGHUP. Only the quota tier is
// applied live; other settings need a restart.
func reloadSettings(ctx context.Context, a *app, logger observability.Logger) error {
	if settings == nil {
		return nil
	}
	if err := settings.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Info("No config file found - using defaults and environment variables")
			return nil
		}
		logger.Error("Failed to reload config file", zap.String("file", settings.ConfigFileUsed()), zap.Error(err))
		return apperrors.Wrap(ctx, apperrors.CodeValidationFailed, err, "config reload failed")
	}

	cfg, err := loadConfig()
	if err != nil {
		return apperrors.Wrap(ctx, apperrors.CodeValidationFailed, err, "config reload failed")
	}
	if a.governor != nil && a.governor.Quota != nil {
		a.governor.Quota.SetLimit(cfg.Governance.DailyLimit)
		a.governor.Quota.SetPaidTier(cfg.Governance.PaidTier)
	}
	logger.Info("Configuration reloaded",
		zap.String("file", settings.ConfigFileUsed()),
		zap.Int("daily_limit", cfg.Governance.DailyLimit),
		zap.Bool("paid_tier", cfg.Governance.PaidTier))
	return nil
}

func trackUptime(ctx context.Context, started time.Time) {
	ticker := time.NewTicker(uptimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetServerUptime(int64(time.Since(started).Seconds()))
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
}
