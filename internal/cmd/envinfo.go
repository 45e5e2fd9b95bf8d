package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are reported as set or not set.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLI()
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		logger.Info("=== " + identity.BinaryName + " environment ===")
		logger.Info("Application:")
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info(fmt.Sprintf("  Platform:   %s/%s, %d CPUs", runtime.GOOS, runtime.GOARCH, runtime.NumCPU()))

		cfg, err := loadConfig()
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		logger.Info("Configuration:")
		logger.Info("  Config File:   " + configFilePath())
		logger.Info("  Feed:          " + string(cfg.FeedType()))
		logger.Info(fmt.Sprintf("  Source:        %s (max %d, since %s)", cfg.Source.Kind, cfg.Source.MaxResults, cfg.Source.Since))
		logger.Info("  Store:         " + cfg.Store.Driver)
		if cfg.Store.URL != "" {
			logger.Info("  Store URL:     " + cfg.Store.URL)
		} else {
			logger.Info("  Store Path:    " + cfg.Store.Path)
		}
		if cfg.Store.Driver == "qdrant" {
			logger.Info(fmt.Sprintf("  Qdrant:        %s:%d/%s", cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Collection()))
			logger.Info("  Embedding:     " + cfg.Embedding.Provider + " " + cfg.Embedding.Model)
		}
		logger.Info("Models:")
		logger.Info("  Provider:      " + cfg.AILink.Provider + " " + cfg.AILink.BaseURL)
		logger.Info("  API Key:       " + setOrNot(cfg.AILink.APIKey))
		for _, role := range []string{"quick", "detailed", "quality", "keywords", "probe"} {
			logger.Info(fmt.Sprintf("  %-14s %s", role+":", cfg.AILink.ModelFor(role)))
		}
		logger.Info("Governance:")
		logger.Info(fmt.Sprintf("  Window:        %d per %s", cfg.Governance.WindowLimit, cfg.Governance.WindowDuration))
		logger.Info(fmt.Sprintf("  Daily Limit:   %d (paid tier %t, paid limit %d)", cfg.Governance.DailyLimit, cfg.Governance.PaidTier, cfg.Governance.PaidDailyLimit))
		logger.Info(fmt.Sprintf("  Metrics:       enabled=%t port=%d", cfg.Metrics.Enabled, cfg.Metrics.Port))
	},
}

func setOrNot(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
