package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/appid"
	"github.com/paperscope/paperscope/internal/config"
	"github.com/paperscope/paperscope/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string
	feedFlag  string

	// settings is the layered viper instance built by initConfig.
	settings *viper.Viper

	appIdentity *appidentity.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}

	stopTracing func()
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the loaded app identity, or a minimal one built from
// defaults when none could be resolved.
func GetAppIdentity() *appidentity.Identity {
	if appIdentity != nil {
		return appIdentity
	}
	return &appidentity.Identity{
		BinaryName: appid.DefaultBinaryName,
		EnvPrefix:  appid.DefaultEnvPrefix,
		ConfigName: config.AppName,
	}
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Screen academic papers for security relevance with a two-stage LLM classifier",
	Long: `paperscope screens candidate papers with a cheap yes/no model, then asks a
stronger model for a structured assessment of the survivors. Every model call
passes through a sliding-window rate limiter, a daily quota for free-tier
models, and a response cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopTracing != nil {
			stopTracing()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global telemetry stays disabled until serve initializes the exporter.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	if identity, err := appid.Get(context.Background()); err == nil && identity != nil {
		appIdentity = identity
		if identity.BinaryName != "" {
			rootCmd.Use = identity.BinaryName
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml, then $XDG_CONFIG_HOME/paperscope/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace model requests/responses to NDJSON file")
	rootCmd.PersistentFlags().StringVar(&feedFlag, "feed", "", "feed type: ai-security or web3-security (overrides feed.type)")
}

// initConfig builds the viper instance: defaults, config file, environment.
func initConfig() {
	identity := GetAppIdentity()
	observability.InitCLILogger(identity.BinaryName, verbose)
	logger := observability.CLI()

	if traceFile != "" {
		cleanup, err := driver.EnableTracing(traceFile)
		if err != nil {
			logger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			logger.Debug("Model request tracing enabled", zap.String("file", traceFile))
			stopTracing = cleanup
		}
	}

	v, err := config.NewViper()
	if err != nil {
		ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to prepare configuration", err)
	}
	settings = v

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		for _, dir := range config.DefaultConfigDirs() {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err == nil {
		logger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
	} else {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			logger.Debug("No config file found, using defaults and environment variables")
		case cfgFile != "":
			ExitWithCode(logger, foundry.ExitFileNotFound, "Failed to read config file", err)
		default:
			logger.Warn("Error reading config file", zap.Error(err))
		}
	}

	if strings.TrimSpace(feedFlag) != "" {
		v.Set("feed.type", feedFlag)
	}
}

// loadConfig decodes and validates the merged settings.
func loadConfig() (*config.Config, error) {
	if settings == nil {
		v, err := config.NewViper()
		if err != nil {
			return nil, err
		}
		settings = v
	}
	cfg, err := config.Load(settings)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// configFilePath returns the file settings were read from, or the default
// user config path when none was found.
func configFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if settings != nil && settings.ConfigFileUsed() != "" {
		return settings.ConfigFileUsed()
	}
	return config.DefaultConfigPath()
}
