package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/ailink"
	"github.com/paperscope/paperscope/internal/ailink/driver/openai"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
	"github.com/paperscope/paperscope/internal/classify"
	"github.com/paperscope/paperscope/internal/config"
	"github.com/paperscope/paperscope/internal/core"
	"github.com/paperscope/paperscope/internal/core/engine"
	"github.com/paperscope/paperscope/internal/core/store"
	"github.com/paperscope/paperscope/internal/embed"
	"github.com/paperscope/paperscope/internal/metrics"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/pipeline"
	"github.com/paperscope/paperscope/internal/vectorstore"
)

// quotaJournalHorizon bounds how far back the quota journal is replayed.
const quotaJournalHorizon = 24 * time.Hour

// app holds the wired components a command needs. Fields stay nil when the
// command did not ask for them.
type app struct {
	cfg      *config.Config
	db       *store.Store
	vectors  *vectorstore.Store
	governor *engine.Governor
	client   *openai.Client
	service  *ailink.Service
	embedder *embed.Ollama
	logger   observability.Logger
}

type appOptions struct {
	// withModels wires the governed driver and prompt service.
	withModels bool
	// withPapers opens the configured paper store (and embedder).
	withPapers bool
	// logger replaces the CLI logger, e.g. with the server logger.
	logger observability.Logger
}

// newApp loads configuration and wires the requested components. The libsql
// store is always opened; it holds the quota journal and throttle state.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	a := &app{cfg: cfg, logger: opts.logger}
	if a.logger == nil {
		a.logger = observability.CLI()
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if opts.withModels {
		if err := a.wireModels(ctx); err != nil {
			a.close()
			return nil, err
		}
	}
	if opts.withPapers {
		if err := a.wirePapers(); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			a.logger.Warn("Failed to close qdrant connection", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close store", zap.Error(err))
		}
	}
}

func (a *app) openStore(ctx context.Context) error {
	db, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	return nil
}

func (a *app) wireModels(ctx context.Context) error {
	if strings.TrimSpace(a.cfg.AILink.APIKey) == "" {
		return fmt.Errorf("%w: ailink.api_key is not set (PAPERSCOPE_AILINK_API_KEY or OPENROUTER_API_KEY)", ErrConfig)
	}

	a.governor = a.buildGovernor(ctx)
	a.client = ailink.NewClient(a.cfg.AILink, a.governor)

	endpoint := a.client.Name()
	throttled := a.client.On429
	a.client.On429 = func(retryAfter time.Duration) {
		throttled(retryAfter)
		a.logger.Warn("Provider rate limit hit", zap.String("endpoint", endpoint), zap.Duration("retry_after", retryAfter))
		if _, err := a.db.RecordThrottle(context.Background(), endpoint, retryAfter, time.Now().UTC()); err != nil {
			a.logger.Warn("Failed to persist throttle state", zap.Error(err))
		}
	}

	// A backoff persisted by an earlier process still applies to this one.
	if wait, err := a.db.ActiveBackoff(ctx, endpoint, time.Now().UTC()); err != nil {
		a.logger.Warn("Failed to read throttle state", zap.Error(err))
	} else if wait > 0 {
		a.logger.Info("Resuming provider backoff", zap.String("endpoint", endpoint), zap.Duration("remaining", wait))
		a.governor.Throttled(wait)
	}

	registry, err := prompt.LoadRegistry(a.cfg.AILink.PromptsDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	a.service = ailink.NewService(a.cfg.AILink, a.client, registry)
	return nil
}

// buildGovernor wires the window and quota with logging, metrics, and the
// libsql quota journal.
func (a *app) buildGovernor(ctx context.Context) *engine.Governor {
	g := a.cfg.Governance
	logger := a.logger

	window := engine.NewSlidingWindow(g.WindowLimit, g.WindowDuration)
	window.Margin = g.SafetyMargin
	window.OnWait = func(wait time.Duration) {
		logger.Info("Rate limit reached, waiting", zap.Duration("wait", wait))
		metrics.RecordGovernanceWait("window", wait)
	}

	quota := engine.NewDailyQuota(g.DailyLimit)
	if g.PaidDailyLimit > 0 {
		quota.PaidLimit = g.PaidDailyLimit
	}
	if g.MaxQuotaWait > 0 {
		quota.MaxWait = g.MaxQuotaWait
	}
	quota.SetPaidTier(g.PaidTier)
	quota.OnWait = func(wait time.Duration) {
		logger.Warn("Daily quota reached, waiting for UTC midnight", zap.Duration("wait", wait))
		metrics.RecordGovernanceWait("quota", wait)
	}

	since := time.Now().UTC().Add(-quotaJournalHorizon)
	if stamps, err := a.db.QuotaUsageSince(ctx, since); err != nil {
		logger.Warn("Failed to restore quota journal", zap.Error(err))
	} else {
		quota.Restore(stamps)
	}
	if _, err := a.db.PruneQuotaUsage(ctx, since); err != nil {
		logger.Debug("Failed to prune quota journal", zap.Error(err))
	}
	db := a.db
	quota.OnRecord = func(model string, at time.Time) {
		if err := db.RecordQuotaUsage(context.Background(), model, at); err != nil {
			logger.Warn("Failed to journal quota usage", zap.Error(err))
		}
	}
	quota.OnRelease = func(model string, at time.Time) {
		if _, err := db.DeleteQuotaUsage(context.Background(), model, at); err != nil {
			logger.Warn("Failed to release journaled quota usage", zap.Error(err))
		}
	}

	return engine.NewGovernor(window, quota)
}

func (a *app) wirePapers() error {
	if strings.EqualFold(a.cfg.Embedding.Provider, "ollama") {
		embedder, err := embed.NewOllama(embed.Options{
			URL:        a.cfg.Embedding.URL,
			Model:      a.cfg.Embedding.Model,
			Dimensions: a.cfg.Qdrant.VectorSize,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		a.embedder = embedder
	}

	if a.cfg.Store.Driver == "qdrant" {
		vectors, err := vectorstore.Open(vectorstore.Options{
			Host:       a.cfg.Qdrant.Host,
			Port:       a.cfg.Qdrant.Port,
			UseTLS:     a.cfg.Qdrant.UseTLS,
			APIKey:     a.cfg.Qdrant.APIKey,
			Collection: a.cfg.Qdrant.Collection,
			VectorSize: a.cfg.Qdrant.VectorSize,
		})
		if err != nil {
			return err
		}
		a.vectors = vectors
	}
	return nil
}

// papers returns the paper store the pipeline writes to.
func (a *app) papers() pipeline.Store {
	if a.vectors != nil {
		return a.vectors
	}
	return sqlPapers{db: a.db}
}

// pipelineEmbedder avoids handing the runner a typed-nil interface.
func (a *app) pipelineEmbedder() pipeline.Embedder {
	if a.embedder == nil {
		return nil
	}
	return a.embedder
}

func (a *app) classifier(feed core.FeedType, noCache bool) *classify.Classifier {
	return classify.New(a.service, classify.Options{
		Feed:          feed,
		DisableCache:  noCache,
		QuickModel:    a.cfg.AILink.Models.Quick,
		DetailedModel: a.cfg.AILink.Models.Detailed,
		CourtesyDelay: a.cfg.Governance.CourtesyDelay,
		Logger:        a.logger,
	})
}

// sqlPapers adapts the libsql store to pipeline.Store.
type sqlPapers struct {
	db *store.Store
}

func (s sqlPapers) Exists(ctx context.Context, feed core.FeedType, url string) (bool, error) {
	return s.db.PaperExists(ctx, feed, url)
}

func (s sqlPapers) Save(ctx context.Context, paper core.StoredPaper) error {
	return s.db.SavePaper(ctx, paper)
}

// listPapers reads stored papers from whichever backend is configured.
func (a *app) listPapers(ctx context.Context, feed core.FeedType, limit int) ([]core.StoredPaper, error) {
	if a.vectors != nil {
		papers, err := a.vectors.List(ctx, feed)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(papers) > limit {
			papers = papers[:limit]
		}
		return papers, nil
	}
	return a.db.ListPapers(ctx, store.PaperQuery{Feed: feed, Limit: limit})
}
