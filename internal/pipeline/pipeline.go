// Package pipeline runs a batch of candidate papers through the classifier
// and stores the accepted ones.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paperscope/paperscope/internal/classify"
	"github.com/paperscope/paperscope/internal/core"
)

// Classifier is the subset of *classify.Classifier the runner drives.
type Classifier interface {
	Classify(ctx context.Context, paper core.Paper) (classify.Verdict, error)
	Feed() core.FeedType
	QuickModel() string
	DetailedModel() string
}

// Store persists accepted papers.
type Store interface {
	Exists(ctx context.Context, feed core.FeedType, url string) (bool, error)
	Save(ctx context.Context, paper core.StoredPaper) error
}

// Embedder turns paper text into a vector. Optional.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Logger is satisfied by both *logging.Logger and *zap.Logger.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Options tunes a Runner.
type Options struct {
	// Workers bounds concurrent papers; values below 1 mean sequential.
	Workers int
	// DryRun classifies without writing to the store.
	DryRun bool
	Logger Logger
	Clock  func() time.Time
}

// Summary reports what a run did.
type Summary struct {
	Feed             core.FeedType          `json:"feed"`
	Found            int                    `json:"found"`
	Incomplete       int                    `json:"incomplete"`
	Existing         int                    `json:"existing"`
	RejectedQuick    int                    `json:"rejected_quick"`
	RejectedDetailed int                    `json:"rejected_detailed"`
	Accepted         int                    `json:"accepted"`
	Failed           int                    `json:"failed"`
	Papers           []core.StoredPaper     `json:"papers"`
	Cost             classify.CostBreakdown `json:"cost"`
	Duration         time.Duration          `json:"duration"`
	// Stopped is set when a rate limit, quota or cancellation ended the run early.
	Stopped string `json:"stopped,omitempty"`
}

// Runner classifies candidate papers and stores the relevant ones.
type Runner struct {
	classifier Classifier
	store      Store
	embedder   Embedder
	opts       Options
	logger     Logger
}

// New builds a runner. store and embedder may be nil.
func New(classifier Classifier, store Store, embedder Embedder, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{classifier: classifier, store: store, embedder: embedder, opts: opts, logger: logger}
}

type tally struct {
	mu             sync.Mutex
	summary        Summary
	quickTokens    int
	detailedTokens int
}

func (t *tally) add(fn func(s *Summary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.summary)
}

// Run processes papers and returns the summary. A fatal classifier error
// (rate limit exhausted, quota exhausted, cancellation) stops the run; the
// partial summary is returned alongside it. Per-paper failures are counted
// and skipped.
func (r *Runner) Run(ctx context.Context, papers []core.Paper) (*Summary, error) {
	started := r.now()
	feed := r.classifier.Feed()
	t := &tally{summary: Summary{Feed: feed, Found: len(papers)}}

	r.logger.Info("Processing papers", zap.String("feed", string(feed)), zap.Int("found", len(papers)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, paper := range papers {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return r.process(gctx, feed, paper, t)
		})
	}
	err := g.Wait()

	summary := t.summary
	summary.Cost = classify.Breakdown(r.classifier.QuickModel(), t.quickTokens, r.classifier.DetailedModel(), t.detailedTokens)
	summary.Duration = r.now().Sub(started)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		summary.Stopped = err.Error()
		r.logger.Warn("Run stopped early", zap.Error(err))
	}

	r.logger.Info("Run complete",
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected_quick", summary.RejectedQuick),
		zap.Int("rejected_detailed", summary.RejectedDetailed),
		zap.Int("existing", summary.Existing),
		zap.Int("failed", summary.Failed),
		zap.Int("quick_tokens", summary.Cost.QuickTokens),
		zap.Int("detailed_tokens", summary.Cost.DetailedTokens),
		zap.Float64("total_cost", summary.Cost.Total),
		zap.Float64("savings", summary.Cost.Savings))
	return &summary, err
}

func (r *Runner) process(ctx context.Context, feed core.FeedType, paper core.Paper, t *tally) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	paper.Title = strings.TrimSpace(paper.Title)
	paper.URL = strings.TrimSpace(paper.URL)
	if paper.Title == "" || paper.URL == "" {
		r.logger.Debug("Skipping paper without title or URL", zap.String("url", paper.URL))
		t.add(func(s *Summary) { s.Incomplete++ })
		return nil
	}

	if r.store != nil {
		exists, err := r.store.Exists(ctx, feed, paper.URL)
		if err != nil {
			r.logger.Warn("Existence check failed", zap.String("url", paper.URL), zap.Error(err))
		} else if exists {
			r.logger.Info("Already stored", zap.String("title", paper.Title))
			t.add(func(s *Summary) { s.Existing++ })
			return nil
		}
	}

	verdict, err := r.classifier.Classify(ctx, paper)
	t.mu.Lock()
	t.quickTokens += verdict.QuickTokens
	t.detailedTokens += verdict.DetailedTokens
	t.mu.Unlock()
	if err != nil {
		t.add(func(s *Summary) { s.Failed++ })
		if classify.IsFatal(err) {
			return err
		}
		return nil
	}

	switch verdict.Outcome {
	case classify.OutcomeRejectedQuick:
		t.add(func(s *Summary) { s.RejectedQuick++ })
		return nil
	case classify.OutcomeRejectedDetailed:
		t.add(func(s *Summary) { s.RejectedDetailed++ })
		return nil
	}

	row := core.NewStoredPaper(paper, feed, verdict.Result)
	row.StoredAt = r.now().UTC()
	if r.embedder != nil {
		vector, err := r.embedder.Embed(ctx, row.Title+"\n\n"+row.Abstract)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.logger.Warn("Embedding failed, storing without vector", zap.String("title", row.Title), zap.Error(err))
		} else {
			row.Vector = vector
		}
	}

	if r.store != nil && !r.opts.DryRun {
		if err := r.store.Save(ctx, row); err != nil {
			r.logger.Warn("Failed to store paper", zap.String("title", row.Title), zap.Error(err))
			t.add(func(s *Summary) { s.Failed++ })
			return nil
		}
	}
	t.add(func(s *Summary) {
		s.Accepted++
		s.Papers = append(s.Papers, row)
	})
	return nil
}

func (r *Runner) now() time.Time {
	if r.opts.Clock != nil {
		return r.opts.Clock()
	}
	return time.Now()
}

// String renders a one-line summary for logs and plain output.
func (s *Summary) String() string {
	return fmt.Sprintf("%s: %d found, %d accepted, %d rejected (quick), %d rejected (detailed), %d existing, %d failed",
		s.Feed.Title(), s.Found, s.Accepted, s.RejectedQuick, s.RejectedDetailed, s.Existing, s.Failed)
}
