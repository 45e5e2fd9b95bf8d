// Package classify runs the two-stage relevance classifier and the paper
// quality review on top of the ailink prompt service.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/ailink"
	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
	"github.com/paperscope/paperscope/internal/core"
	"github.com/paperscope/paperscope/internal/core/engine"
	"github.com/paperscope/paperscope/internal/core/normalize"
	"github.com/paperscope/paperscope/internal/metrics"
)

// FailedReason is the reason attached to the default result when the model
// output cannot be recovered.
const FailedReason = "classification failed"

// Generator is the prompt execution surface the classifier needs.
// *ailink.Service satisfies it.
type Generator interface {
	Generate(ctx context.Context, req ailink.GenerateRequest) (*ailink.GenerateResponse, error)
	ValidateResponse(slug string, payload []byte) error
	ModelFor(slug, override string) (string, error)
}

// Logger is satisfied by both *logging.Logger and *zap.Logger.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Outcome is the terminal state of one paper.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeRejectedQuick    Outcome = "rejected_quick"
	OutcomeRejectedDetailed Outcome = "rejected_detailed"
	OutcomeFailed           Outcome = "failed"
)

// Verdict is the classifier's answer for one paper plus its spend.
type Verdict struct {
	Result         core.ClassificationResult
	Outcome        Outcome
	QuickModel     string
	DetailedModel  string
	QuickTokens    int
	DetailedTokens int
	// Stage records how the detailed JSON was recovered.
	Stage normalize.Stage
}

// Options configures a Classifier.
type Options struct {
	Feed          core.FeedType
	QuickModel    string
	DetailedModel string
	// DisableCache turns off response memoization.
	DisableCache bool
	// CourtesyDelay pauses before detailed calls on free-tier models once a
	// paper has been accepted.
	CourtesyDelay time.Duration
	// Sleep replaces the courtesy pause in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger Logger
}

type quickEntry struct {
	Relevant bool
	Tokens   int
}

type detailedEntry struct {
	Result core.ClassificationResult
	Stage  normalize.Stage
	Tokens int
}

// Classifier decides paper relevance with a cheap screen followed by a
// strict structured assessment. Safe for concurrent use.
type Classifier struct {
	gen           Generator
	feed          core.FeedType
	quickModel    string
	detailedModel string
	logger        Logger
	courtesy      time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	accepted      atomic.Int64

	quickCache    *engine.ResponseCache[quickEntry]
	detailedCache *engine.ResponseCache[detailedEntry]
}

// New builds a classifier over gen.
func New(gen Generator, opts Options) *Classifier {
	feed := opts.Feed
	if feed == "" {
		feed = core.FeedAISecurity
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Classifier{
		gen:           gen,
		feed:          feed,
		quickModel:    strings.TrimSpace(opts.QuickModel),
		detailedModel: strings.TrimSpace(opts.DetailedModel),
		logger:        logger,
		courtesy:      opts.CourtesyDelay,
		sleep:         opts.Sleep,
	}
	if c.sleep == nil {
		c.sleep = engine.SleepContext
	}
	if !opts.DisableCache {
		c.quickCache = engine.NewResponseCache[quickEntry]()
		c.detailedCache = engine.NewResponseCache[detailedEntry]()
	}
	return c
}

// Feed returns the feed the classifier judges against.
func (c *Classifier) Feed() core.FeedType {
	return c.feed
}

// QuickModel returns the resolved stage-one model.
func (c *Classifier) QuickModel() string {
	model, _ := c.gen.ModelFor(prompt.SlugQuickRelevance, c.quickModel)
	return model
}

// DetailedModel returns the resolved stage-two model.
func (c *Classifier) DetailedModel() string {
	model, _ := c.gen.ModelFor(prompt.SlugDetailedRelevance, c.detailedModel)
	return model
}

// CacheStats sums both stage caches.
func (c *Classifier) CacheStats() core.CacheStats {
	quick := c.quickCache.Stats()
	detailed := c.detailedCache.Stats()
	return core.CacheStats{
		Entries: quick.Entries + detailed.Entries,
		Hits:    quick.Hits + detailed.Hits,
		Misses:  quick.Misses + detailed.Misses,
	}
}

// Classify runs the quick screen and, only when it passes, the detailed stage.
//
// A non-nil error always comes with Outcome failed and a not-relevant result.
// Rate limit and quota errors are returned unchanged so callers can stop the
// run (see IsFatal).
func (c *Classifier) Classify(ctx context.Context, paper core.Paper) (Verdict, error) {
	verdict := Verdict{
		QuickModel:    c.QuickModel(),
		DetailedModel: c.DetailedModel(),
	}

	relevant, tokens, err := c.QuickAssess(ctx, paper.ScreeningText())
	verdict.QuickTokens = tokens
	if err != nil {
		return c.fail(verdict, paper, "quick", err)
	}
	if !relevant {
		verdict.Outcome = OutcomeRejectedQuick
		c.record(verdict)
		c.logger.Info("Not relevant (quick assessment)", zap.String("title", paper.Title))
		return verdict, nil
	}
	c.logger.Debug("Potentially relevant (quick assessment)", zap.String("title", paper.Title))

	if err := c.courtesyPause(ctx, verdict.DetailedModel); err != nil {
		return c.fail(verdict, paper, "detailed", err)
	}
	result, stage, tokens, err := c.detailedAssess(ctx, paper.AssessmentText())
	verdict.DetailedTokens = tokens
	verdict.Stage = stage
	if err != nil {
		return c.fail(verdict, paper, "detailed", err)
	}

	verdict.Result = result
	if result.Relevant {
		verdict.Outcome = OutcomeAccepted
		c.accepted.Add(1)
		c.logger.Info("Relevant", zap.String("title", paper.Title), zap.Int("score", result.RelevanceScore))
	} else {
		verdict.Outcome = OutcomeRejectedDetailed
		c.logger.Info("Not relevant (detailed assessment)", zap.String("title", paper.Title))
	}
	c.record(verdict)
	return verdict, nil
}

// QuickAssess asks the quick model a yes/no question. Any reply containing
// "yes" passes; models tend to pad the answer.
func (c *Classifier) QuickAssess(ctx context.Context, text string) (bool, int, error) {
	model := c.QuickModel()
	run := func(ctx context.Context) (quickEntry, error) {
		resp, err := c.gen.Generate(ctx, ailink.GenerateRequest{
			PromptSlug: prompt.SlugQuickRelevance,
			Model:      model,
			Variables:  c.variables(text),
		})
		if err != nil {
			return quickEntry{}, err
		}
		answer := strings.ToLower(strings.TrimSpace(resp.Text))
		return quickEntry{Relevant: strings.Contains(answer, "yes"), Tokens: resp.Tokens()}, nil
	}

	key := engine.CacheKey(c.function(prompt.SlugQuickRelevance), model, text)
	entry, cached, err := c.quickCache.Do(ctx, key, run)
	if c.quickCache != nil {
		metrics.RecordCacheLookup(prompt.SlugQuickRelevance, cached)
	}
	if err != nil {
		return false, 0, err
	}
	if cached {
		return entry.Relevant, 0, nil
	}
	return entry.Relevant, entry.Tokens, nil
}

// DetailedAssess runs the strict structured assessment on text.
func (c *Classifier) DetailedAssess(ctx context.Context, text string) (core.ClassificationResult, int, error) {
	result, _, tokens, err := c.detailedAssess(ctx, text)
	return result, tokens, err
}

func (c *Classifier) detailedAssess(ctx context.Context, text string) (core.ClassificationResult, normalize.Stage, int, error) {
	model := c.DetailedModel()
	run := func(ctx context.Context) (detailedEntry, error) {
		resp, err := c.gen.Generate(ctx, ailink.GenerateRequest{
			PromptSlug: prompt.SlugDetailedRelevance,
			Model:      model,
			Variables:  c.variables(text),
		})
		if err != nil {
			return detailedEntry{}, err
		}
		result, stage := c.parseDetailed(resp.Text)
		return detailedEntry{Result: result, Stage: stage, Tokens: resp.Tokens()}, nil
	}

	key := engine.CacheKey(c.function(prompt.SlugDetailedRelevance), model, text)
	entry, cached, err := c.detailedCache.Do(ctx, key, run)
	if c.detailedCache != nil {
		metrics.RecordCacheLookup(prompt.SlugDetailedRelevance, cached)
	}
	if err != nil {
		return core.ClassificationResult{}, normalize.StageDefault, 0, err
	}
	if cached {
		return entry.Result, entry.Stage, 0, nil
	}
	return entry.Result, entry.Stage, entry.Tokens, nil
}

type detailedPayload struct {
	Relevant       any      `mapstructure:"relevant"`
	RelevanceScore int      `mapstructure:"relevance_score"`
	Summary        []string `mapstructure:"summary"`
	Tags           []string `mapstructure:"tags"`
	Reason         string   `mapstructure:"reason"`
	PaperType      string   `mapstructure:"paper_type"`
	Modalities     []string `mapstructure:"modalities"`
}

// parseDetailed never fails: unrecoverable output becomes the default result.
func (c *Classifier) parseDetailed(raw string) (core.ClassificationResult, normalize.Stage) {
	obj, stage, err := normalize.Extract(raw)
	if err != nil {
		c.logger.Warn("Could not parse detailed assessment", zap.String("response", normalize.Snippet(raw)))
		return DefaultResult(), normalize.StageDefault
	}

	if payload, err := json.Marshal(obj); err == nil {
		if verr := c.gen.ValidateResponse(prompt.SlugDetailedRelevance, payload); verr != nil {
			c.logger.Warn("Detailed assessment does not match schema, normalizing",
				zap.String("stage", string(stage)), zap.Error(verr))
		}
	}

	var payload detailedPayload
	if err := decodeLoose(obj, &payload); err != nil {
		c.logger.Warn("Could not decode detailed assessment", zap.Error(err))
		return DefaultResult(), normalize.StageDefault
	}

	result := core.ClassificationResult{Relevant: truthy(payload.Relevant)}
	if !result.Relevant {
		result.Reason = strings.TrimSpace(payload.Reason)
		return result, stage
	}

	result.RelevanceScore = clampScore(payload.RelevanceScore)
	result.Summary = compact(payload.Summary)
	result.Tags = compact(payload.Tags)
	result.Reason = strings.TrimSpace(payload.Reason)
	result.PaperType = core.NormalizePaperType(payload.PaperType)
	result.Modalities = core.NormalizeModalities(payload.Modalities)
	return result, stage
}

// DefaultResult is returned when model output cannot be parsed.
func DefaultResult() core.ClassificationResult {
	return core.ClassificationResult{Relevant: false, Reason: FailedReason}
}

// IsFatal reports errors that must stop a run rather than skip one paper.
func IsFatal(err error) bool {
	return errors.Is(err, driver.ErrRateLimitExceeded) ||
		errors.Is(err, engine.ErrQuotaExhausted) ||
		errors.Is(err, context.Canceled)
}

func (c *Classifier) courtesyPause(ctx context.Context, model string) error {
	if c.courtesy <= 0 || c.accepted.Load() == 0 || !engine.IsMetered(model) {
		return nil
	}
	c.logger.Debug("Courtesy delay before detailed assessment", zap.Duration("delay", c.courtesy))
	return c.sleep(ctx, c.courtesy)
}

func (c *Classifier) fail(verdict Verdict, paper core.Paper, stage string, err error) (Verdict, error) {
	verdict.Outcome = OutcomeFailed
	verdict.Result = core.ClassificationResult{Relevant: false}
	c.record(verdict)
	c.logger.Warn("Classification failed",
		zap.String("title", paper.Title), zap.String("stage", stage), zap.Error(err))
	return verdict, fmt.Errorf("%s assessment: %w", stage, err)
}

func (c *Classifier) record(v Verdict) {
	metrics.RecordClassification(string(c.feed), string(v.Outcome))
}

func (c *Classifier) variables(text string) map[string]string {
	vars := map[string]string{
		"subject": c.feed.Subject(),
		"text":    text,
	}
	if c.feed == core.FeedWeb3Security {
		vars["web3"] = "true"
	}
	return vars
}

// function names a cache namespace; the feed changes the prompt, so it is part of it.
func (c *Classifier) function(slug string) string {
	return slug + "/" + string(c.feed)
}

// decodeLoose decodes a recovered object with weak typing so "5" scores and
// single-string summaries survive.
func decodeLoose(obj map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return decoder.Decode(obj)
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("-", "_", " ", "_").Replace(key)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return v != 0
	}
	return false
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
