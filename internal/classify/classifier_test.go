package classify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
	"github.com/paperscope/paperscope/internal/core"
	"github.com/paperscope/paperscope/internal/core/engine"
	"github.com/paperscope/paperscope/internal/core/normalize"
)

var injectionPaper = core.Paper{
	Title:    "Adversarial Prompt Injection Against LLM Agents",
	Abstract: "We study jailbreaking techniques that hijack tool-using agents through injected instructions.",
	URL:      "https://arxiv.org/abs/2501.00001",
}

var surveyPaper = core.Paper{
	Title:    "A Survey of Convolutional Architectures for Image Classification",
	Abstract: "We review CNN backbones for ImageNet-scale classification.",
	URL:      "https://arxiv.org/abs/2501.00002",
}

func TestClassifyAcceptsRelevantPaper(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "Yes.", 40).
		on(prompt.SlugDetailedRelevance, `{"relevant": true, "relevance_score": 5, "tags": ["prompt injection","jailbreak","LLM"], "paper_type": "Research Paper", "modalities": ["text"]}`, 300)

	c := New(gen, Options{Feed: core.FeedAISecurity})
	verdict, err := c.Classify(context.Background(), injectionPaper)
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, verdict.Outcome)
	assert.True(t, verdict.Result.Relevant)
	assert.Equal(t, 5, verdict.Result.RelevanceScore)
	assert.Equal(t, []string{"prompt injection", "jailbreak", "LLM"}, verdict.Result.Tags)
	assert.Equal(t, core.PaperTypeResearch, verdict.Result.PaperType)
	assert.Equal(t, []core.Modality{core.ModalityText}, verdict.Result.Modalities)
	assert.Equal(t, 40, verdict.QuickTokens)
	assert.Equal(t, 300, verdict.DetailedTokens)
	assert.Equal(t, normalize.StageDirect, verdict.Stage)
	assert.Equal(t, "openai/gpt-4.1-nano", verdict.QuickModel)
	assert.Equal(t, "openai/gpt-4.1", verdict.DetailedModel)
}

func TestClassifyQuickNoSkipsDetailedStage(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "no", 35).
		on(prompt.SlugDetailedRelevance, `{"relevant": true}`, 300)

	c := New(gen, Options{})
	verdict, err := c.Classify(context.Background(), surveyPaper)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejectedQuick, verdict.Outcome)
	assert.False(t, verdict.Result.Relevant)
	assert.Equal(t, 1, gen.count(prompt.SlugQuickRelevance))
	assert.Equal(t, 0, gen.count(prompt.SlugDetailedRelevance))
	assert.Zero(t, verdict.DetailedTokens)
}

func TestClassifyRecoversThinkingAndFencedJSON(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "yes", 10).
		on(prompt.SlugDetailedRelevance, "◁think▷reasoning...◁/think▷\n```json\n{\"relevant\": false}\n```", 50)

	c := New(gen, Options{})
	verdict, err := c.Classify(context.Background(), injectionPaper)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedDetailed, verdict.Outcome)
	assert.Equal(t, core.ClassificationResult{Relevant: false}, verdict.Result)
}

func TestClassifyMalformedDetailedOutputDefaults(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "yes", 10).
		on(prompt.SlugDetailedRelevance, "I am unable to answer in JSON today.", 50)

	c := New(gen, Options{})
	verdict, err := c.Classify(context.Background(), injectionPaper)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedDetailed, verdict.Outcome)
	assert.Equal(t, DefaultResult(), verdict.Result)
	assert.Equal(t, normalize.StageDefault, verdict.Stage)
}

func TestClassifyNormalizesLabels(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "YES, it is relevant", 10).
		on(prompt.SlugDetailedRelevance, `Here you go: {'Relevant': 'true', 'Relevance-Score': '9', 'summary': 'one bullet', 'tags': ['a', ' ', 'b',], 'paper_type': 'Tutorial', 'modalities': ['Speech', 'image']}`, 50)

	c := New(gen, Options{})
	verdict, err := c.Classify(context.Background(), injectionPaper)
	require.NoError(t, err)

	result := verdict.Result
	assert.True(t, result.Relevant)
	assert.Equal(t, 5, result.RelevanceScore)
	assert.Equal(t, []string{"one bullet"}, result.Summary)
	assert.Equal(t, []string{"a", "b"}, result.Tags)
	assert.Equal(t, core.PaperTypeOther, result.PaperType)
	assert.Equal(t, []core.Modality{core.ModalityOther, core.ModalityImage}, result.Modalities)
}

func TestClassifyPropagatesRateLimitExceeded(t *testing.T) {
	limited := &driver.RateLimitExceededError{Provider: "openrouter", Model: "openai/gpt-4.1-nano", Attempts: 3}
	gen := newFakeGenerator().fail(prompt.SlugQuickRelevance, limited)

	c := New(gen, Options{})
	verdict, err := c.Classify(context.Background(), injectionPaper)
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrRateLimitExceeded)
	assert.True(t, IsFatal(err))
	assert.Equal(t, OutcomeFailed, verdict.Outcome)
	assert.False(t, verdict.Result.Relevant)
	assert.Equal(t, 0, gen.count(prompt.SlugDetailedRelevance))
}

func TestClassifyTransportFailureIsNotFatal(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "yes", 10).
		fail(prompt.SlugDetailedRelevance, errors.New("openrouter: failed after 3 attempts: status 502"))

	c := New(gen, Options{})
	verdict, err := c.Classify(context.Background(), injectionPaper)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detailed assessment")
	assert.False(t, IsFatal(err))
	assert.Equal(t, OutcomeFailed, verdict.Outcome)
	assert.Equal(t, 10, verdict.QuickTokens)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", engine.ErrQuotaExhausted)))
	assert.True(t, IsFatal(context.Canceled))
	assert.False(t, IsFatal(errors.New("boom")))
	assert.False(t, IsFatal(nil))
}

func TestQuickAssessCachesPerModelAndInput(t *testing.T) {
	gen := newFakeGenerator().on(prompt.SlugQuickRelevance, "yes", 20)
	c := New(gen, Options{})
	ctx := context.Background()

	relevant, tokens, err := c.QuickAssess(ctx, "Title: a")
	require.NoError(t, err)
	assert.True(t, relevant)
	assert.Equal(t, 20, tokens)

	relevant, tokens, err = c.QuickAssess(ctx, "Title: a")
	require.NoError(t, err)
	assert.True(t, relevant)
	assert.Zero(t, tokens)
	assert.Equal(t, 1, gen.count(prompt.SlugQuickRelevance))

	_, _, err = c.QuickAssess(ctx, "Title: b")
	require.NoError(t, err)
	assert.Equal(t, 2, gen.count(prompt.SlugQuickRelevance))

	other := New(gen, Options{QuickModel: "openai/gpt-4o-mini"})
	_, _, err = other.QuickAssess(ctx, "Title: a")
	require.NoError(t, err)
	assert.Equal(t, 3, gen.count(prompt.SlugQuickRelevance))

	stats := c.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestQuickAssessConcurrentCallsShareOneRequest(t *testing.T) {
	gen := newFakeGenerator().on(prompt.SlugQuickRelevance, "yes", 20)
	c := New(gen, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.QuickAssess(context.Background(), "Title: shared")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, gen.count(prompt.SlugQuickRelevance))
}

func TestQuickAssessDoesNotCacheErrors(t *testing.T) {
	gen := newFakeGenerator().fail(prompt.SlugQuickRelevance, errors.New("timeout"))
	c := New(gen, Options{})

	_, _, err := c.QuickAssess(context.Background(), "Title: x")
	require.Error(t, err)

	gen.on(prompt.SlugQuickRelevance, "yes", 5)
	relevant, _, err := c.QuickAssess(context.Background(), "Title: x")
	require.NoError(t, err)
	assert.True(t, relevant)
	assert.Equal(t, 2, gen.count(prompt.SlugQuickRelevance))
}

func TestDisableCacheAlwaysCalls(t *testing.T) {
	gen := newFakeGenerator().on(prompt.SlugQuickRelevance, "no", 5)
	c := New(gen, Options{DisableCache: true})

	for i := 0; i < 3; i++ {
		_, tokens, err := c.QuickAssess(context.Background(), "Title: same")
		require.NoError(t, err)
		assert.Equal(t, 5, tokens)
	}
	assert.Equal(t, 3, gen.count(prompt.SlugQuickRelevance))
	assert.Equal(t, core.CacheStats{}, c.CacheStats())
}

func TestWeb3FeedSetsPromptVariables(t *testing.T) {
	gen := newFakeGenerator().on(prompt.SlugQuickRelevance, "no", 5)
	c := New(gen, Options{Feed: core.FeedWeb3Security})

	_, err := c.Classify(context.Background(), surveyPaper)
	require.NoError(t, err)
	require.Len(t, gen.requests, 1)
	vars := gen.requests[0].Variables
	assert.Equal(t, "true", vars["web3"])
	assert.Equal(t, core.FeedWeb3Security.Subject(), vars["subject"])
	assert.Contains(t, vars["text"], surveyPaper.Title)
}

func TestDetailedStageUsesTitleOnlyForACL(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "yes", 5).
		on(prompt.SlugDetailedRelevance, `{"relevant": false}`, 5)
	c := New(gen, Options{})

	paper := injectionPaper
	paper.Source = "acl"
	_, err := c.Classify(context.Background(), paper)
	require.NoError(t, err)
	require.Len(t, gen.requests, 2)
	assert.Equal(t, "Title: "+paper.Title, gen.requests[1].Variables["text"])
}

func TestCourtesyDelayAfterFirstAcceptOnFreeModel(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "yes", 5).
		on(prompt.SlugDetailedRelevance, `{"relevant": true, "relevance_score": 4}`, 5)

	var slept []time.Duration
	c := New(gen, Options{
		DetailedModel: "moonshotai/kimi-dev-72b:free",
		DisableCache:  true,
		CourtesyDelay: 1500 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})

	for i := 0; i < 3; i++ {
		verdict, err := c.Classify(context.Background(), injectionPaper)
		require.NoError(t, err)
		require.Equal(t, OutcomeAccepted, verdict.Outcome)
	}
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, slept)
}

func TestNoCourtesyDelayOnPaidModel(t *testing.T) {
	gen := newFakeGenerator().
		on(prompt.SlugQuickRelevance, "yes", 5).
		on(prompt.SlugDetailedRelevance, `{"relevant": true}`, 5)

	slept := 0
	c := New(gen, Options{
		DisableCache:  true,
		CourtesyDelay: time.Second,
		Sleep: func(context.Context, time.Duration) error {
			slept++
			return nil
		},
	})
	for i := 0; i < 2; i++ {
		_, err := c.Classify(context.Background(), injectionPaper)
		require.NoError(t, err)
	}
	assert.Zero(t, slept)
}
