package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/classify"
	"github.com/paperscope/paperscope/internal/core"
	"github.com/paperscope/paperscope/internal/core/engine"
	apperrors "github.com/paperscope/paperscope/internal/errors"
)

type stubClassifier struct {
	feed     core.FeedType
	verdicts map[string]classify.Verdict
	errs     map[string]error
	seen     []string
}

func (s *stubClassifier) Classify(_ context.Context, p core.Paper) (classify.Verdict, error) {
	s.seen = append(s.seen, p.Title)
	return s.verdicts[p.Title], s.errs[p.Title]
}

func (s *stubClassifier) Feed() core.FeedType { return s.feed }

func (s *stubClassifier) QuickModel() string { return "openai/gpt-4.1-nano" }

func (s *stubClassifier) DetailedModel() string { return "openai/gpt-4.1" }

type stubReviewer struct {
	assessment core.QualityAssessment
	err        error
}

func (s stubReviewer) AssessQuality(context.Context, core.Paper) (core.QualityAssessment, int, error) {
	return s.assessment, 42, s.err
}

type stubStatus struct{}

func (stubStatus) Status() core.GovernanceStatus {
	return core.GovernanceStatus{Window: core.RateWindowStatus{RequestsInWindow: 2, MaxRequests: 15}}
}

func newAPI(c *stubClassifier) *API {
	return &API{
		Classifiers: map[core.FeedType]Classifier{c.feed: c},
		Reviewer:    stubReviewer{assessment: core.QualityAssessment{Clarity: 4, Justification: "clear"}},
		Governance:  stubStatus{},
		Cache:       func() core.CacheStats { return core.CacheStats{Entries: 3, Hits: 1} },
		MaxPapers:   3,
	}
}

func post(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(body)))
	return rec
}

func TestClassifyReturnsVerdictsAndCost(t *testing.T) {
	c := &stubClassifier{
		feed: core.FeedAISecurity,
		verdicts: map[string]classify.Verdict{
			"Backdoors": {
				Outcome:        classify.OutcomeAccepted,
				Result:         core.ClassificationResult{Relevant: true, RelevanceScore: 9},
				QuickTokens:    1000,
				DetailedTokens: 2000,
			},
			"Crops": {Outcome: classify.OutcomeRejectedQuick, QuickTokens: 1000},
		},
	}
	rec := post(newAPI(c).Classify, `{"papers":[{"title":"Backdoors","abstract":"a","url":"u1"},{"title":"Crops","abstract":"b","url":"u2"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, core.FeedAISecurity, resp.Feed)
	require.Len(t, resp.Results, 2)
	require.Equal(t, classify.OutcomeAccepted, resp.Results[0].Outcome)
	require.Equal(t, 9, resp.Results[0].Result.RelevanceScore)
	require.Equal(t, classify.OutcomeRejectedQuick, resp.Results[1].Outcome)
	require.Equal(t, 2000, resp.Cost.QuickTokens)
	require.Equal(t, 2000, resp.Cost.DetailedTokens)
}

func TestClassifySinglePaperAndFeedSelection(t *testing.T) {
	c := &stubClassifier{feed: core.FeedWeb3Security, verdicts: map[string]classify.Verdict{}}
	rec := post(newAPI(c).Classify, `{"feed":"web3_security","paper":{"title":"Reentrancy","abstract":"x","url":"u"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"Reentrancy"}, c.seen)

	rec = post(newAPI(c).Classify, `{"feed":"ai-security","paper":{"title":"x"}}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(newAPI(c).Classify, `{"feed":"biology","paper":{"title":"x"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyValidatesBody(t *testing.T) {
	c := &stubClassifier{feed: core.FeedAISecurity}
	api := newAPI(c)

	for _, body := range []string{
		`not json`,
		`{"papers":[]}`,
		`{"papers":[{"title":""}]}`,
		`{"papers":[{"title":"a"},{"title":"b"},{"title":"c"},{"title":"d"}]}`,
		`{"paper":{"title":"a"},"unknown":true}`,
	} {
		rec := post(api.Classify, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	require.Empty(t, c.seen)
}

func TestClassifyMapsGovernanceFailures(t *testing.T) {
	rle := &driver.RateLimitExceededError{
		Provider: "openrouter",
		Model:    "m",
		Attempts: 3,
		Last:     &driver.ProviderError{StatusCode: 429, RetryAfter: 30 * time.Second},
	}
	c := &stubClassifier{
		feed: core.FeedAISecurity,
		errs: map[string]error{
			"limited": fmt.Errorf("quick assessment: %w", rle),
			"quota":   fmt.Errorf("detailed assessment: %w", &engine.QuotaExhaustedError{Model: "m:free", Wait: 2 * time.Hour}),
			"flaky":   fmt.Errorf("quick assessment: %w", &driver.ProviderError{StatusCode: 502}),
		},
		verdicts: map[string]classify.Verdict{"flaky": {Outcome: classify.OutcomeFailed}},
	}
	api := newAPI(c)

	rec := post(api.Classify, `{"papers":[{"title":"limited"},{"title":"never"}]}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "30", rec.Header().Get("Retry-After"))
	require.Equal(t, []string{"limited"}, c.seen)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, apperrors.CodeRateLimited, body.Error.Code)

	rec = post(api.Classify, `{"paper":{"title":"quota"}}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "7200", rec.Header().Get("Retry-After"))

	rec = post(api.Classify, `{"paper":{"title":"flaky"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outcome":"failed"`)
}

func TestQualityEndpoint(t *testing.T) {
	api := newAPI(&stubClassifier{feed: core.FeedAISecurity})

	rec := post(api.Quality, `{"paper":{"title":"Backdoors","abstract":"x","published_date":"2025-01-02"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"clarity":4`)
	require.Contains(t, rec.Body.String(), `"tokens":42`)

	rec = post(api.Quality, `{"paper":{"abstract":"no title"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	api.Reviewer = stubReviewer{err: fmt.Errorf("%w \"soon\"", classify.ErrInvalidDate)}
	rec = post(api.Quality, `{"paper":{"title":"x","published_date":"soon"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	api.Reviewer = stubReviewer{err: &driver.ProviderError{Provider: "openrouter", StatusCode: 503}}
	rec = post(api.Quality, `{"paper":{"title":"x","published_date":"2025-01-02"}}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	api.Reviewer = nil
	rec = post(api.Quality, `{"paper":{"title":"x"}}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLimitsEndpoint(t *testing.T) {
	api := newAPI(&stubClassifier{feed: core.FeedAISecurity})
	rec := httptest.NewRecorder()
	api.Limits(rec, httptest.NewRequest(http.MethodGet, "/v1/limits", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status core.GovernanceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, 2, status.Window.RequestsInWindow)
	require.Equal(t, 3, status.Cache.Entries)
}
