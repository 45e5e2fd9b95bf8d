package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/paperscope/paperscope/internal/classify"
	"github.com/paperscope/paperscope/internal/core"
	apperrors "github.com/paperscope/paperscope/internal/errors"
	"github.com/paperscope/paperscope/internal/output"
)

const (
	defaultMaxPapers = 25
	maxBodyBytes     = 1 << 20
)

// Classifier is the per-feed classification surface. *classify.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, paper core.Paper) (classify.Verdict, error)
	Feed() core.FeedType
	QuickModel() string
	DetailedModel() string
}

// Reviewer scores paper quality. *classify.Reviewer satisfies it.
type Reviewer interface {
	AssessQuality(ctx context.Context, paper core.Paper) (core.QualityAssessment, int, error)
}

// StatusReporter exposes governance diagnostics. *engine.Governor satisfies it.
type StatusReporter interface {
	Status() core.GovernanceStatus
}

// API serves the classification endpoints.
type API struct {
	Classifiers map[core.FeedType]Classifier
	Reviewer    Reviewer
	Governance  StatusReporter
	// Cache reports response cache stats for /v1/limits; optional.
	Cache     func() core.CacheStats
	MaxPapers int
}

// ClassifyRequest is the body of POST /v1/classify. Either Paper or Papers is set.
type ClassifyRequest struct {
	Feed   string       `json:"feed"`
	Paper  *core.Paper  `json:"paper,omitempty"`
	Papers []core.Paper `json:"papers,omitempty"`
}

// ClassifyResponse reports every verdict and the spend.
type ClassifyResponse struct {
	Feed    core.FeedType          `json:"feed"`
	Results []output.VerdictView   `json:"results"`
	Cost    classify.CostBreakdown `json:"cost"`
}

// QualityRequest is the body of POST /v1/quality.
type QualityRequest struct {
	Paper core.Paper `json:"paper"`
}

// Classify handles POST /v1/classify. Papers run sequentially; a rate-limit or
// quota failure aborts the request with 429 or 503.
func (a *API) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	feed := core.FeedAISecurity
	if strings.TrimSpace(req.Feed) != "" {
		parsed, ok := core.ParseFeedType(req.Feed)
		if !ok {
			respondWithError(w, r, apperrors.NewValidationError(fmt.Sprintf("unknown feed %q", req.Feed)))
			return
		}
		feed = parsed
	}
	classifier, ok := a.Classifiers[feed]
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("feed %s is not served", feed)))
		return
	}

	papers := req.Papers
	if req.Paper != nil {
		papers = append([]core.Paper{*req.Paper}, papers...)
	}
	if err := a.validatePapers(papers); err != nil {
		respondWithError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	resp := ClassifyResponse{Feed: feed, Results: make([]output.VerdictView, 0, len(papers))}
	quickTokens, detailedTokens := 0, 0
	for _, paper := range papers {
		verdict, err := classifier.Classify(r.Context(), paper)
		if err != nil && classify.IsFatal(err) {
			respondWithError(w, r, err)
			return
		}
		quickTokens += verdict.QuickTokens
		detailedTokens += verdict.DetailedTokens
		resp.Results = append(resp.Results, output.NewVerdictView(paper, verdict))
	}
	resp.Cost = classify.Breakdown(classifier.QuickModel(), quickTokens, classifier.DetailedModel(), detailedTokens)
	writeJSON(w, http.StatusOK, resp)
}

// Quality handles POST /v1/quality.
func (a *API) Quality(w http.ResponseWriter, r *http.Request) {
	if a.Reviewer == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("quality review is not configured"))
		return
	}
	var req QualityRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if strings.TrimSpace(req.Paper.Title) == "" {
		respondWithError(w, r, apperrors.NewValidationError("paper.title is required"))
		return
	}

	assessment, tokens, err := a.Reviewer.AssessQuality(r.Context(), req.Paper)
	if errors.Is(err, classify.ErrInvalidDate) {
		respondWithError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeValidationFailed, err, "paper.published_date must be YYYY-MM-DD"))
		return
	}
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output.QualityView{
		Title:      req.Paper.Title,
		URL:        req.Paper.URL,
		Assessment: assessment,
		Tokens:     tokens,
	})
}

// Limits handles GET /v1/limits.
func (a *API) Limits(w http.ResponseWriter, r *http.Request) {
	var status core.GovernanceStatus
	if a.Governance != nil {
		status = a.Governance.Status()
	}
	if a.Cache != nil {
		status.Cache = a.Cache()
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) validatePapers(papers []core.Paper) error {
	limit := a.MaxPapers
	if limit <= 0 {
		limit = defaultMaxPapers
	}
	switch {
	case len(papers) == 0:
		return fmt.Errorf("at least one paper is required")
	case len(papers) > limit:
		return fmt.Errorf("at most %d papers per request, got %d", limit, len(papers))
	}
	for i, p := range papers {
		if strings.TrimSpace(p.Title) == "" {
			return fmt.Errorf("papers[%d].title is required", i)
		}
	}
	return nil
}

func decodeBody(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
