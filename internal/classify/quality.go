package classify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/ailink"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
	"github.com/paperscope/paperscope/internal/core"
	"github.com/paperscope/paperscope/internal/core/normalize"
)

// QualityParseFailure is the justification used when the review cannot be parsed.
const QualityParseFailure = "Error parsing model output"

const dateLayout = "2006-01-02"

// ErrInvalidDate is returned for a publication date that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid publication date")

// Reviewer scores paper quality from metadata. Safe for concurrent use.
type Reviewer struct {
	gen    Generator
	model  string
	logger Logger
	// Clock is injectable for citation-age tests.
	Clock func() time.Time
}

// NewReviewer builds a quality reviewer; model overrides the configured quality model.
func NewReviewer(gen Generator, model string, logger Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{gen: gen, model: strings.TrimSpace(model), logger: logger}
}

// AssessQuality reviews a paper and returns the assessment and tokens spent.
// A response that cannot be parsed yields zero scores, not an error.
func (r *Reviewer) AssessQuality(ctx context.Context, paper core.Paper) (core.QualityAssessment, int, error) {
	date := strings.TrimSpace(paper.PublishedDate)
	if len(date) > len(dateLayout) {
		date = date[:len(dateLayout)]
	}
	published, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.QualityAssessment{}, 0, fmt.Errorf("%w %q: want YYYY-MM-DD", ErrInvalidDate, paper.PublishedDate)
	}

	resp, err := r.gen.Generate(ctx, ailink.GenerateRequest{
		PromptSlug: prompt.SlugPaperQuality,
		Model:      r.model,
		Variables: map[string]string{
			"title":            paper.Title,
			"abstract":         paper.Abstract,
			"date":             date,
			"cited_by_count":   strconv.Itoa(paper.CitedByCount),
			"citation_context": CitationContext(published, r.now()),
			"publication_type": paper.PublicationType,
			"source":           paper.Source,
			"code_repository":  paper.CodeRepository,
		},
	})
	if err != nil {
		return core.QualityAssessment{}, 0, err
	}
	return r.parse(resp.Text), resp.Tokens(), nil
}

// CitationContext describes how much weight a citation count deserves at the paper's age.
func CitationContext(published, now time.Time) string {
	months := (now.Year()-published.Year())*12 + int(now.Month()) - int(published.Month())
	switch {
	case months < 3:
		return "This is a very recent paper (less than 3 months old), so citation count is not yet meaningful."
	case months < 6:
		return "This is a recent paper (3-6 months old), so citation count should be considered with caution."
	case months < 12:
		return "This paper is 6-12 months old, so citation count is starting to become meaningful."
	default:
		return fmt.Sprintf("This paper is %d months old, so citation count is a good indicator of impact.", months)
	}
}

type qualityPayload struct {
	Clarity        int    `mapstructure:"clarity"`
	Novelty        int    `mapstructure:"novelty"`
	Significance   int    `mapstructure:"significance"`
	TryWorthiness  any    `mapstructure:"try_worthiness"`
	Justification  string `mapstructure:"justification"`
	CodeRepository any    `mapstructure:"code_repository"`
}

func (r *Reviewer) parse(raw string) core.QualityAssessment {
	failed := core.QualityAssessment{Justification: QualityParseFailure}

	obj, _, err := normalize.Extract(raw)
	if err != nil {
		r.logger.Warn("Could not parse quality assessment", zap.String("response", normalize.Snippet(raw)))
		return failed
	}

	var payload qualityPayload
	if err := decodeLoose(obj, &payload); err != nil {
		r.logger.Warn("Could not decode quality assessment", zap.Error(err))
		return failed
	}

	out := core.QualityAssessment{
		Clarity:       payload.Clarity,
		Novelty:       payload.Novelty,
		Significance:  payload.Significance,
		TryWorthiness: truthy(payload.TryWorthiness),
		Justification: strings.TrimSpace(payload.Justification),
	}
	if repo, ok := payload.CodeRepository.(string); ok {
		repo = strings.TrimSpace(repo)
		if !strings.EqualFold(repo, "none") && !strings.EqualFold(repo, "null") {
			out.CodeRepository = repo
		}
	}
	return out
}

func (r *Reviewer) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}
