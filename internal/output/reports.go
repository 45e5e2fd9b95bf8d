package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/classify"
	"github.com/paperscope/paperscope/internal/core"
	"github.com/paperscope/paperscope/internal/core/store"
	"github.com/paperscope/paperscope/internal/pipeline"
)

const titleWidth = 70

// SummaryDocument tabulates a pipeline run: counts, accepted papers, and spend.
func SummaryDocument(s *pipeline.Summary) Document {
	doc := Document{
		Title:  s.Feed.Title(),
		Header: []string{"Score", "Type", "Title", "Topics"},
		Empty:  "No relevant papers found.",
	}
	for _, p := range s.Papers {
		doc.Rows = append(doc.Rows, []string{
			strconv.Itoa(p.RelevanceScore),
			string(p.PaperType),
			truncate(p.Title, titleWidth),
			strings.Join(p.Topics, ", "),
		})
	}
	doc.Footer = fmt.Sprintf("%d/%d accepted", s.Accepted, s.Found)
	doc.Notes = []string{
		fmt.Sprintf("%d rejected by screening, %d by assessment, %d already stored, %d incomplete, %d failed",
			s.RejectedQuick, s.RejectedDetailed, s.Existing, s.Incomplete, s.Failed),
		costLine(s.Cost),
		fmt.Sprintf("finished in %s", s.Duration.Round(time.Millisecond)),
	}
	if s.Stopped != "" {
		doc.Notes = append(doc.Notes, "stopped early: "+s.Stopped)
	}
	return doc
}

func costLine(c classify.CostBreakdown) string {
	return fmt.Sprintf("cost $%.4f (screening $%.4f over %d tokens, assessment $%.4f over %d tokens); single-stage estimate $%.4f, saved $%.4f",
		c.Total, c.Quick, c.QuickTokens, c.Detailed, c.DetailedTokens, c.SingleStage, c.Savings)
}

// VerdictView is the JSON shape of one classified paper.
type VerdictView struct {
	Title          string                    `json:"title"`
	URL            string                    `json:"url"`
	Outcome        classify.Outcome          `json:"outcome"`
	Result         core.ClassificationResult `json:"result"`
	QuickModel     string                    `json:"quick_model"`
	DetailedModel  string                    `json:"detailed_model,omitempty"`
	QuickTokens    int                       `json:"quick_tokens"`
	DetailedTokens int                       `json:"detailed_tokens"`
}

// NewVerdictView pairs a paper with the classifier's verdict.
func NewVerdictView(p core.Paper, v classify.Verdict) VerdictView {
	view := VerdictView{
		Title:          p.Title,
		URL:            p.URL,
		Outcome:        v.Outcome,
		Result:         v.Result,
		QuickModel:     v.QuickModel,
		QuickTokens:    v.QuickTokens,
		DetailedTokens: v.DetailedTokens,
	}
	if v.Outcome != classify.OutcomeRejectedQuick {
		view.DetailedModel = v.DetailedModel
	}
	return view
}

// VerdictDocument tabulates ad-hoc classifications.
func VerdictDocument(feed core.FeedType, views []VerdictView) Document {
	doc := Document{
		Title:  feed.Title() + ": classification",
		Header: []string{"Outcome", "Score", "Type", "Title", "Reason"},
		Empty:  "No papers classified.",
	}
	tokens, accepted := 0, 0
	for _, v := range views {
		score := "-"
		if v.Outcome == classify.OutcomeAccepted || v.Outcome == classify.OutcomeRejectedDetailed {
			score = strconv.Itoa(v.Result.RelevanceScore)
		}
		if v.Outcome == classify.OutcomeAccepted {
			accepted++
		}
		tokens += v.QuickTokens + v.DetailedTokens
		doc.Rows = append(doc.Rows, []string{
			string(v.Outcome),
			score,
			string(v.Result.PaperType),
			truncate(v.Title, titleWidth),
			truncate(v.Result.Reason, titleWidth),
		})
	}
	doc.Footer = fmt.Sprintf("%d/%d accepted, %d tokens", accepted, len(views), tokens)
	return doc
}

// PapersDocument lists stored papers for one feed.
func PapersDocument(feed core.FeedType, papers []core.StoredPaper) Document {
	doc := Document{
		Title:  feed.Title() + ": stored papers",
		Header: []string{"Date", "Score", "Type", "Title", "URL"},
		Empty:  "No stored papers.",
	}
	for _, p := range papers {
		star := ""
		if p.Star {
			star = "* "
		}
		doc.Rows = append(doc.Rows, []string{
			p.PublishedDate,
			strconv.Itoa(p.RelevanceScore),
			string(p.PaperType),
			star + truncate(p.Title, titleWidth),
			p.URL,
		})
	}
	doc.Footer = fmt.Sprintf("%d papers", len(papers))
	return doc
}

// QualityView is the JSON shape of a quality assessment.
type QualityView struct {
	Title      string                 `json:"title"`
	URL        string                 `json:"url,omitempty"`
	Assessment core.QualityAssessment `json:"assessment"`
	Model      string                 `json:"model,omitempty"`
	Tokens     int                    `json:"tokens"`
}

// QualityDocument shows a single paper's quality scores.
func QualityDocument(v QualityView) Document {
	a := v.Assessment
	repo := a.CodeRepository
	if repo == "" {
		repo = "none"
	}
	return Document{
		Title:  truncate(v.Title, titleWidth),
		Header: []string{"Clarity", "Novelty", "Significance", "Try it", "Code"},
		Rows: [][]string{{
			strconv.Itoa(a.Clarity),
			strconv.Itoa(a.Novelty),
			strconv.Itoa(a.Significance),
			strconv.FormatBool(a.TryWorthiness),
			repo,
		}},
		Notes: []string{a.Justification},
	}
}

// RateLimitDocument lists persisted provider backoff state.
func RateLimitDocument(entries []store.RateLimitEntry, now time.Time) Document {
	doc := Document{
		Title:  "Rate limits",
		Header: []string{"Endpoint", "429s", "Window start", "Backoff until", "Status"},
		Empty:  "(no stored rate limit state)",
	}
	for _, e := range entries {
		status := "ok"
		if e.BackingOff(now) {
			status = "backing off"
		}
		doc.Rows = append(doc.Rows, []string{
			e.Endpoint,
			strconv.Itoa(e.State.RequestCount),
			formatTime(&e.State.WindowStart),
			formatTime(e.State.BackoffUntil),
			status,
		})
	}
	return doc
}

// GovernanceDocument shows window, quota and cache diagnostics.
func GovernanceDocument(g core.GovernanceStatus) Document {
	tier := "free"
	if g.Daily.PaidTier {
		tier = "paid"
	}
	return Document{
		Title:  "Request governance",
		Header: []string{"Check", "Usage", "Detail"},
		Rows: [][]string{
			{
				"window",
				fmt.Sprintf("%d/%d", g.Window.RequestsInWindow, g.Window.MaxRequests),
				fmt.Sprintf("%.0fs window, resets in %.1fs", g.Window.WindowSeconds, g.Window.TimeUntilReset),
			},
			{
				"daily quota",
				fmt.Sprintf("%d/%d", g.Daily.Count, g.Daily.Limit),
				fmt.Sprintf("%s tier, %d remaining, resets %s", tier, g.Daily.Remaining, g.Daily.ResetsAt.UTC().Format(time.RFC3339)),
			},
			{
				"response cache",
				fmt.Sprintf("%d entries", g.Cache.Entries),
				fmt.Sprintf("%d hits, %d misses", g.Cache.Hits, g.Cache.Misses),
			},
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
