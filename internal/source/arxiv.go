package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

const DefaultArXivURL = "https://export.arxiv.org/api/query"

// ArXiv queries the arXiv API for the newest submissions in a set of categories.
type ArXiv struct {
	BaseURL    string
	Categories []string
	MaxResults int
	// Since drops entries published before now-Since; zero keeps everything.
	Since      time.Duration
	HTTPClient *http.Client
	Clock      func() time.Time
}

// Name identifies the source.
func (a *ArXiv) Name() string { return SourceArXiv }

// Fetch runs one query sorted by submission date, newest first.
func (a *ArXiv) Fetch(ctx context.Context) ([]core.Paper, error) {
	if len(a.Categories) == 0 {
		return nil, fmt.Errorf("arxiv source needs at least one category")
	}
	base := strings.TrimSpace(a.BaseURL)
	if base == "" {
		base = DefaultArXivURL
	}
	limit := a.MaxResults
	if limit <= 0 {
		limit = 100
	}

	terms := make([]string, 0, len(a.Categories))
	for _, c := range a.Categories {
		terms = append(terms, "cat:"+strings.TrimSpace(c))
	}
	query := url.Values{}
	query.Set("search_query", strings.Join(terms, " OR "))
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")
	query.Set("max_results", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient(a.HTTPClient).Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv query: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv query: http %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}

	var cutoff time.Time
	if a.Since > 0 {
		cutoff = now(a.Clock).Add(-a.Since)
	}
	papers := make([]core.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		published, _ := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published))
		if !cutoff.IsZero() && !published.IsZero() && published.Before(cutoff) {
			break
		}
		if p, ok := entry.paper(published); ok {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Authors   []atomAuthor `xml:"author"`
	Published string       `xml:"published"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

func (e atomEntry) paper(published time.Time) (core.Paper, bool) {
	id := arxivID(strings.TrimSpace(e.ID))
	if id == "" {
		return core.Paper{}, false
	}
	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}
	p := core.Paper{
		Title:           collapse(e.Title),
		Abstract:        collapse(e.Summary),
		URL:             "https://arxiv.org/abs/" + id,
		Authors:         authors,
		Source:          SourceArXiv,
		PaperID:         id,
		PublicationType: PublicationPreprint,
	}
	if !published.IsZero() {
		p.PublishedDate = published.UTC().Format("2006-01-02")
	}
	return p, true
}
