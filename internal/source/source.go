// Package source fetches candidate papers from arXiv, RSS feeds, or local files.
package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

const (
	SourceArXiv = "arxiv"
	SourceACL   = "acl"

	PublicationPreprint   = "preprint"
	PublicationConference = "conference"

	defaultTimeout = 30 * time.Second
	userAgent      = "paperscope/1 (+https://github.com/paperscope/paperscope)"
)

// Source yields candidate papers.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]core.Paper, error)
}

// Config selects and tunes a source.
type Config struct {
	Kind       string
	BaseURL    string
	Categories []string
	Feeds      []string
	MaxResults int
	Since      time.Duration
	File       string
	HTTPClient *http.Client
	Clock      func() time.Time
}

// New builds the source named by cfg.Kind.
func New(cfg Config) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", SourceArXiv:
		return &ArXiv{
			BaseURL:    cfg.BaseURL,
			Categories: cfg.Categories,
			MaxResults: cfg.MaxResults,
			Since:      cfg.Since,
			HTTPClient: cfg.HTTPClient,
			Clock:      cfg.Clock,
		}, nil
	case "rss":
		if len(cfg.Feeds) == 0 {
			return nil, fmt.Errorf("rss source needs at least one feed url")
		}
		return &RSS{Feeds: cfg.Feeds, Since: cfg.Since, HTTPClient: cfg.HTTPClient, Clock: cfg.Clock}, nil
	case "file":
		if strings.TrimSpace(cfg.File) == "" {
			return nil, fmt.Errorf("file source needs a path")
		}
		return &File{Path: cfg.File}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// Dedupe drops repeated URLs, keeping the first occurrence.
func Dedupe(papers []core.Paper) []core.Paper {
	seen := make(map[string]bool, len(papers))
	out := make([]core.Paper, 0, len(papers))
	for _, p := range papers {
		key := strings.TrimSpace(p.URL)
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultTimeout}
}

func now(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now()
}

// collapse folds the line breaks arXiv puts in titles and abstracts.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// arxivID extracts "2301.00001" from ".../abs/2301.00001v2".
func arxivID(link string) string {
	idx := strings.LastIndex(link, "/abs/")
	if idx < 0 {
		return ""
	}
	id := link[idx+5:]
	if v := strings.LastIndex(id, "v"); v > 0 && isDigits(id[v+1:]) {
		id = id[:v]
	}
	return id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
