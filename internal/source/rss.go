package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

// RSS polls RSS 2.0 feeds such as arXiv's per-category feeds and the ACL
// Anthology index.
type RSS struct {
	Feeds []string
	// Since drops items published before now-Since; zero keeps everything.
	Since      time.Duration
	HTTPClient *http.Client
	Clock      func() time.Time
}

// Name identifies the source.
func (r *RSS) Name() string { return "rss" }

// Fetch reads every feed in order. A failing feed aborts the fetch.
func (r *RSS) Fetch(ctx context.Context) ([]core.Paper, error) {
	var cutoff time.Time
	if r.Since > 0 {
		cutoff = now(r.Clock).Add(-r.Since)
	}
	fetchedOn := now(r.Clock).UTC().Format("2006-01-02")

	var papers []core.Paper
	for _, feedURL := range r.Feeds {
		items, err := r.read(ctx, feedURL)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			published := item.published()
			// Feeds are newest first; stop at the first item past the cutoff.
			if !cutoff.IsZero() && !published.IsZero() && published.Before(cutoff) {
				break
			}
			if p, ok := item.paper(published, fetchedOn); ok {
				papers = append(papers, p)
			}
		}
	}
	return Dedupe(papers), nil
}

func (r *RSS) read(ctx context.Context, feedURL string) ([]rssItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient(r.HTTPClient).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: http %s", feedURL, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", feedURL, err)
	}
	return doc.Channel.Items, nil
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Creator     string `xml:"http://purl.org/dc/elements/1.1/ creator"`
}

var rssDateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC3339, "Mon, 2 Jan 2006 15:04:05 -0700"}

func (i rssItem) published() time.Time {
	raw := strings.TrimSpace(i.PubDate)
	for _, layout := range rssDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (i rssItem) paper(published time.Time, fetchedOn string) (core.Paper, bool) {
	link := strings.TrimSpace(i.Link)
	title := collapse(i.Title)
	if link == "" || title == "" {
		return core.Paper{}, false
	}

	p := core.Paper{Title: title, URL: link, PublishedDate: fetchedOn}
	if !published.IsZero() {
		p.PublishedDate = published.UTC().Format("2006-01-02")
	}

	if strings.Contains(link, "aclanthology.org") {
		// ACL descriptions read "Author1 and Author2 in Proceedings of ...".
		p.Source = SourceACL
		p.PublicationType = PublicationConference
		p.PaperID = lastPathSegment(link)
		desc := collapse(i.Description)
		if before, _, ok := strings.Cut(desc, " in "); ok {
			for _, name := range strings.Split(before, " and ") {
				if name = strings.TrimSpace(name); name != "" {
					p.Authors = append(p.Authors, name)
				}
			}
		}
		return p, true
	}

	p.Source = SourceArXiv
	p.PublicationType = PublicationPreprint
	p.Abstract = arxivAbstract(i.Description)
	if strings.Contains(link, "arxiv.org") {
		p.PaperID = arxivID(link)
	}
	for _, name := range strings.Split(i.Creator, ",") {
		if name = strings.TrimSpace(name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	return p, true
}

// arxivAbstract drops the "arXiv:... Announce Type: new Abstract:" preamble.
func arxivAbstract(desc string) string {
	desc = collapse(desc)
	if _, after, ok := strings.Cut(desc, "Abstract:"); ok {
		return strings.TrimSpace(after)
	}
	return desc
}

func lastPathSegment(link string) string {
	link = strings.TrimRight(link, "/")
	if idx := strings.LastIndex(link, "/"); idx >= 0 {
		return link[idx+1:]
	}
	return link
}
