package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/paperscope/paperscope/internal/core"
)

// File reads papers from a JSON array or JSON-lines file.
type File struct {
	Path string
}

// Name identifies the source.
func (f *File) Name() string { return "file" }

// Fetch decodes the whole file. Blank lines and lines starting with # are
// ignored in JSON-lines input.
func (f *File) Fetch(ctx context.Context) ([]core.Paper, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	papers, err := ParsePapers(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return papers, nil
}

// ParsePapers accepts a JSON array, a single JSON object, or JSON lines.
func ParsePapers(data []byte) ([]core.Paper, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var papers []core.Paper
		if err := json.Unmarshal(trimmed, &papers); err != nil {
			return nil, fmt.Errorf("decode paper array: %w", err)
		}
		return fill(papers), nil
	}

	var papers []core.Paper
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var p core.Paper
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		papers = append(papers, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return fill(papers), nil
}

// fill infers source details the file left out.
func fill(papers []core.Paper) []core.Paper {
	for i := range papers {
		p := &papers[i]
		if p.Source == "" {
			switch {
			case strings.Contains(p.URL, "aclanthology.org"):
				p.Source = SourceACL
			case strings.Contains(p.URL, "arxiv.org"):
				p.Source = SourceArXiv
			}
		}
		if p.PublicationType == "" {
			switch p.Source {
			case SourceACL:
				p.PublicationType = PublicationConference
			case SourceArXiv:
				p.PublicationType = PublicationPreprint
			}
		}
		if p.PaperID == "" && p.Source == SourceArXiv {
			p.PaperID = arxivID(p.URL)
		}
	}
	return papers
}
