package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

const defaultListLimit = 50

// PaperExists reports whether url was already stored for feed.
func (s *Store) PaperExists(ctx context.Context, feed core.FeedType, url string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	url = strings.TrimSpace(url)
	if url == "" {
		return false, errors.New("url is required")
	}

	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM papers WHERE feed_type = ? AND url = ? LIMIT 1`,
		string(feed), url,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup paper: %w", err)
	}
	return true, nil
}

// SavePaper upserts a classified paper keyed by (feed, url).
func (s *Store) SavePaper(ctx context.Context, paper core.StoredPaper) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(paper.URL) == "" {
		return errors.New("paper url is required")
	}
	if paper.FeedType == "" {
		paper.FeedType = core.FeedAISecurity
	}
	if paper.StoredAt.IsZero() {
		paper.StoredAt = time.Now().UTC()
	}

	authors, err := encodeList(paper.Authors)
	if err != nil {
		return err
	}
	topics, err := encodeList(paper.Topics)
	if err != nil {
		return err
	}
	modalities, err := encodeList(paper.Modalities)
	if err != nil {
		return err
	}
	summary, err := encodeList(paper.Summary)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO papers (
			feed_type, url, title, abstract, published_date, authors, source, paper_id,
			cited_by_count, publication_type, code_repository, is_relevant, topics,
			relevance_score, relevance_reason, paper_type, modalities, summary, star, stored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_type, url) DO UPDATE SET
			title = excluded.title,
			abstract = excluded.abstract,
			published_date = excluded.published_date,
			authors = excluded.authors,
			source = excluded.source,
			paper_id = excluded.paper_id,
			cited_by_count = excluded.cited_by_count,
			publication_type = excluded.publication_type,
			code_repository = excluded.code_repository,
			is_relevant = excluded.is_relevant,
			topics = excluded.topics,
			relevance_score = excluded.relevance_score,
			relevance_reason = excluded.relevance_reason,
			paper_type = excluded.paper_type,
			modalities = excluded.modalities,
			summary = excluded.summary,
			star = excluded.star,
			stored_at = excluded.stored_at
	`,
		string(paper.FeedType), paper.URL, paper.Title, paper.Abstract, paper.PublishedDate,
		authors, paper.Source, paper.PaperID, paper.CitedByCount, paper.PublicationType,
		paper.CodeRepository, boolToInt(paper.IsRelevant), topics, paper.RelevanceScore,
		paper.RelevanceReason, string(paper.PaperType), modalities, summary,
		boolToInt(paper.Star), paper.StoredAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store paper: %w", err)
	}
	return nil
}

// PaperQuery filters ListPapers.
type PaperQuery struct {
	Feed         core.FeedType
	RelevantOnly bool
	Limit        int
}

// ListPapers returns stored papers for a feed, newest first.
func (s *Store) ListPapers(ctx context.Context, q PaperQuery) ([]core.StoredPaper, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	where := "WHERE feed_type = ?"
	if q.RelevantOnly {
		where += " AND is_relevant = 1"
	}
	feed := q.Feed
	if feed == "" {
		feed = core.FeedAISecurity
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT feed_type, url, title, abstract, published_date, authors, source, paper_id,
			cited_by_count, publication_type, code_repository, is_relevant, topics,
			relevance_score, relevance_reason, paper_type, modalities, summary, star, stored_at
		FROM papers
		%s
		ORDER BY stored_at DESC, id DESC
		LIMIT ?
	`, where), string(feed), limit)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	papers := []core.StoredPaper{}
	for rows.Next() {
		var (
			row             core.StoredPaper
			feedType        string
			abstract        sql.NullString
			publishedDate   sql.NullString
			authors         sql.NullString
			source          sql.NullString
			paperID         sql.NullString
			citedBy         sql.NullInt64
			publicationType sql.NullString
			codeRepository  sql.NullString
			isRelevant      int
			topics          sql.NullString
			relevanceScore  sql.NullInt64
			relevanceReason sql.NullString
			paperType       sql.NullString
			modalities      sql.NullString
			summary         sql.NullString
			star            sql.NullInt64
			storedAt        int64
		)
		if err := rows.Scan(&feedType, &row.URL, &row.Title, &abstract, &publishedDate, &authors,
			&source, &paperID, &citedBy, &publicationType, &codeRepository, &isRelevant, &topics,
			&relevanceScore, &relevanceReason, &paperType, &modalities, &summary, &star, &storedAt); err != nil {
			return nil, fmt.Errorf("scan papers: %w", err)
		}

		row.FeedType = core.FeedType(feedType)
		row.Abstract = abstract.String
		row.PublishedDate = publishedDate.String
		row.Source = source.String
		row.PaperID = paperID.String
		row.CitedByCount = int(citedBy.Int64)
		row.PublicationType = publicationType.String
		row.CodeRepository = codeRepository.String
		row.IsRelevant = isRelevant != 0
		row.RelevanceScore = int(relevanceScore.Int64)
		row.RelevanceReason = relevanceReason.String
		row.PaperType = core.PaperType(paperType.String)
		row.Star = star.Int64 != 0
		row.StoredAt = time.Unix(storedAt, 0).UTC()

		if err := decodeList(authors, &row.Authors); err != nil {
			return nil, err
		}
		if err := decodeList(topics, &row.Topics); err != nil {
			return nil, err
		}
		if err := decodeList(modalities, &row.Modalities); err != nil {
			return nil, err
		}
		if err := decodeList(summary, &row.Summary); err != nil {
			return nil, err
		}

		papers = append(papers, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	return papers, nil
}

// CountPapers returns how many papers are stored for feed.
func (s *Store) CountPapers(ctx context.Context, feed core.FeedType) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM papers WHERE feed_type = ?`, string(feed),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count papers: %w", err)
	}
	return count, nil
}

func encodeList[T any](values []T) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode list: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeList[T any](raw sql.NullString, target *[]T) error {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), target); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
