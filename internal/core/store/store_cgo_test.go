//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/internal/config"
	"github.com/paperscope/paperscope/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Migrate(ctx))
	// migrations are idempotent
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Close())
}

func TestPaperRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	paper := core.NewStoredPaper(core.Paper{
		Title:         "Jailbreaking Aligned LLMs",
		Abstract:      "We study jailbreak attacks.",
		URL:           "https://arxiv.org/abs/2401.00001",
		PublishedDate: "2024-01-02",
		Authors:       []string{"A. Author", "B. Author"},
		Source:        "arxiv",
	}, core.FeedAISecurity, core.ClassificationResult{
		Relevant:       true,
		RelevanceScore: 5,
		Tags:           []string{"jailbreak"},
		Reason:         "attacks on LLM alignment",
		PaperType:      core.PaperTypeResearch,
		Modalities:     []core.Modality{core.ModalityText},
		Summary:        []string{"Proposes an attack."},
	})
	paper.StoredAt = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	exists, err := store.PaperExists(ctx, core.FeedAISecurity, paper.URL)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.SavePaper(ctx, paper))

	exists, err = store.PaperExists(ctx, core.FeedAISecurity, paper.URL)
	require.NoError(t, err)
	require.True(t, exists)

	// feeds are separate namespaces
	exists, err = store.PaperExists(ctx, core.FeedWeb3Security, paper.URL)
	require.NoError(t, err)
	require.False(t, exists)

	// upsert keeps a single row
	paper.Star = true
	require.NoError(t, store.SavePaper(ctx, paper))
	count, err := store.CountPapers(ctx, core.FeedAISecurity)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	papers, err := store.ListPapers(ctx, PaperQuery{Feed: core.FeedAISecurity, RelevantOnly: true})
	require.NoError(t, err)
	require.Len(t, papers, 1)
	got := papers[0]
	require.Equal(t, paper.Title, got.Title)
	require.Equal(t, paper.Authors, got.Authors)
	require.Equal(t, []string{"jailbreak"}, got.Topics)
	require.Equal(t, []core.Modality{core.ModalityText}, got.Modalities)
	require.Equal(t, core.PaperTypeResearch, got.PaperType)
	require.Equal(t, 5, got.RelevanceScore)
	require.True(t, got.Star)
	require.True(t, got.IsRelevant)
	require.Equal(t, paper.StoredAt, got.StoredAt)
}

func TestSavePaperRequiresURL(t *testing.T) {
	store := openTestStore(t)
	require.Error(t, store.SavePaper(context.Background(), core.StoredPaper{}))
}

func TestQuotaJournal(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	yesterday := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	today := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	midnight := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordQuotaUsage(ctx, "moonshotai/kimi-dev-72b:free", yesterday))
	require.NoError(t, store.RecordQuotaUsage(ctx, "moonshotai/kimi-dev-72b:free", today))
	require.NoError(t, store.RecordQuotaUsage(ctx, "moonshotai/kimi-dev-72b:free", today.Add(time.Minute)))
	require.Error(t, store.RecordQuotaUsage(ctx, " ", today))

	usage, err := store.QuotaUsageSince(ctx, midnight)
	require.NoError(t, err)
	require.Equal(t, []time.Time{today, today.Add(time.Minute)}, usage)

	deleted, err := store.DeleteQuotaUsage(ctx, "moonshotai/kimi-dev-72b:free", today.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = store.DeleteQuotaUsage(ctx, "moonshotai/kimi-dev-72b:free", today.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, deleted)

	usage, err = store.QuotaUsageSince(ctx, midnight)
	require.NoError(t, err)
	require.Equal(t, []time.Time{today}, usage)

	pruned, err := store.PruneQuotaUsage(ctx, midnight)
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)
}

func TestRateLimitState(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	endpoint := core.RateLimitEndpoint("openrouter", "openai/gpt-4.1-nano")

	state, err := store.GetRateLimit(ctx, endpoint)
	require.NoError(t, err)
	require.Nil(t, state)

	state, err = store.RecordThrottle(ctx, endpoint, 30*time.Second, now)
	require.NoError(t, err)
	require.Equal(t, 1, state.RequestCount)

	state, err = store.RecordThrottle(ctx, endpoint, 0, now.Add(10*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, state.RequestCount)
	require.Equal(t, now.Add(30*time.Second), *state.BackoffUntil)

	remaining, err := store.ActiveBackoff(ctx, endpoint, now.Add(10*time.Second))
	require.NoError(t, err)
	require.Equal(t, 20*time.Second, remaining)

	remaining, err = store.ActiveBackoff(ctx, endpoint, now.Add(time.Minute))
	require.NoError(t, err)
	require.Zero(t, remaining)

	_, err = store.RecordThrottle(ctx, core.RateLimitEndpoint("openrouter", "openai/gpt-4o"), time.Second, now)
	require.NoError(t, err)

	entries, err := store.ListRateLimits(ctx, RateLimitQuery{Provider: "openrouter"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[1].BackingOff(now))

	_, err = store.ListRateLimits(ctx, RateLimitQuery{})
	require.Error(t, err)

	deleted, err := store.ResetRateLimits(ctx, RateLimitQuery{Endpoint: endpoint})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	deleted, err = store.ResetRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}
