package classify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/ailink"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
)

// GenerateKeywords turns a topic into a boolean search query. On any failure
// the topic itself is returned along with the error.
func GenerateKeywords(ctx context.Context, gen Generator, topic, model string, logger Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	topic = strings.TrimSpace(topic)

	resp, err := gen.Generate(ctx, ailink.GenerateRequest{
		PromptSlug: prompt.SlugSearchKeywords,
		Model:      strings.TrimSpace(model),
		Variables:  map[string]string{"topic": topic},
	})
	if err != nil {
		logger.Warn("Error generating search keywords", zap.Error(err))
		return topic, err
	}

	query := strings.TrimSpace(resp.Text)
	if query == "" {
		return topic, nil
	}
	return query, nil
}
