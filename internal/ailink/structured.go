package ailink

import (
	"errors"
	"strings"

	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
)

// responseFormatFor picks json_schema when structured output is enabled and the
// prompt carries a schema, json_object for other JSON prompts, nil for text.
func responseFormatFor(cfg Config, def *prompt.Prompt) *driver.ResponseFormat {
	if !def.ExpectsJSON() {
		return nil
	}
	if cfg.StructuredOutput && len(def.Config.ResponseSchema) > 0 {
		// Names must be alphanumeric/underscore.
		name := strings.NewReplacer("-", "_", ".", "_").Replace(strings.TrimSpace(def.Config.Slug))
		if name == "" {
			name = "paperscope_schema"
		}
		return &driver.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &driver.JSONSchema{
				Name:   name,
				Schema: def.Config.ResponseSchema,
			},
		}
	}
	return &driver.ResponseFormat{Type: "json_object"}
}

// isUnsupportedSchemaError detects providers that reject json_schema response formats.
func isUnsupportedSchemaError(err error) bool {
	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil && perr.StatusCode == 400 {
		msg := strings.ToLower(perr.Message)
		return strings.Contains(msg, "json_schema") || strings.Contains(msg, "response_format")
	}
	return false
}
