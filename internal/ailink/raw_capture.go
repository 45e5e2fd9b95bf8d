package ailink

import (
	"encoding/json"
	"strings"
)

func truncateJSONRaw(input json.RawMessage, max int) json.RawMessage {
	if max <= 0 || len(input) <= max {
		return input
	}
	out := make(json.RawMessage, 0, max)
	out = append(out, input[:max]...)
	return out
}

func isRawCaptureEnabled(cfg Config, includeRaw bool) bool {
	return includeRaw && cfg.Debug.CaptureRawEnabled
}

func rawLimit(cfg Config) int {
	if cfg.Debug.CaptureRawMaxBytes <= 0 {
		return 0
	}
	return cfg.Debug.CaptureRawMaxBytes
}

// SafeOneLine flattens model output for single-line log fields.
func SafeOneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
