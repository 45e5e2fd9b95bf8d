// Package normalize recovers a JSON object from free-form LLM output.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Stage identifies which extraction step produced an object.
type Stage string

const (
	StageDirect   Stage = "direct"
	StageBalanced Stage = "balanced"
	StageGreedy   Stage = "greedy"
	StageLiteral  Stage = "literal"
	StageDefault  Stage = "default"
)

// ErrNoObject is returned when no extraction step produced a JSON object.
var ErrNoObject = errors.New("no JSON object found in response")

var thinkingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?s)◁think▷.*?◁/think▷`),
	regexp.MustCompile(`(?s)<\|thinking\|>.*?<\|/thinking\|>`),
	regexp.MustCompile(`(?s)<\|begin_of_thought\|>.*?<\|end_of_thought\|>`),
	regexp.MustCompile(`(?s)【思考】.*?【/思考】`),
}

var reasoningPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<reasoning>.*?</reasoning>`),
	regexp.MustCompile(`(?is)<analysis>.*?</analysis>`),
	regexp.MustCompile(`(?is)<step[-_ ]by[-_ ]step>.*?</step[-_ ]by[-_ ]step>`),
	regexp.MustCompile(`(?is)<reflection>.*?</reflection>`),
	regexp.MustCompile(`(?is)<scratchpad>.*?</scratchpad>`),
}

var greedyObject = regexp.MustCompile(`(?s)\{.*\}`)

// Clean strips thinking and reasoning regions, then a surrounding code fence.
func Clean(raw string) string {
	text := raw
	for _, re := range thinkingPatterns {
		text = re.ReplaceAllString(text, "")
	}
	for _, re := range reasoningPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return stripCodeFence(strings.TrimSpace(text))
}

// Extract returns the first JSON object recoverable from raw and the stage that found it.
//
// Steps run in order: direct parse, balanced-brace scan anchored on the last
// top-level brace, first-to-last brace match, then the tolerant literal parser.
func Extract(raw string) (map[string]any, Stage, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return nil, StageDefault, ErrNoObject
	}

	if obj, ok := parseObject(cleaned); ok {
		return obj, StageDirect, nil
	}

	if candidate, ok := balancedFromLastTopLevel(cleaned); ok {
		if obj, ok := parseObject(candidate); ok {
			return obj, StageBalanced, nil
		}
	}
	for _, candidate := range balancedCandidates(cleaned) {
		if obj, ok := parseObject(candidate); ok {
			return obj, StageBalanced, nil
		}
	}

	greedy := greedyObject.FindString(cleaned)
	if greedy != "" {
		if obj, ok := parseObject(greedy); ok {
			return obj, StageGreedy, nil
		}
	}

	for _, fragment := range literalFragments(cleaned, greedy) {
		if value, err := ParseLiteral(fragment); err == nil {
			if obj, ok := value.(map[string]any); ok && len(obj) > 0 {
				return obj, StageLiteral, nil
			}
		}
	}

	return nil, StageDefault, fmt.Errorf("%w (payload snippet: %s)", ErrNoObject, Snippet(raw))
}

// ExtractOrDefault never fails: it returns fallback when nothing can be recovered.
func ExtractOrDefault(raw string, fallback map[string]any) (map[string]any, Stage) {
	obj, stage, err := Extract(raw)
	if err != nil {
		out := make(map[string]any, len(fallback))
		for k, v := range fallback {
			out[k] = v
		}
		return out, StageDefault
	}
	return obj, stage
}

// Decode extracts an object from raw and decodes it into target.
func Decode(raw string, target any) (Stage, error) {
	obj, stage, err := Extract(raw)
	if err != nil {
		return stage, err
	}
	payload, err := json.Marshal(obj)
	if err != nil {
		return stage, fmt.Errorf("re-encode extracted object: %w", err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return stage, fmt.Errorf("decode extracted object: %w", err)
	}
	return stage, nil
}

// Snippet collapses whitespace and truncates text for log output.
func Snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}

func parseObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// topLevelStarts returns byte offsets of every '{' opened at depth zero.
func topLevelStarts(text string) []int {
	var starts []int
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if depth > 0 && inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				starts = append(starts, i)
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return starts
}

// matchBalanced returns the object starting at start if its braces close.
func matchBalanced(text string, start int) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func balancedFromLastTopLevel(text string) (string, bool) {
	starts := topLevelStarts(text)
	if len(starts) == 0 {
		return "", false
	}
	return matchBalanced(text, starts[len(starts)-1])
}

func balancedCandidates(text string) []string {
	var out []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if candidate, ok := matchBalanced(text, i); ok {
			out = append(out, candidate)
		}
	}
	return out
}

// literalFragments orders the fragments handed to the tolerant parser.
// A truncated trailing object is closed before parsing.
func literalFragments(cleaned, greedy string) []string {
	var out []string
	if greedy != "" {
		out = append(out, greedy)
	}
	if starts := topLevelStarts(cleaned); len(starts) > 0 {
		tail := cleaned[starts[len(starts)-1]:]
		out = append(out, tail)
		if repaired := closeTruncated(tail); repaired != tail {
			out = append(out, repaired)
		}
	}
	out = append(out, cleaned)
	return out
}

// closeTruncated appends the quotes and closers a cut-off object is missing.
func closeTruncated(fragment string) string {
	var stack []byte
	var quote byte
	escaped := false
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if quote == 0 && len(stack) == 0 {
		return fragment
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(fragment, " \t\r\n"))
	if quote != 0 {
		b.WriteByte(quote)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
