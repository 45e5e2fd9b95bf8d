package ailink

import (
	"errors"
	"sort"
	"strings"

	"github.com/paperscope/paperscope/internal/ailink/prompt"
)

// applyVars substitutes {{key}} placeholders in a single pass, so values that
// themselves contain braces are never expanded again.
func applyVars(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		pairs = append(pairs, "{{"+key+"}}", vars[key])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// applyConditionals handles {{#if var}}content{{else}}fallback{{/if}} blocks.
// If the variable exists and is non-empty, the content is included; otherwise the fallback is used.
func applyConditionals(template string, vars map[string]string) string {
	result := template
	for {
		start := strings.Index(result, "{{#if")
		if start == -1 {
			break
		}
		tagEnd := strings.Index(result[start:], "}}")
		if tagEnd == -1 {
			break
		}
		tagEnd += start

		varName := strings.TrimSpace(result[start+len("{{#if") : tagEnd])
		blockStart := tagEnd + 2

		elseStart, elseEnd, endStart, endEnd := findConditionalBlock(result, blockStart)
		if endStart == -1 {
			break
		}

		ifContent := result[blockStart:endStart]
		elseContent := ""
		if elseStart != -1 {
			ifContent = result[blockStart:elseStart]
			elseContent = result[elseEnd:endStart]
		}

		replacement := elseContent
		if value, ok := vars[varName]; ok && strings.TrimSpace(value) != "" {
			replacement = ifContent
		}
		result = result[:start] + replacement + result[endEnd:]
	}
	return result
}

// findConditionalBlock locates the matching {{else}} and {{/if}} tags for a
// block opened before start, honouring nested conditionals.
func findConditionalBlock(input string, start int) (elseStart, elseEnd, endStart, endEnd int) {
	depth := 0
	elseStart, elseEnd = -1, -1

	pos := start
	for {
		openIdx := strings.Index(input[pos:], "{{")
		if openIdx == -1 {
			return -1, -1, -1, -1
		}
		openIdx += pos

		closeIdx := strings.Index(input[openIdx:], "}}")
		if closeIdx == -1 {
			return -1, -1, -1, -1
		}
		closeIdx += openIdx

		tag := strings.TrimSpace(input[openIdx+2 : closeIdx])
		switch {
		case tag == "#if" || strings.HasPrefix(tag, "#if "):
			depth++
		case tag == "/if":
			if depth == 0 {
				return elseStart, elseEnd, openIdx, closeIdx + 2
			}
			depth--
		case tag == "else" && depth == 0 && elseStart == -1:
			elseStart = openIdx
			elseEnd = closeIdx + 2
		}

		pos = closeIdx + 2
	}
}

// renderPrompt renders the system and user templates of def.
// Conditionals are resolved before substitution so paper text cannot open a block.
func renderPrompt(def *prompt.Prompt, vars map[string]string) (string, string, error) {
	if def == nil {
		return "", "", errors.New("prompt is required")
	}

	system := applyVars(applyConditionals(def.Config.SystemTemplate, vars), vars)

	user := def.Config.UserTemplate
	if strings.TrimSpace(user) == "" {
		user = "{{text}}"
	}
	user = applyVars(applyConditionals(user, vars), vars)

	system = strings.TrimSpace(system)
	if system == "" {
		return "", "", errors.New("system prompt is required")
	}
	return system, strings.TrimSpace(user), nil
}
