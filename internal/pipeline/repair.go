package pipeline

import (
	"regexp"
	"strings"
)

// Repair normalizes raw LLM output toward something a strict JSON parser
// will accept: extract the first fenced code block if one exists, trim
// whitespace, drop trailing commas, and escape literal newlines inside
// quoted strings. It never fails; text with no recognizable defects passes
// through unchanged.
func Repair(text string) string {
	text = extractFencedBlock(text)
	text = strings.TrimSpace(text)
	text = stripTrailingCommas(text)
	return escapeNewlinesInStrings(text)
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// stripTrailingCommas removes commas that immediately precede a closing
// bracket or brace, the most common defect in model-emitted JSON.
func stripTrailingCommas(text string) string {
	return trailingCommaRe.ReplaceAllString(text, "$1")
}

// extractFencedBlock returns the content between the first pair of
// triple-backtick fences, preferring a ```json fence when present. Prose
// before or after the fences is discarded. Text without fences, or with an
// unterminated fence, is carried through.
func extractFencedBlock(text string) string {
	const fence = "```"

	marker := fence + "json"
	idx := strings.Index(text, marker)
	if idx < 0 {
		marker = fence
		idx = strings.Index(text, marker)
	}
	if idx < 0 {
		return text
	}

	rest := text[idx+len(marker):]
	if end := strings.Index(rest, fence); end >= 0 {
		return rest[:end]
	}
	return rest
}

// escapeNewlinesInStrings replaces literal newline characters inside quoted
// string values with the two-character \n escape, so a multi-line summary
// from the model does not terminate the string early.
func escapeNewlinesInStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case inString && c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = !inString
			b.WriteByte(c)
		case inString && c == '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
