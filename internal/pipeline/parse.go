package pipeline

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseRecords recovers a list of loosely-typed record mappings from
// repaired LLM output. Strategies run in order and the first that yields
// records wins:
//
//  1. Parse the whole text as JSON; accept only a top-level array. Text that
//     parses to anything else is rejected outright, since a single object
//     cannot represent a multi-article batch.
//  2. Parse the substring between the first '[' and the last ']', after
//     re-stripping trailing commas.
//  3. Parse every flat {...} object independently and keep the ones that
//     parse, dropping the rest.
//
// Strategy 3 makes the recovery deliberately lossy: a malformed entry in the
// middle of a batch costs that entry, not the batch. Exhausting all
// strategies returns an empty slice, never an error.
func ParseRecords(text string) []map[string]any {
	records, terminal := parseWholeArray(text)
	if len(records) > 0 || terminal {
		return records
	}
	if records := parseEmbeddedArray(text); len(records) > 0 {
		return records
	}
	return parseFlatObjects(text)
}

// parseWholeArray attempts a strict parse of the entire text. The second
// return value is true when the text was valid JSON but not an array, which
// ends recovery: the model answered with the wrong shape, not a mangled one.
func parseWholeArray(text string) ([]map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		return nil, true
	}
	return collectMaps(list), false
}

func parseEmbeddedArray(text string) []map[string]any {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}

	cleaned := stripTrailingCommas(text[start : end+1])

	var list []any
	if err := json.Unmarshal([]byte(cleaned), &list); err != nil {
		return nil
	}
	return collectMaps(list)
}

var flatObjectRe = regexp.MustCompile(`\{[^{}]*\}`)

func parseFlatObjects(text string) []map[string]any {
	var records []map[string]any
	for _, candidate := range flatObjectRe.FindAllString(text, -1) {
		cleaned := stripTrailingCommas(candidate)

		var m map[string]any
		if err := json.Unmarshal([]byte(cleaned), &m); err != nil {
			continue
		}
		records = append(records, m)
	}
	return records
}

func collectMaps(list []any) []map[string]any {
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	return records
}
