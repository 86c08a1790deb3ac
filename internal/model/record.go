package model

import (
	"fmt"
	"strings"
)

// ClassifiedRecord is the strictly-typed result of classifying one article.
// The LLM is asked for this shape but is not trusted to deliver it; every
// field is coerced explicitly by RecordFromMap.
type ClassifiedRecord struct {
	OriginalTitle      string   `json:"original_title"`
	OriginalLink       string   `json:"original_link"`
	OriginalDate       string   `json:"original_date"`
	OriginalSource     string   `json:"original_source"`
	Relevance          bool     `json:"relevance"`
	Category           Category `json:"category"`
	CompaniesMentioned []string `json:"companies_mentioned"`
	FundingAmount      string   `json:"funding_amount,omitempty"`
	KeyEntities        []string `json:"key_entities"`
	Summary            string   `json:"summary"`
}

// RecordFromMap normalizes a loosely-typed record mapping (as recovered from
// LLM output) into a ClassifiedRecord. Coercions are deliberate and total:
// a bare string where a list is expected becomes a one-element list, null or
// missing fields become zero values, and non-string list items are
// stringified. It never fails.
func RecordFromMap(m map[string]any) ClassifiedRecord {
	return ClassifiedRecord{
		OriginalTitle:      coerceString(m["original_title"]),
		OriginalLink:       coerceString(m["original_link"]),
		OriginalDate:       coerceString(m["original_date"]),
		OriginalSource:     coerceString(m["original_source"]),
		Relevance:          coerceBool(m["relevance"]),
		Category:           Category(coerceString(m["category"])),
		CompaniesMentioned: coerceStringList(m["companies_mentioned"]),
		FundingAmount:      coerceString(m["funding_amount"]),
		KeyEntities:        coerceStringList(m["key_entities"]),
		Summary:            coerceString(m["summary"]),
	}
}

func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}

func coerceStringList(v any) []string {
	switch list := v.(type) {
	case nil:
		return nil
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				continue
			}
			out = append(out, coerceString(item))
		}
		return out
	default:
		return []string{coerceString(v)}
	}
}
