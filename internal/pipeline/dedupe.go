package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/cropwatch/internal/model"
)

// DedupeByLink collapses articles down to one entry per distinct link,
// keeping the first occurrence encountered. Articles with an empty link have
// no identity to compare, so every one of them is retained.
func DedupeByLink(articles []model.RawArticle) []model.RawArticle {
	seen := make(map[string]struct{}, len(articles))
	unique := make([]model.RawArticle, 0, len(articles))

	for _, a := range articles {
		if a.Link != "" {
			if _, ok := seen[a.Link]; ok {
				continue
			}
			seen[a.Link] = struct{}{}
		}
		unique = append(unique, a)
	}

	if removed := len(articles) - len(unique); removed > 0 {
		zap.L().Info("dedupe: removed duplicate articles",
			zap.Int("total", len(articles)),
			zap.Int("unique", len(unique)),
			zap.Int("removed", removed),
		)
	}
	return unique
}
