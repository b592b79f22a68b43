package finder

import (
	"regexp"
	"strings"
)

var (
	asinRe        = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	nonAlphanumRe = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// stopwords are marketing fillers that hurt cross-marketplace title
// matching.
var stopwords = map[string]struct{}{
	"new":      {},
	"brand":    {},
	"free":     {},
	"shipping": {},
	"pack":     {},
	"of":       {},
	"the":      {},
	"for":      {},
	"with":     {},
	"and":      {},
	"a":        {},
	"an":       {},
	"by":       {},
	"oz":       {},
	"ct":       {},
	"count":    {},
}

// ValidASIN reports whether id looks like a source-marketplace item id.
func ValidASIN(id string) bool {
	return asinRe.MatchString(id)
}

// NormalizeTitle prepares a source listing title for a destination
// search: lowercase, alphanumeric only, stopwords removed, truncated to
// the first maxTokens tokens.
func NormalizeTitle(title string, maxTokens int) string {
	lowered := strings.ToLower(title)
	cleaned := nonAlphanumRe.ReplaceAllString(lowered, " ")

	kept := make([]string, 0, maxTokens)
	for _, token := range strings.Fields(cleaned) {
		if _, skip := stopwords[token]; skip {
			continue
		}
		kept = append(kept, token)
		if maxTokens > 0 && len(kept) == maxTokens {
			break
		}
	}
	return strings.Join(kept, " ")
}
