package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Limits for user searches.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// UserHit is one ranked match.
type UserHit struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// SearchUsers ranks users whose username starts with q or whose display name
// matches q exactly, by prefix or within one edit. Banned users are excluded.
func (s *SearchIndex) SearchUsers(ctx context.Context, q string, limit int) ([]UserHit, error) {
	q = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(q), "@")))
	if q == "" {
		return []UserHit{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildUserQuery(q), limit, 0, false)
	req.Fields = []string{"username", "display_name"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	hits := make([]UserHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := UserHit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["username"].(string); ok {
			hit.Username = v
		}
		if v, ok := h.Fields["display_name"].(string); ok {
			hit.DisplayName = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func buildUserQuery(q string) query.Query {
	textQueries := []query.Query{}

	// Exact username wins.
	exact := bleve.NewTermQuery(q)
	exact.SetField("username")
	exact.SetBoost(5.0)
	textQueries = append(textQueries, exact)

	usernamePrefix := bleve.NewPrefixQuery(q)
	usernamePrefix.SetField("username")
	usernamePrefix.SetBoost(3.0)
	textQueries = append(textQueries, usernamePrefix)

	nameMatch := bleve.NewMatchQuery(q)
	nameMatch.SetField("display_name")
	nameMatch.SetBoost(2.0)
	textQueries = append(textQueries, nameMatch)

	for _, term := range strings.Fields(q) {
		fuzzy := bleve.NewFuzzyQuery(term)
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("display_name")
		fuzzy.SetBoost(0.8)
		textQueries = append(textQueries, fuzzy)

		if len(term) >= 2 {
			prefix := bleve.NewPrefixQuery(term)
			prefix.SetField("display_name")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}
	}

	notBanned := bleve.NewBoolFieldQuery(true)
	notBanned.SetField("banned")

	b := bleve.NewBooleanQuery()
	b.AddMust(bleve.NewDisjunctionQuery(textQueries...))
	b.AddMustNot(notBanned)
	return b
}
