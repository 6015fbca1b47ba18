package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// userFields lists the stored text fields of a user document and the
// analyzer for each. Usernames and ids are normalized already and index as
// one keyword term. Display names use the simple analyzer: lowercase, split
// on non-letters, no stemming, so prefix and fuzzy queries see whole names.
var userFields = []struct {
	name     string
	analyzer string
}{
	{"id", keyword.Name},
	{"username", keyword.Name},
	{"display_name", simple.Name},
}

// buildIndexMapping returns the mapping for user documents. Bump
// mappingVersion whenever this changes so existing indexes are rebuilt.
func buildIndexMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()
	for _, f := range userFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = f.analyzer
		fm.Store = true
		doc.AddFieldMappingsAt(f.name, fm)
	}
	doc.AddFieldMappingsAt("banned", bleve.NewBooleanFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = simple.Name
	m.DefaultMapping = doc
	return m
}
