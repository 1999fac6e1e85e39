package query

import (
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/highlight"
	simpleFragmenter "github.com/blevesearch/bleve/v2/search/highlight/fragmenter/simple"
	htmlFormat "github.com/blevesearch/bleve/v2/search/highlight/format/html"
	simpleHighlighter "github.com/blevesearch/bleve/v2/search/highlight/highlighter/simple"
)

const (
	// HighlightStyle names the highlighter every search request uses.
	HighlightStyle = "searchsync_html"
	// FragmentSize is the length in bytes of one highlighted excerpt.
	FragmentSize = 150

	highlightBefore = "<mark>"
	highlightAfter  = "</mark>"
)

func init() {
	registry.RegisterHighlighter(HighlightStyle, func(config map[string]interface{}, cache *registry.Cache) (highlight.Highlighter, error) {
		return simpleHighlighter.NewHighlighter(
			simpleFragmenter.NewFragmenter(FragmentSize),
			htmlFormat.NewFragmentFormatter(highlightBefore, highlightAfter),
			simpleHighlighter.DefaultSeparator,
		), nil
	})
}
