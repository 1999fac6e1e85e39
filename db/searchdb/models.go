package searchdb

import "time"

type IndexOutcome int

const (
	IndexExisted IndexOutcome = iota
	IndexCreated
)

func (o IndexOutcome) String() string {
	if o == IndexCreated {
		return "created"
	}
	return "existed"
}

type Hit struct {
	ID        string
	Score     float64
	Fields    map[string]any
	Fragments map[string][]string
}

type FacetTerm struct {
	Term  string
	Count int
}

type Result struct {
	Total    uint64
	MaxScore float64
	Took     time.Duration
	Hits     []Hit
	Facets   map[string][]FacetTerm
	// Partial is set when the engine reports that part of the index could not be searched.
	Partial bool
}
