package ingestion

import (
	"github.com/fabfab/estate-agent/catalogue"
	"github.com/fabfab/estate-agent/query"
)

const UnknownLabel = "Unknown"

// Metadata is the heuristic tagging of a brochure segment. False positives
// are expected; downstream filters treat it as advisory.
type Metadata struct {
	Locality       string
	PropertyType   string
	Configurations []string
	PricesLakh     []float64
}

type Extractor struct {
	catalogue *catalogue.Catalogue
}

func NewExtractor(cat *catalogue.Catalogue) *Extractor {
	if cat == nil {
		cat = catalogue.Default()
	}
	return &Extractor{catalogue: cat}
}

func (e *Extractor) Extract(text string) Metadata {
	return Metadata{
		Locality:       e.Locality(text),
		PropertyType:   e.PropertyType(text),
		Configurations: query.Configurations(text),
		PricesLakh:     query.Amounts(text),
	}
}

// Locality picks the catalogue locality mentioned most often. Ties go to the
// earlier catalogue entry.
func (e *Extractor) Locality(text string) string {
	best, bestCount := UnknownLabel, 0
	for _, entry := range e.catalogue.Localities {
		if n := entry.Count(text); n > bestCount {
			best, bestCount = entry.Label, n
		}
	}
	return best
}

func (e *Extractor) PropertyType(text string) string {
	if entry, ok := catalogue.Lookup(e.catalogue.PropertyTypes, text); ok {
		return entry.Label
	}
	return UnknownLabel
}
