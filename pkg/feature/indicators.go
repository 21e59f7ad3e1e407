package feature

import (
	"strings"

	"github.com/govai-platform/govai/pkg/contract"
)

// Indicators holds the lookup tables behind the categorical risk flags. The
// tables come from configuration; the zero value matches nothing.
type Indicators struct {
	locations map[string]struct{}
	keywords  []string
}

// NewIndicators builds indicators from high-risk locations (country or region
// names) and direct-sourcing keywords. Matching is case-insensitive.
func NewIndicators(locations, keywords []string) Indicators {
	i := Indicators{
		locations: make(map[string]struct{}, len(locations)),
		keywords:  make([]string, 0, len(keywords)),
	}
	for _, l := range locations {
		if l = normalize(l); l != "" {
			i.locations[l] = struct{}{}
		}
	}
	for _, k := range keywords {
		if k = normalize(k); k != "" {
			i.keywords = append(i.keywords, k)
		}
	}
	return i
}

// HighRiskLocation reports whether the record's country or region is in the
// high-risk set.
func (i Indicators) HighRiskLocation(r contract.Record) bool {
	if len(i.locations) == 0 {
		return false
	}
	for _, v := range []string{r.Country, r.Region} {
		if _, ok := i.locations[normalize(v)]; ok {
			return true
		}
	}
	return false
}

// DirectSourcing reports whether the description or procurement type
// indicates single, direct or emergency sourcing.
func (i Indicators) DirectSourcing(r contract.Record) bool {
	text := r.Text()
	for _, k := range i.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
