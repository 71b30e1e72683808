package reports

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

// Classifier maps report identifiers to their temporal category. Identifiers
// in neither set are timestamped.
type Classifier struct {
	groupByDay mapset.Set[string]
	singleton  mapset.Set[string]
}

func NewClassifier(groupByDay, singleton []string) *Classifier {
	return &Classifier{
		groupByDay: mapset.NewSet(groupByDay...),
		singleton:  mapset.NewSet(singleton...),
	}
}

func (c *Classifier) Classify(identifier string) model.ReportCategory {
	if c == nil {
		return model.ReportCategoryTimestamp
	}
	switch {
	case c.singleton.Contains(identifier):
		return model.ReportCategorySingleton
	case c.groupByDay.Contains(identifier):
		return model.ReportCategoryGroupByDay
	default:
		return model.ReportCategoryTimestamp
	}
}

// Identifiers lists every configured identifier, for bulk refreshes.
func (c *Classifier) Identifiers() []string {
	if c == nil {
		return nil
	}
	out := c.groupByDay.Union(c.singleton).ToSlice()
	slices.Sort(out)
	return out
}
