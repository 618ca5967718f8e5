package domain

// DefaultCO2PerUnit is applied when no emission factor matches an activity.
const DefaultCO2PerUnit = 2.5

// FactorLookup resolves the emission factor for an activity.
type FactorLookup interface {
	LookupFactor(activityType string, categoryID int64, unit string) (EmissionFactor, bool)
}

type factorKey struct {
	activityType string
	categoryID   int64
	unit         string
}

// FactorTable is an immutable, versioned index of emission factors keyed by
// (activity type, category, unit). When several factors share a key the one
// with the lowest id wins.
type FactorTable struct {
	version string
	index   map[factorKey]EmissionFactor
}

// NewFactorTable indexes factors under the supplied catalog version.
func NewFactorTable(version string, factors []EmissionFactor) *FactorTable {
	index := make(map[factorKey]EmissionFactor, len(factors))
	for _, f := range factors {
		key := factorKey{activityType: f.ActivityType, categoryID: f.CategoryID, unit: f.Unit}
		if existing, ok := index[key]; ok && existing.ID <= f.ID {
			continue
		}
		index[key] = f
	}
	return &FactorTable{version: version, index: index}
}

// Version returns the catalog version the table was built from.
func (t *FactorTable) Version() string {
	if t == nil {
		return ""
	}
	return t.version
}

// Len reports the number of distinct lookup keys.
func (t *FactorTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.index)
}

// LookupFactor implements FactorLookup with an exact match on all three fields.
func (t *FactorTable) LookupFactor(activityType string, categoryID int64, unit string) (EmissionFactor, bool) {
	if t == nil {
		return EmissionFactor{}, false
	}
	f, ok := t.index[factorKey{activityType: activityType, categoryID: categoryID, unit: unit}]
	return f, ok
}

// CalculateCO2 applies the resolved factor, or DefaultCO2PerUnit when none was found.
func CalculateCO2(quantity float64, factor EmissionFactor, found bool) float64 {
	if !found {
		return quantity * DefaultCO2PerUnit
	}
	return quantity * factor.CO2PerUnit
}
