package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// categoryVocabulary maps folded activity category names to recommendation
// categories. Catalog names are Russian; English aliases cover API clients.
var categoryVocabulary = map[string]RecommendationCategory{
	"транспорт":     RecommendationTransport,
	"transport":     RecommendationTransport,
	"питание":       RecommendationFood,
	"еда":           RecommendationFood,
	"food":          RecommendationFood,
	"энергия":       RecommendationEnergy,
	"энергетика":    RecommendationEnergy,
	"электричество": RecommendationEnergy,
	"energy":        RecommendationEnergy,
	"покупки":       RecommendationShopping,
	"shopping":      RecommendationShopping,
}

// MapCategory resolves an activity category name to the recommendation
// vocabulary, defaulting to general.
func MapCategory(name string) RecommendationCategory {
	folded := cases.Lower(language.Russian).String(strings.TrimSpace(name))
	if c, ok := categoryVocabulary[folded]; ok {
		return c
	}
	return RecommendationGeneral
}
