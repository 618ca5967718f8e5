package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapCategory(t *testing.T) {
	cases := map[string]RecommendationCategory{
		"Транспорт":     RecommendationTransport,
		"  ТРАНСПОРТ ":  RecommendationTransport,
		"Transport":     RecommendationTransport,
		"Питание":       RecommendationFood,
		"Еда":           RecommendationFood,
		"Энергия":       RecommendationEnergy,
		"Электричество": RecommendationEnergy,
		"Покупки":       RecommendationShopping,
		"Другое":        RecommendationGeneral,
		"":              RecommendationGeneral,
	}
	for name, want := range cases {
		require.Equal(t, want, MapCategory(name), name)
	}
}

func TestParseRecommendationCategory(t *testing.T) {
	c, err := ParseRecommendationCategory("energy")
	require.NoError(t, err)
	require.Equal(t, RecommendationEnergy, c)

	_, err = ParseRecommendationCategory("Energy")
	require.Error(t, err)
}
