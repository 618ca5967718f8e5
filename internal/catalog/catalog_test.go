package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, c.Version)
	require.NotEmpty(t, c.Categories)
	require.GreaterOrEqual(t, len(c.Recommendations), 6)

	var found bool
	for _, cat := range c.Categories {
		for _, f := range cat.Factors {
			require.Equal(t, "global", f.Region)
			if cat.Name == "Транспорт" && f.ActivityType == "Поездка на авто" && f.Unit == "км" {
				found = true
				require.Equal(t, 0.12, f.CO2PerUnit)
				require.Equal(t, cat.EmissionFactorSource, f.Source)
			}
		}
	}
	require.True(t, found)

	categories := make(map[domain.RecommendationCategory]int)
	for _, rec := range c.Recommendations {
		categories[domain.RecommendationCategory(rec.Category)]++
		require.True(t, rec.IsActive())
	}
	for _, want := range domain.RecommendationCategories {
		require.Positive(t, categories[want], want)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
version: "test"
categories:
  - name: Транспорт
    factors:
      - activity_type: Поездка на авто
        unit: км
        co2_per_unit: 0.12
recommendations:
  - title: Ходите пешком
    active: false
`))
	require.NoError(t, err)
	require.Equal(t, "bi-activity", c.Categories[0].Icon)
	require.Equal(t, "global", c.Categories[0].Factors[0].Region)

	rec := c.Recommendations[0]
	require.Equal(t, "general", rec.Category)
	require.Equal(t, "medium", rec.Difficulty)
	require.Equal(t, "bi-lightbulb", rec.Icon)
	require.False(t, rec.IsActive())
	require.False(t, rec.DomainRecommendation(7).IsActive)
	require.Equal(t, int64(7), rec.DomainRecommendation(7).ID)
	require.Equal(t, 1, c.FactorCount())
}

func TestParseRejectsInvalidCatalog(t *testing.T) {
	_, err := Parse([]byte(`
categories:
  - name: Транспорт
    factors:
      - activity_type: Поездка на авто
        unit: км
        co2_per_unit: -1
      - activity_type: Поездка на авто
        unit: км
        co2_per_unit: 0.2
  - name: Транспорт
recommendations:
  - title: A
    category: travel
    difficulty: extreme
  - title: A
    co2_saving: -5
`))
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "version is required")
	require.Contains(t, msg, "co2_per_unit must not be negative")
	require.Contains(t, msg, "duplicate factor")
	require.Contains(t, msg, `duplicate name "Транспорт"`)
	require.Contains(t, msg, `unknown recommendation category "travel"`)
	require.Contains(t, msg, `unknown difficulty "extreme"`)
	require.Contains(t, msg, `duplicate title "A"`)
	require.Contains(t, msg, "co2_saving must not be negative")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("version: x\ncategorys: []\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.NotEmpty(t, c.Categories)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\n"), 0o600))
	c, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, "2", c.Version)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
