// Package catalog loads the versioned reference data (activity categories,
// emission factors and recommendations) and keeps the in-process emission
// factor table current.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
)

const (
	defaultCategoryIcon       = "bi-activity"
	defaultRecommendationIcon = "bi-lightbulb"
	defaultRegion             = "global"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog is one version of the reference data.
type Catalog struct {
	Version         string           `yaml:"version"`
	Categories      []Category       `yaml:"categories"`
	Recommendations []Recommendation `yaml:"recommendations"`
}

// Category is an activity category with its emission factors.
type Category struct {
	Name                 string   `yaml:"name"`
	Description          string   `yaml:"description"`
	Icon                 string   `yaml:"icon"`
	EmissionFactorSource string   `yaml:"emission_factor_source"`
	Factors              []Factor `yaml:"factors"`
}

// Factor is an emission factor scoped to its enclosing category.
type Factor struct {
	ActivityType string  `yaml:"activity_type"`
	Unit         string  `yaml:"unit"`
	CO2PerUnit   float64 `yaml:"co2_per_unit"`
	Region       string  `yaml:"region"`
	Source       string  `yaml:"source"`
}

// Recommendation is a catalog recommendation. Active defaults to true.
type Recommendation struct {
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Category    string  `yaml:"category"`
	CO2Saving   float64 `yaml:"co2_saving"`
	Difficulty  string  `yaml:"difficulty"`
	Icon        string  `yaml:"icon"`
	Active      *bool   `yaml:"active"`
}

// IsActive reports the effective active flag.
func (r Recommendation) IsActive() bool {
	return r.Active == nil || *r.Active
}

// Store persists a catalog.
type Store interface {
	ApplyCatalog(ctx context.Context, c *Catalog) error
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes, defaults and validates a catalog document. Unknown keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing catalog YAML: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	c.Version = strings.TrimSpace(c.Version)
	for i := range c.Categories {
		cat := &c.Categories[i]
		cat.Name = strings.TrimSpace(cat.Name)
		if cat.Icon == "" {
			cat.Icon = defaultCategoryIcon
		}
		for j := range cat.Factors {
			f := &cat.Factors[j]
			f.ActivityType = strings.TrimSpace(f.ActivityType)
			f.Unit = strings.TrimSpace(f.Unit)
			if f.Region == "" {
				f.Region = defaultRegion
			}
			if f.Source == "" {
				f.Source = cat.EmissionFactorSource
			}
		}
	}
	for i := range c.Recommendations {
		rec := &c.Recommendations[i]
		rec.Title = strings.TrimSpace(rec.Title)
		if rec.Category == "" {
			rec.Category = string(domain.RecommendationGeneral)
		}
		if rec.Difficulty == "" {
			rec.Difficulty = string(domain.DifficultyMedium)
		}
		if rec.Icon == "" {
			rec.Icon = defaultRecommendationIcon
		}
	}
}

// Validate reports every problem in the catalog.
func (c *Catalog) Validate() error {
	var errs []error
	if c.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}

	names := make(map[string]struct{}, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Name == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: name is required", i))
			continue
		}
		if _, dup := names[cat.Name]; dup {
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate name %q", i, cat.Name))
		}
		names[cat.Name] = struct{}{}

		keys := make(map[string]struct{}, len(cat.Factors))
		for j, f := range cat.Factors {
			where := fmt.Sprintf("categories[%d].factors[%d]", i, j)
			if f.ActivityType == "" {
				errs = append(errs, fmt.Errorf("%s: activity_type is required", where))
			}
			if f.Unit == "" {
				errs = append(errs, fmt.Errorf("%s: unit is required", where))
			}
			if f.CO2PerUnit < 0 {
				errs = append(errs, fmt.Errorf("%s: co2_per_unit must not be negative", where))
			}
			key := f.ActivityType + "\x00" + f.Unit + "\x00" + f.Region
			if _, dup := keys[key]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate factor %q/%q/%q", where, f.ActivityType, f.Unit, f.Region))
			}
			keys[key] = struct{}{}
		}
	}

	titles := make(map[string]struct{}, len(c.Recommendations))
	for i, rec := range c.Recommendations {
		where := fmt.Sprintf("recommendations[%d]", i)
		if rec.Title == "" {
			errs = append(errs, fmt.Errorf("%s: title is required", where))
		} else if _, dup := titles[rec.Title]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate title %q", where, rec.Title))
		}
		titles[rec.Title] = struct{}{}
		if _, err := domain.ParseRecommendationCategory(rec.Category); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		if !domain.Difficulty(rec.Difficulty).Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown difficulty %q", where, rec.Difficulty))
		}
		if rec.CO2Saving < 0 {
			errs = append(errs, fmt.Errorf("%s: co2_saving must not be negative", where))
		}
	}
	return errors.Join(errs...)
}

// FactorCount returns the number of emission factors across all categories.
func (c *Catalog) FactorCount() int {
	n := 0
	for _, cat := range c.Categories {
		n += len(cat.Factors)
	}
	return n
}

// DomainRecommendation converts a catalog entry, assigning id.
func (r Recommendation) DomainRecommendation(id int64) domain.Recommendation {
	return domain.Recommendation{
		ID:          id,
		Title:       r.Title,
		Description: r.Description,
		Category:    domain.RecommendationCategory(r.Category),
		CO2Saving:   r.CO2Saving,
		Difficulty:  domain.Difficulty(r.Difficulty),
		Icon:        r.Icon,
		IsActive:    r.IsActive(),
	}
}
