package domain

import "strings"

// Calculator categories and their flat per-unit coefficients. These are
// independent of the emission factor table.
const (
	CalculatorTransport = "transport"
	CalculatorFood      = "food"
	CalculatorEnergy    = "energy"
	CalculatorOther     = "other"
)

var calculatorCoefficients = map[string]float64{
	CalculatorTransport: 0.1,
	CalculatorFood:      5.0,
	CalculatorEnergy:    0.5,
	CalculatorOther:     0.1,
}

var calculatorUnits = map[string]string{
	CalculatorTransport: "км",
	CalculatorFood:      "кг",
	CalculatorEnergy:    "кВт·ч",
	CalculatorOther:     "шт",
}

type calculatorPreset struct {
	category   string
	name       string
	unit       string
	co2PerUnit float64
}

// calculatorPresets are the quick picks offered when no category is given.
var calculatorPresets = map[string]calculatorPreset{
	"car":         {CalculatorTransport, "Поездка на автомобиле", "км", 0.12},
	"bus":         {CalculatorTransport, "Поездка на автобусе", "км", 0.03},
	"plane":       {CalculatorTransport, "Перелет на самолете", "км", 0.25},
	"beef":        {CalculatorFood, "Употребление говядины", "кг", 27.0},
	"chicken":     {CalculatorFood, "Употребление курицы", "кг", 6.0},
	"electricity": {CalculatorEnergy, "Потребление электроэнергии", "кВт·ч", 0.4},
}

// CalculatorInput holds the raw calculator form.
type CalculatorInput struct {
	Category     string
	ActivityType string
	Quantity     string
	Unit         string
}

// Estimate is the calculator result. CalculatedCO2 is rounded for display.
type Estimate struct {
	Category      string  `json:"category"`
	ActivityType  string  `json:"activity_type"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	CO2PerUnit    float64 `json:"co2_per_unit"`
	CalculatedCO2 float64 `json:"calculated_co2"`
}

// RecommendationCategory maps the calculator category onto the recommendation
// vocabulary; other becomes general.
func (e Estimate) RecommendationCategory() RecommendationCategory {
	if e.Category == CalculatorOther {
		return RecommendationGeneral
	}
	return MapCategory(e.Category)
}

// Calculate estimates CO₂ with the flat coefficient table. A known preset in
// ActivityType is used when Category is empty.
func Calculate(input CalculatorInput) (Estimate, error) {
	var problems []string

	quantity, problem := parseQuantity(input.Quantity)
	if problem != "" {
		problems = append(problems, problem)
	}

	activityType := strings.TrimSpace(input.ActivityType)
	unit := strings.TrimSpace(input.Unit)
	category := strings.TrimSpace(input.Category)

	var estimate Estimate
	switch {
	case category != "":
		estimate.Category = calculatorCategory(category)
		estimate.CO2PerUnit = calculatorCoefficients[estimate.Category]
		estimate.ActivityType = activityType
		if estimate.ActivityType == "" {
			estimate.ActivityType = estimate.Category
		}
		estimate.Unit = unit
		if estimate.Unit == "" {
			estimate.Unit = calculatorUnits[estimate.Category]
		}
	default:
		preset, ok := calculatorPresets[strings.ToLower(activityType)]
		if !ok {
			problems = append(problems, "category or a known activity_type is required")
			break
		}
		estimate.Category = preset.category
		estimate.CO2PerUnit = preset.co2PerUnit
		estimate.ActivityType = preset.name
		estimate.Unit = preset.unit
	}

	if err := validationError(problems); err != nil {
		return Estimate{}, err
	}

	estimate.Quantity = quantity
	estimate.CalculatedCO2 = round(quantity*estimate.CO2PerUnit, 2)
	return estimate, nil
}

// calculatorCategory accepts calculator keys and activity category names in
// either language; anything unrecognised counts as other.
func calculatorCategory(raw string) string {
	switch MapCategory(raw) {
	case RecommendationTransport:
		return CalculatorTransport
	case RecommendationFood:
		return CalculatorFood
	case RecommendationEnergy:
		return CalculatorEnergy
	default:
		return CalculatorOther
	}
}
