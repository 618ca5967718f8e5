package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateByCategory(t *testing.T) {
	estimate, err := Calculate(CalculatorInput{Category: "transport", Quantity: "100"})
	require.NoError(t, err)
	require.Equal(t, CalculatorTransport, estimate.Category)
	require.Equal(t, 10.0, estimate.CalculatedCO2)
	require.Equal(t, "км", estimate.Unit)
	require.Equal(t, "transport", estimate.ActivityType)

	estimate, err = Calculate(CalculatorInput{Category: "Питание", ActivityType: "Обед", Quantity: "2", Unit: "порция"})
	require.NoError(t, err)
	require.Equal(t, CalculatorFood, estimate.Category)
	require.Equal(t, 10.0, estimate.CalculatedCO2)
	require.Equal(t, "Обед", estimate.ActivityType)
	require.Equal(t, "порция", estimate.Unit)

	estimate, err = Calculate(CalculatorInput{Category: "garden", Quantity: "3"})
	require.NoError(t, err)
	require.Equal(t, CalculatorOther, estimate.Category)
	require.Equal(t, 0.3, estimate.CalculatedCO2)
	require.Equal(t, RecommendationGeneral, estimate.RecommendationCategory())
}

func TestCalculatePresets(t *testing.T) {
	estimate, err := Calculate(CalculatorInput{ActivityType: "car", Quantity: "10"})
	require.NoError(t, err)
	require.Equal(t, "Поездка на автомобиле", estimate.ActivityType)
	require.Equal(t, CalculatorTransport, estimate.Category)
	require.Equal(t, 1.2, estimate.CalculatedCO2)
	require.Equal(t, RecommendationTransport, estimate.RecommendationCategory())

	estimate, err = Calculate(CalculatorInput{ActivityType: "Electricity", Quantity: "150"})
	require.NoError(t, err)
	require.Equal(t, "кВт·ч", estimate.Unit)
	require.Equal(t, 60.0, estimate.CalculatedCO2)
}

func TestCalculateCollectsProblems(t *testing.T) {
	_, err := Calculate(CalculatorInput{ActivityType: "scooter", Quantity: "-1"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []string{
		"quantity must be greater than 0",
		"category or a known activity_type is required",
	}, verr.Problems)
}
