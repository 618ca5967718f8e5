package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFactorTableLowestIDWins(t *testing.T) {
	table := NewFactorTable("v1", []EmissionFactor{
		{ID: 9, ActivityType: "Поездка на авто", CategoryID: 1, Unit: "км", CO2PerUnit: 0.2, Region: "eu"},
		{ID: 3, ActivityType: "Поездка на авто", CategoryID: 1, Unit: "км", CO2PerUnit: 0.12, Region: "global"},
		{ID: 5, ActivityType: "Поездка на авто", CategoryID: 1, Unit: "км", CO2PerUnit: 0.3, Region: "us"},
	})

	factor, ok := table.LookupFactor("Поездка на авто", 1, "км")
	require.True(t, ok)
	require.Equal(t, int64(3), factor.ID)
	require.Equal(t, 0.12, factor.CO2PerUnit)
	require.Equal(t, 1, table.Len())
	require.Equal(t, "v1", table.Version())
}

func TestFactorTableRequiresExactMatch(t *testing.T) {
	table := NewFactorTable("v1", []EmissionFactor{
		{ID: 1, ActivityType: "Поездка на авто", CategoryID: 1, Unit: "км", CO2PerUnit: 0.12},
	})

	_, ok := table.LookupFactor("Поездка на авто", 1, "м")
	require.False(t, ok)
	_, ok = table.LookupFactor("Поездка на авто", 2, "км")
	require.False(t, ok)
	_, ok = table.LookupFactor("поездка на авто", 1, "км")
	require.False(t, ok)
}

func TestNilFactorTable(t *testing.T) {
	var table *FactorTable
	_, ok := table.LookupFactor("x", 1, "y")
	require.False(t, ok)
	require.Zero(t, table.Len())
	require.Empty(t, table.Version())
}

func TestCalculateCO2(t *testing.T) {
	quantity, perUnit := 10.0, 0.12
	require.Equal(t, quantity*perUnit, CalculateCO2(quantity, EmissionFactor{CO2PerUnit: perUnit}, true))
	require.InDelta(t, 1.2, CalculateCO2(quantity, EmissionFactor{CO2PerUnit: perUnit}, true), 1e-12)
	require.Equal(t, quantity*DefaultCO2PerUnit, CalculateCO2(quantity, EmissionFactor{CO2PerUnit: perUnit}, false))
}

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		raw     string
		want    float64
		problem string
	}{
		{raw: "10", want: 10},
		{raw: " 1,5 ", want: 1.5},
		{raw: "0.25", want: 0.25},
		{raw: "", problem: "quantity must be a number"},
		{raw: "abc", problem: "quantity must be a number"},
		{raw: "NaN", problem: "quantity must be a number"},
		{raw: "Inf", problem: "quantity must be a number"},
		{raw: "0", problem: "quantity must be greater than 0"},
		{raw: "-3", problem: "quantity must be greater than 0"},
	}
	for _, tc := range cases {
		got, problem := parseQuantity(tc.raw)
		require.Equal(t, tc.problem, problem, tc.raw)
		if tc.problem == "" {
			require.Equal(t, tc.want, got, tc.raw)
		}
	}
}
