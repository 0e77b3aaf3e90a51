package utils

import (
	"math"
	"testing"
)

func TestClampFloat64(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{5.5, 0.0, 10.0, 5.5},
		{-5.2, 0.0, 10.0, 0.0},
		{15.7, 0.0, 10.0, 10.0},
		{0.0, 0.0, 10.0, 0.0},
		{10.0, 0.0, 10.0, 10.0},
	}

	for _, tt := range tests {
		result := ClampFloat64(tt.value, tt.min, tt.max)
		if result != tt.expected {
			t.Errorf("ClampFloat64(%f, %f, %f) = %f, expected %f", tt.value, tt.min, tt.max, result, tt.expected)
		}
	}
}

func TestMean(t *testing.T) {
	tests := []struct {
		values   []float64
		expected float64
	}{
		{[]float64{1, 2, 3, 4, 5}, 3.0},
		{[]float64{10}, 10.0},
		{[]float64{}, 0.0},
		{[]float64{-1, 1}, 0.0},
	}

	for _, tt := range tests {
		result := Mean(tt.values)
		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("Mean(%v) = %f, expected %f", tt.values, result, tt.expected)
		}
	}
}

func TestVariance(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	expected := 4.0

	result := Variance(values)
	if math.Abs(result-expected) > 1e-9 {
		t.Errorf("Variance(%v) = %f, expected %f", values, result, expected)
	}

	if Variance(nil) != 0 {
		t.Error("Variance of empty slice should be 0")
	}
}

func TestStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	expected := 2.0

	result := StdDev(values)
	if math.Abs(result-expected) > 1e-9 {
		t.Errorf("StdDev(%v) = %f, expected %f", values, result, expected)
	}
}

func TestSum(t *testing.T) {
	if got := Sum([]float64{1.5, 2.5, 3.0}); got != 7.0 {
		t.Errorf("Sum = %f, expected 7.0", got)
	}
	if got := Sum(nil); got != 0 {
		t.Errorf("Sum of empty slice = %f, expected 0", got)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		value    float64
		decimals int
		expected float64
	}{
		{3.14159, 2, 3.14},
		{3.14159, 4, 3.1416},
		{2.5, 0, 3.0},
		{-1.005, 1, -1.0},
	}

	for _, tt := range tests {
		result := Round(tt.value, tt.decimals)
		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("Round(%f, %d) = %f, expected %f", tt.value, tt.decimals, result, tt.expected)
		}
	}
}
