package aggregate

import (
	"math"
	"testing"
)

func TestFormatFixed2(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{math.Copysign(0, -1), "0.00"},
		{10, "10.00"},
		{15, "15.00"},
		{0.125, "0.13"},
		{0.375, "0.38"},
		{2.5, "2.50"},
		{-0.125, "-0.13"},
		{1.005, "1.00"},
		{2.675, "2.67"},
		{1.235, "1.24"},
		{10.166666666666666, "10.17"},
		{-0.001, "-0.00"},
		{123456.789, "123456.79"},
		{999999999999999900000, "999999999999999868928.00"},
		{1e21, "1e+21"},
		{-1.5e21, "-1.5e+21"},
		{1.2345e30, "1.2345e+30"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
	}
	for _, tt := range tests {
		if got := formatFixed2(tt.in); got != tt.want {
			t.Errorf("formatFixed2(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
