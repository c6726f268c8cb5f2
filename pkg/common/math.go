package common

import "math"

func MaxInt(vals ...int) int {
	if len(vals) == 0 {
		return 0
	}

	max := vals[0]
	for i := 1; i < len(vals); i++ {
		if vals[i] > max {
			max = vals[i]
		}
	}
	return max
}

func MinInt(vals ...int) int {
	if len(vals) == 0 {
		return 0
	}

	min := vals[0]
	for i := 1; i < len(vals); i++ {
		if vals[i] < min {
			min = vals[i]
		}
	}
	return min
}

// BoundFloat clamps v to [min, max]. A max of NaN means no upper bound.
func BoundFloat(v float64, min float64, max float64) float64 {
	v = math.Max(v, min)
	if !math.IsNaN(max) {
		v = math.Min(v, max)
	}
	return v
}

// BoundInt rounds v and clamps the result to be >= min
func BoundInt(v float64, min int) int {
	return int(math.Round(BoundFloat(v, float64(min), math.NaN())))
}

func IntPtr(i int) *int {
	return &i
}
