package workzone

import (
	"gonum.org/v1/gonum/stat"
)

// Undefined metrics are nil pointers. They encode as JSON null and are
// skipped by every average in this package.

func ptr(v float64) *float64 { return &v }

// ratio returns num/den, or nil when den is zero.
func ratio(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	return ptr(float64(num) / float64(den))
}

// scale returns v*k, keeping v undefined.
func scale(v *float64, k float64) *float64 {
	if v == nil {
		return nil
	}
	return ptr(*v * k)
}

// defined drops undefined values.
func defined(values []*float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// MeanDefined is the arithmetic mean of the defined values, or nil when
// none are defined.
func MeanDefined(values []*float64) *float64 {
	xs := defined(values)
	if len(xs) == 0 {
		return nil
	}
	return ptr(stat.Mean(xs, nil))
}

// PopStdDevDefined is the population standard deviation of the defined
// values: nil with no samples, 0 with exactly one.
func PopStdDevDefined(values []*float64) *float64 {
	xs := defined(values)
	switch len(xs) {
	case 0:
		return nil
	case 1:
		return ptr(0)
	}
	_, std := stat.PopMeanStdDev(xs, nil)
	return ptr(std)
}
