// Package aggregate reduces many per-burst fixes for one stationary
// device into a single weighted-centroid estimate, trimming outliers
// and classifying error distribution against ground truth.
package aggregate

import (
	"errors"

	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/projection"
)

// MinSampleSize bounds the trimming loop: it runs only when there are
// more than MinSampleSize fixes, and then always leaves at least
// MinSampleSize of them at full weight.
const MinSampleSize = 10

// MotionThresholdDegrees is the ground-truth drift, in decimal degrees,
// beyond which a device is considered moving rather than stationary.
const MotionThresholdDegrees = 1e-4

// ErrNoFixes is returned when Aggregate is called with an empty fix
// list.
var ErrNoFixes = errors.New("aggregate: no fixes to aggregate")

// Result is the outcome of one aggregation run.
type Result struct {
	// Moving is true when ground-truth drift exceeded
	// MotionThresholdDegrees; Estimate and Weights are unset in that
	// case.
	Moving bool

	// Estimate is the weighted-centroid fix. Populated only when Moving
	// is false.
	Estimate burst.Estimate

	// Weights holds the final per-fix weight, in the same order as the
	// input fixes. Populated only when Moving is false.
	Weights []float64
}

// Aggregate reduces fixes to a single weighted-centroid estimate,
// trimming up to len(fixes)-MinSampleSize outliers. If fewer than
// MinSampleSize fixes are supplied, it reports the unweighted mean of
// all of them.
func Aggregate(fixes []burst.Estimate) (Result, error) {
	if len(fixes) == 0 {
		return Result{}, ErrNoFixes
	}

	if moving(fixes) {
		return Result{Moving: true}, nil
	}

	n := len(fixes)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = float64(n)
	}

	if n > MinSampleSize {
		lat, lng := weightedMean(fixes, weights)
		for w := 1.0; ; w++ {
			idx := farthestAtWeight(fixes, weights, float64(n), lat, lng)
			if idx == -1 {
				break
			}
			weights[idx] = w
			lat, lng = weightedMean(fixes, weights)
			if w+1 >= float64(n-MinSampleSize) {
				break
			}
		}
	}

	lat, lng := weightedMean(fixes, weights)
	return Result{
		Estimate: burst.Estimate{CalcLat: lat, CalcLng: lng},
		Weights:  weights,
	}, nil
}

func moving(fixes []burst.Estimate) bool {
	if !fixes[0].HasGroundTruth() {
		return false
	}
	firstLat, firstLng := *fixes[0].ActualLat, *fixes[0].ActualLng
	for _, f := range fixes[1:] {
		if !f.HasGroundTruth() {
			continue
		}
		if abs(*f.ActualLat-firstLat) > MotionThresholdDegrees || abs(*f.ActualLng-firstLng) > MotionThresholdDegrees {
			return true
		}
	}
	return false
}

func weightedMean(fixes []burst.Estimate, weights []float64) (lat, lng float64) {
	var sumW, sumLat, sumLng float64
	for i, f := range fixes {
		sumW += weights[i]
		sumLat += weights[i] * f.CalcLat
		sumLng += weights[i] * f.CalcLng
	}
	return sumLat / sumW, sumLng / sumW
}

// farthestAtWeight returns the index of the fix still at fullWeight that
// is farthest from (lat, lng), or -1 if none remain at fullWeight.
func farthestAtWeight(fixes []burst.Estimate, weights []float64, fullWeight, lat, lng float64) int {
	farthestIdx := -1
	farthestDist := -1.0
	for i, f := range fixes {
		if weights[i] != fullWeight {
			continue
		}
		d := projection.GreatCircleDistance(lat, lng, f.CalcLat, f.CalcLng)
		if d > farthestDist {
			farthestDist = d
			farthestIdx = i
		}
	}
	return farthestIdx
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ErrorBands counts fixes with ground truth by great-circle error
// distance from it, in five bands.
type ErrorBands struct {
	Within50Meters    int
	Within100Meters   int
	Within200Meters   int
	Within500Meters   int
	Beyond500Meters   int
	TotalClassified   int
}

// ClassifyErrors buckets every fix that carries ground truth into one of
// five great-circle-error bands. Fixes without ground truth are
// ignored.
func ClassifyErrors(fixes []burst.Estimate) ErrorBands {
	var bands ErrorBands
	for _, f := range fixes {
		if !f.HasGroundTruth() {
			continue
		}
		d := projection.GreatCircleDistance(f.CalcLat, f.CalcLng, *f.ActualLat, *f.ActualLng)
		bands.TotalClassified++
		switch {
		case d <= 50:
			bands.Within50Meters++
		case d <= 100:
			bands.Within100Meters++
		case d <= 200:
			bands.Within200Meters++
		case d <= 500:
			bands.Within500Meters++
		default:
			bands.Beyond500Meters++
		}
	}
	return bands
}
