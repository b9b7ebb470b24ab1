// Package features turns a device-state snapshot into the facial expression
// flag vector and the scaled performance metric vector. The underlying
// classifiers and metric models live on the device; this package only maps
// their outputs onto the stream layouts in package catalog.
package features

import (
	"math"

	"github.com/banshee-data/biostream/internal/catalog"
)

// FaceAction is the device's classification of an upper- or lower-face
// expression.
type FaceAction int

const (
	NoAction FaceAction = iota
	ActionSurprise
	ActionFrown
	ActionClench
	ActionSmile
	ActionOther
)

// State is the subset of a device-state snapshot needed to derive features.
type State interface {
	IsBlink() bool
	IsLeftWink() bool
	IsRightWink() bool
	// UpperFaceAction returns the upper-face classification and its power.
	UpperFaceAction() (FaceAction, float64)
	// LowerFaceAction returns the lower-face classification and its power.
	LowerFaceAction() (FaceAction, float64)
	// MetricParams returns the device-supplied raw score and its
	// normalisation bounds.
	MetricParams(m catalog.Metric) (raw, min, max float64)
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Expressions evaluates the facial expression flags in catalog order. Neutral
// is computed last and is set only when every other slot is zero.
func Expressions(s State) []float64 {
	v := make([]float64, catalog.FeatureCount)

	upper, upperPower := s.UpperFaceAction()
	lower, lowerPower := s.LowerFaceAction()

	v[catalog.Blink] = flag(s.IsBlink())
	v[catalog.WinkLeft] = flag(s.IsLeftWink())
	v[catalog.WinkRight] = flag(s.IsRightWink())
	v[catalog.Surprise] = flag(upperPower > 0 && upper == ActionSurprise)
	v[catalog.Frown] = flag(upperPower > 0 && upper == ActionFrown)
	v[catalog.Clench] = flag(lowerPower > 0 && lower == ActionClench)
	v[catalog.Smile] = flag(lowerPower > 0 && lower == ActionSmile)

	neutral := true
	for _, x := range v[:catalog.Neutral] {
		if x > 0 {
			neutral = false
			break
		}
	}
	v[catalog.Neutral] = flag(neutral)
	return v
}

// Scale maps raw into [0,1] using the device bounds. It returns NaN when the
// bounds are equal.
func Scale(raw, min, max float64) float64 {
	switch {
	case min == max:
		return math.NaN()
	case raw < min:
		return 0
	case raw > max:
		return 1
	default:
		return (raw - min) / (max - min)
	}
}

// Metrics returns the flattened (raw, min, max, scaled) quadruplets in
// catalog metric order.
func Metrics(s State) []float64 {
	v := make([]float64, catalog.MetricCount*catalog.MetricPartCount)
	for i := 0; i < catalog.MetricCount; i++ {
		m := catalog.Metric(i)
		raw, lo, hi := s.MetricParams(m)
		v[catalog.Column(m, catalog.Raw)] = raw
		v[catalog.Column(m, catalog.Min)] = lo
		v[catalog.Column(m, catalog.Max)] = hi
		v[catalog.Column(m, catalog.Scaled)] = Scale(raw, lo, hi)
	}
	return v
}

// Derive runs both derivations against one snapshot.
func Derive(s State) (expressions, metrics []float64) {
	return Expressions(s), Metrics(s)
}
