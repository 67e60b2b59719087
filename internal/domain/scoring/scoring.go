// Package scoring compares biometric signatures and produces per-modality
// similarity scores in [0,1].
package scoring

import (
	"math"

	"github.com/okian/biomatch/internal/domain/model"
)

// Default comparison constants.
const (
	cosineEpsilon = 1e-7

	defaultEyeBoostAbove  = 0.95
	defaultEyeBoostFactor = 1.05
	defaultDescWeight     = 0.7
	defaultHistWeight     = 0.3

	// histogramFlatEpsilon mirrors DBL_EPSILON; below it the variance product
	// of two histograms is treated as zero.
	histogramFlatEpsilon = 2.220446049250313e-16
)

// Comparator scores a probe signature against an enrolled one. Both methods
// are total: mismatched or empty vectors are zero-padded, never rejected.
type Comparator interface {
	CompareEye(a, b model.EyeSignature) float64
	CompareFingerprint(a, b model.FingerprintSignature) float64
}

// Option applies a configuration option to the SignatureComparator.
type Option func(*SignatureComparator)

// WithEyeBoost sets the score above which eye matches are boosted and the
// multiplicative boost factor.
func WithEyeBoost(above, factor float64) Option {
	return func(c *SignatureComparator) {
		if above > 0 && above <= 1 && factor >= 1 {
			c.boostAbove = above
			c.boostFactor = factor
		}
	}
}

// WithFingerprintWeights sets the descriptor and texture weights. They must
// be non-negative and sum to 1.
func WithFingerprintWeights(desc, hist float64) Option {
	return func(c *SignatureComparator) {
		if desc >= 0 && hist >= 0 && math.Abs(desc+hist-1) < 1e-9 {
			c.descWeight = desc
			c.histWeight = hist
		}
	}
}

// SignatureComparator implements Comparator with cosine similarity on the
// feature vectors and histogram correlation on fingerprint texture.
type SignatureComparator struct {
	boostAbove  float64
	boostFactor float64
	descWeight  float64
	histWeight  float64
}

// NewSignatureComparator creates a comparator with configuration options.
func NewSignatureComparator(opts ...Option) *SignatureComparator {
	c := &SignatureComparator{
		boostAbove:  defaultEyeBoostAbove,
		boostFactor: defaultEyeBoostFactor,
		descWeight:  defaultDescWeight,
		histWeight:  defaultHistWeight,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompareEye maps the cosine similarity of the eye vectors to [0,1] and
// boosts near-exact matches.
func (c *SignatureComparator) CompareEye(a, b model.EyeSignature) float64 {
	score := unit(Cosine(a.FeatureVector, b.FeatureVector))
	if score > c.boostAbove {
		score *= c.boostFactor
	}
	return clamp(score)
}

// CompareFingerprint blends descriptor similarity with the texture histogram
// correlation. Negative correlation contributes nothing.
func (c *SignatureComparator) CompareFingerprint(a, b model.FingerprintSignature) float64 {
	desc := unit(Cosine(a.FeatureVector, b.FeatureVector))
	corr := math.Max(0, HistogramCorrelation(a.TextureHistogram, b.TextureHistogram))
	return clamp(desc*c.descWeight + corr*c.histWeight)
}

// PadTo returns copies of a and b zero-padded to the longer of the two.
func PadTo[T ~uint8 | ~float64](a, b []T) ([]T, []T) {
	n := max(len(a), len(b))
	pa, pb := make([]T, n), make([]T, n)
	copy(pa, a)
	copy(pb, b)
	return pa, pb
}

// Cosine returns dot(a,b) / (|a||b| + 1e-7) after zero-padding.
func Cosine[T ~uint8 | ~float64](a, b []T) float64 {
	a, b = PadTo(a, b)
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + cosineEpsilon)
}

// HistogramCorrelation is the Pearson correlation of two histograms, the
// correlation measure used by OpenCV compareHist. Flat histograms (variance
// product near zero) correlate as 1. The result lies in [-1,1].
func HistogramCorrelation(a, b []float64) float64 {
	a, b = PadTo(a, b)
	n := float64(len(a))
	if n == 0 {
		return 1
	}
	var sa, sb float64
	for i := range a {
		sa += a[i]
		sb += b[i]
	}
	ma, mb := sa/n, sb/n

	var num, va, vb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		num += da * db
		va += da * da
		vb += db * db
	}
	denom := va * vb
	if math.Abs(denom) <= histogramFlatEpsilon {
		return 1
	}
	corr := num / math.Sqrt(denom)
	if math.IsNaN(corr) {
		return 0
	}
	return math.Max(-1, math.Min(1, corr))
}

func unit(sim float64) float64 {
	return (sim + 1) / 2
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
