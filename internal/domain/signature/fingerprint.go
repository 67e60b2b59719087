package signature

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/biomatch/internal/domain/model"
)

const (
	// DefaultMaxKeypoints bounds the keypoints requested from the provider.
	DefaultMaxKeypoints = 500
	// MinKeypoints is the count below which real descriptors are not trusted.
	MinKeypoints = 5

	histogramEpsilon = 1e-7
)

// FingerprintOption applies a configuration option to the FingerprintBuilder.
type FingerprintOption func(*FingerprintBuilder)

// WithMaxKeypoints overrides the number of keypoints requested.
func WithMaxKeypoints(n int) FingerprintOption {
	return func(b *FingerprintBuilder) {
		if n > 0 {
			b.maxKeypoints = n
		}
	}
}

// FingerprintBuilder turns a fingerprint capture into a FingerprintSignature.
type FingerprintBuilder struct {
	provider     KeypointProvider
	maxKeypoints int
}

// NewFingerprintBuilder creates a FingerprintBuilder backed by provider.
func NewFingerprintBuilder(provider KeypointProvider, opts ...FingerprintOption) *FingerprintBuilder {
	b := &FingerprintBuilder{
		provider:     provider,
		maxKeypoints: DefaultMaxKeypoints,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build normalizes img, asks the provider for keypoints and derives the signature.
func (b *FingerprintBuilder) Build(ctx context.Context, img model.RawImage) (model.FingerprintSignature, error) {
	if img.Empty() {
		return model.FingerprintSignature{}, ErrEmptyImage
	}
	gray := NormalizeMinMax(Grayscale(img))
	kps, descriptors, err := b.provider.Keypoints(ctx, gray, b.maxKeypoints)
	if err != nil {
		return model.FingerprintSignature{}, fmt.Errorf("%w: keypoints: %w", ErrProvider, err)
	}
	return FingerprintFromKeypoints(gray, kps, descriptors)
}

// FingerprintFromKeypoints flattens descriptors into the fixed 1000 byte
// vector and computes the normalized 256 bin texture histogram of gray.
//
// With no keypoints the capture is rejected. When descriptors are missing,
// or there are fewer than MinKeypoints keypoints, zero descriptors are
// synthesized for each keypoint instead of failing.
func FingerprintFromKeypoints(gray model.GrayImage, kps []model.Keypoint, descriptors [][]byte) (model.FingerprintSignature, error) {
	if len(descriptors) == 0 || len(kps) < MinKeypoints {
		if len(kps) == 0 {
			return model.FingerprintSignature{}, ErrPoorFingerprintQuality
		}
		descriptors = make([][]byte, len(kps))
		for i := range descriptors {
			descriptors[i] = make([]byte, model.DescriptorSize)
		}
	}

	flat := make([]uint8, 0, model.FingerprintFeatureLen)
	for _, d := range descriptors {
		if len(flat)+len(d) >= model.FingerprintFeatureLen {
			flat = append(flat, d[:model.FingerprintFeatureLen-len(flat)]...)
			break
		}
		flat = append(flat, d...)
	}

	return model.FingerprintSignature{
		FeatureVector:    PadBytes(flat, model.FingerprintFeatureLen),
		TextureHistogram: IntensityHistogram(gray),
		KeypointsCount:   len(kps),
	}, nil
}

// Grayscale converts a BGR image with the ITU-R BT.601 luma weights using
// 14-bit fixed point arithmetic.
func Grayscale(img model.RawImage) model.GrayImage {
	const (
		shift = 14
		wr    = 4899  // 0.299
		wg    = 9617  // 0.587
		wb    = 1868  // 0.114
		half  = 1 << (shift - 1)
	)
	out := model.GrayImage{Width: img.Width, Height: img.Height, Pix: make([]uint8, img.Width*img.Height)}
	for i := range out.Pix {
		b, g, r := int(img.Pix[i*3]), int(img.Pix[i*3+1]), int(img.Pix[i*3+2])
		out.Pix[i] = uint8((r*wr + g*wg + b*wb + half) >> shift)
	}
	return out
}

// NormalizeMinMax linearly rescales intensities to span [0,255]. A constant
// image maps to all zeros.
func NormalizeMinMax(img model.GrayImage) model.GrayImage {
	out := model.GrayImage{Width: img.Width, Height: img.Height, Pix: make([]uint8, len(img.Pix))}
	if len(img.Pix) == 0 {
		return out
	}
	lo, hi := img.Pix[0], img.Pix[0]
	for _, v := range img.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo {
		return out
	}
	// Rounds half to even on (v-lo)*(255/(hi-lo)), the OpenCV NORM_MINMAX
	// result; 100 in [50,150] lands on 127.
	scale := 255.0 / float64(hi-lo)
	for i, v := range img.Pix {
		out.Pix[i] = uint8(math.RoundToEven(float64(v-lo) * scale))
	}
	return out
}

// IntensityHistogram returns a 256 bin histogram normalized to sum 1.
func IntensityHistogram(img model.GrayImage) []float64 {
	hist := make([]float64, model.FingerprintHistogramLen)
	for _, v := range img.Pix {
		hist[v]++
	}
	sum := float64(len(img.Pix)) + histogramEpsilon
	for i := range hist {
		hist[i] /= sum
	}
	return hist
}
