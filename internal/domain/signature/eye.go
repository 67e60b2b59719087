package signature

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/biomatch/internal/domain/model"
)

// Canonical face-mesh landmark ids. The first iris id of each cluster is the
// iris center, the second lies on the iris edge.
var (
	leftIris     = [5]int{468, 469, 470, 471, 472}
	rightIris    = [5]int{473, 474, 475, 476, 477}
	leftContour  = [model.EyeContourPoints]int{33, 246, 161, 160, 159, 158, 157, 173, 133, 155, 154, 153, 145, 144, 163, 7}
	rightContour = [model.EyeContourPoints]int{263, 466, 388, 387, 386, 385, 384, 398, 362, 382, 381, 380, 374, 373, 390, 249}
)

const (
	leftOuterCorner  = 33
	rightOuterCorner = 263

	// RequiredLandmarks is the size of a refined face mesh including irises.
	RequiredLandmarks = 478

	minIrisRadius = 5
	binWidth      = 256 / model.IrisHistogramBins

	// EyeQualityScore is reported for every successful extraction; the
	// provider only returns landmarks when it is confident.
	EyeQualityScore = 0.95
)

// EyeBuilder turns a face capture into an EyeSignature.
type EyeBuilder struct {
	provider LandmarkProvider
}

// NewEyeBuilder creates an EyeBuilder backed by provider.
func NewEyeBuilder(provider LandmarkProvider) *EyeBuilder {
	return &EyeBuilder{provider: provider}
}

// Build extracts landmarks from img and derives its eye signature.
func (b *EyeBuilder) Build(ctx context.Context, img model.RawImage) (model.EyeSignature, error) {
	if img.Empty() {
		return model.EyeSignature{}, ErrEmptyImage
	}
	lms, found, err := b.provider.Landmarks(ctx, img)
	if err != nil {
		return model.EyeSignature{}, fmt.Errorf("%w: landmarks: %w", ErrProvider, err)
	}
	if !found || len(lms) == 0 {
		return model.EyeSignature{}, ErrNoFaceDetected
	}
	return EyeFromLandmarks(img, lms)
}

// EyeFromLandmarks builds the 57 element eye feature vector: 32 contour
// distances and the inter-ocular ratio (L2-normalized together), followed by
// the left iris B, G and R histograms.
func EyeFromLandmarks(img model.RawImage, lms model.LandmarkSet) (model.EyeSignature, error) {
	if len(lms) < RequiredLandmarks {
		return model.EyeSignature{}, fmt.Errorf("%w: got %d of %d points", ErrIncompleteLandmarks, len(lms), RequiredLandmarks)
	}

	leftCenter := xy(lms[leftIris[0]])
	rightCenter := xy(lms[rightIris[0]])

	geometry := make([]float64, 0, model.EyeFeatureLen)
	for _, idx := range leftContour {
		geometry = append(geometry, planar(xy(lms[idx]), leftCenter))
	}
	for _, idx := range rightContour {
		geometry = append(geometry, planar(xy(lms[idx]), rightCenter))
	}

	faceWidth := planar(xy(lms[leftOuterCorner]), xy(lms[rightOuterCorner]))
	interOcular := planar(leftCenter, rightCenter)
	ratio := 0.0
	if faceWidth > 0 {
		ratio = interOcular / faceWidth
	}
	geometry = append(geometry, ratio)
	L2Normalize(geometry)

	features := append(geometry, irisHistogram(img, lms[leftIris[0]], lms[leftIris[1]])...)

	return model.EyeSignature{
		FeatureVector: features,
		Landmarks: model.EyeCenters{
			LeftCenter:  leftCenter,
			RightCenter: rightCenter,
		},
		QualityScore: EyeQualityScore,
	}, nil
}

// irisHistogram crops a square around the iris center and returns three
// 8-bin channel histograms, each L2-normalized. An empty crop yields zeros.
func irisHistogram(img model.RawImage, center, edge model.Point) []float64 {
	hist := make([]float64, model.EyeColorLen)
	if img.Empty() {
		return hist
	}

	w, h := float64(img.Width), float64(img.Height)
	cx, cy := int(center.X*w), int(center.Y*h)
	dx, dy := (center.X-edge.X)*w, (center.Y-edge.Y)*h
	radius := max(minIrisRadius, int(math.Sqrt(dx*dx+dy*dy)))

	x1, x2 := max(0, cx-radius), min(img.Width, cx+radius)
	y1, y2 := max(0, cy-radius), min(img.Height, cy+radius)
	if x2 <= x1 || y2 <= y1 {
		return hist
	}

	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			b, g, r := img.BGR(x, y)
			hist[int(b)/binWidth]++
			hist[model.IrisHistogramBins+int(g)/binWidth]++
			hist[2*model.IrisHistogramBins+int(r)/binWidth]++
		}
	}
	for c := 0; c < model.Channels; c++ {
		L2Normalize(hist[c*model.IrisHistogramBins : (c+1)*model.IrisHistogramBins])
	}
	return hist
}

func xy(p model.Point) [2]float64 {
	return [2]float64{p.X, p.Y}
}
