package model

// Fixed signature dimensions.
const (
	// EyeContourPoints is the number of contour points sampled per eye.
	EyeContourPoints = 16
	// EyeGeometryLen is both eyes' contour distances plus the inter-ocular ratio.
	EyeGeometryLen = 2*EyeContourPoints + 1
	// IrisHistogramBins is the number of bins per color channel.
	IrisHistogramBins = 8
	// EyeColorLen is the B, G and R iris histograms concatenated.
	EyeColorLen = Channels * IrisHistogramBins
	// EyeFeatureLen is the full eye feature vector length.
	EyeFeatureLen = EyeGeometryLen + EyeColorLen

	// FingerprintFeatureLen is the flattened descriptor length after pad/truncate.
	FingerprintFeatureLen = 1000
	// FingerprintHistogramLen is the number of grayscale intensity bins.
	FingerprintHistogramLen = 256
	// DescriptorSize is the byte length of one binary keypoint descriptor.
	DescriptorSize = 32
)

// EyeCenters holds the iris centers, kept for diagnostics only.
type EyeCenters struct {
	LeftCenter  [2]float64 `json:"left_center"`
	RightCenter [2]float64 `json:"right_center"`
}

// EyeSignature is the geometric + iris color signature of one eye capture.
type EyeSignature struct {
	FeatureVector []float64  `json:"feature_vector"`
	Landmarks     EyeCenters `json:"landmarks"`
	QualityScore  float64    `json:"quality_score"`
}

// FingerprintSignature is the descriptor + texture signature of one fingerprint capture.
type FingerprintSignature struct {
	FeatureVector    []uint8   `json:"feature_vector"`
	TextureHistogram []float64 `json:"texture_histogram"`
	KeypointsCount   int       `json:"keypoints_count"`
}
