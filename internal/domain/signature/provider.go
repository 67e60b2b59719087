// Package signature derives fixed-length biometric signatures from captures.
//
// Landmark and keypoint detection are external capabilities consumed through
// LandmarkProvider and KeypointProvider. Both calls are treated as opaque and
// possibly blocking.
package signature

import (
	"context"

	"github.com/okian/biomatch/internal/domain/model"
)

// LandmarkProvider returns normalized face-mesh landmarks for an image.
// found is false when no face is present.
type LandmarkProvider interface {
	Landmarks(ctx context.Context, img model.RawImage) (lms model.LandmarkSet, found bool, err error)
}

// KeypointProvider detects up to maxCount keypoints with binary descriptors.
// descriptors is nil when the detector could not compute them.
type KeypointProvider interface {
	Keypoints(ctx context.Context, img model.GrayImage, maxCount int) (kps []model.Keypoint, descriptors [][]byte, err error)
}
