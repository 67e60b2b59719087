// Package decision turns per-modality scores into a match verdict.
//
// Every function here is pure: the verdict depends only on the two scores, the
// base threshold supplied by the caller and the Policy values.
package decision

import (
	"fmt"
	"math"

	defaults "github.com/mcuadros/go-defaults"
	"github.com/okian/biomatch/internal/domain/model"
)

// Rules that can accept a match.
const (
	RuleNone        = ""
	RuleBaseline    = "baseline"
	RuleStrongEye   = "strong_eye"
	RuleStrongThumb = "strong_thumb"
)

// Policy holds the fusion constants. The adaptive override bounds are
// hand-tuned and kept configurable for recalibration.
type Policy struct {
	// ThumbOffset lowers the thumb bound relative to the base threshold.
	ThumbOffset float64 `toml:"thumb_offset" default:"0.05"`

	StrongEye          float64 `toml:"strong_eye" default:"0.90"`
	StrongEyeMinThumb  float64 `toml:"strong_eye_min_thumb" default:"0.60"`
	StrongThumb        float64 `toml:"strong_thumb" default:"0.90"`
	StrongThumbMinEye  float64 `toml:"strong_thumb_min_eye" default:"0.65"`
	EyeWeight          float64 `toml:"eye_weight" default:"0.6"`
	ThumbWeight        float64 `toml:"thumb_weight" default:"0.4"`
	HighConfidenceOver float64 `toml:"high_confidence_over" default:"0.85"`

	// FailureFloor is the total above which a rejected attempt is still
	// worth recording.
	FailureFloor float64 `toml:"failure_floor" default:"0.4"`
}

// Verdict is the outcome of Decide.
type Verdict struct {
	Matched    bool
	Rule       string
	Total      float64
	Confidence string
}

// DefaultPolicy returns the policy with its built-in constants.
func DefaultPolicy() Policy {
	var p Policy
	defaults.SetDefaults(&p)
	return p
}

// Validate checks that every bound lies in [0,1] and the weights sum to 1.
func (p Policy) Validate() error {
	fields := map[string]float64{
		"thumb_offset":         p.ThumbOffset,
		"strong_eye":           p.StrongEye,
		"strong_eye_min_thumb": p.StrongEyeMinThumb,
		"strong_thumb":         p.StrongThumb,
		"strong_thumb_min_eye": p.StrongThumbMinEye,
		"eye_weight":           p.EyeWeight,
		"thumb_weight":         p.ThumbWeight,
		"high_confidence_over": p.HighConfidenceOver,
		"failure_floor":        p.FailureFloor,
	}
	for name, v := range fields {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v must be within [0,1]", ErrInvalidPolicy, name, v)
		}
	}
	if math.Abs(p.EyeWeight+p.ThumbWeight-1) > 1e-9 {
		return fmt.Errorf("%w: weights must sum to 1, got %v", ErrInvalidPolicy, p.EyeWeight+p.ThumbWeight)
	}
	return nil
}

// Rule returns the first rule that accepts the scores, or RuleNone.
func (p Policy) Rule(eye, thumb, base float64) string {
	switch {
	case eye >= base && thumb >= base-p.ThumbOffset:
		return RuleBaseline
	case eye > p.StrongEye && thumb > p.StrongEyeMinThumb:
		return RuleStrongEye
	case thumb > p.StrongThumb && eye > p.StrongThumbMinEye:
		return RuleStrongThumb
	default:
		return RuleNone
	}
}

// IsMatch reports whether the baseline rule or an adaptive override accepts.
func (p Policy) IsMatch(eye, thumb, base float64) bool {
	return p.Rule(eye, thumb, base) != RuleNone
}

// Fuse returns the weighted total score.
func (p Policy) Fuse(eye, thumb float64) float64 {
	return eye*p.EyeWeight + thumb*p.ThumbWeight
}

// Confidence labels a matched total score.
func (p Policy) Confidence(total float64) string {
	if total > p.HighConfidenceOver {
		return model.ConfidenceHigh
	}
	return model.ConfidenceMedium
}

// ShouldRecordFailure reports whether a rejected attempt is recorded.
func (p Policy) ShouldRecordFailure(total float64) bool {
	return total > p.FailureFloor
}

// Decide applies every rule. Confidence is only set on a match.
func (p Policy) Decide(eye, thumb, base float64) Verdict {
	v := Verdict{
		Rule:  p.Rule(eye, thumb, base),
		Total: p.Fuse(eye, thumb),
	}
	v.Matched = v.Rule != RuleNone
	if v.Matched {
		v.Confidence = p.Confidence(v.Total)
	}
	return v
}
