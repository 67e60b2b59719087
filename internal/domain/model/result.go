package model

// Confidence labels attached to accepted matches.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
)

// MatchResult is produced once per verification call.
type MatchResult struct {
	EyeScore       float64 `json:"eye_score"`
	ThumbScore     float64 `json:"thumb_score"`
	TotalScore     float64 `json:"total_score"`
	Matched        bool    `json:"matched"`
	BestIdentityID *int64  `json:"best_identity_id,omitempty"`
	Confidence     string  `json:"confidence,omitempty"`
	// Rule names the decision rule that accepted the match, if any.
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message,omitempty"`
	// Compared and Skipped count identities scanned and identities whose
	// templates could not be decoded.
	Compared int `json:"compared"`
	Skipped  int `json:"skipped"`
	// Err carries an extraction failure or a cancelled scan. Extraction
	// failures stay data; cancellation is also returned by Service.Verify.
	Err error `json:"-"`
}
