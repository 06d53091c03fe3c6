package model

// Field identifies a scored extraction field.
type Field string

// Scored fields.
const (
	FieldSender    Field = "sender"
	FieldAmount    Field = "amount"
	FieldMerchant  Field = "merchant"
	FieldDate      Field = "date"
	FieldType      Field = "transaction_type"
	FieldReference Field = "reference_number"
)

// Confidence thresholds.
const (
	// AutoAcceptThreshold is the minimum overall score for auto-accept.
	AutoAcceptThreshold = 0.85
	// ManualReviewThreshold is the floor below which a parse needs manual review.
	ManualReviewThreshold = 0.50
)

// Band is the review band an overall score falls into.
type Band string

const (
	// BandAutoAccept means the parse can be accepted without review.
	BandAutoAccept Band = "auto_accept"
	// BandLightReview means the parse is safe to display but flagged.
	BandLightReview Band = "light_review"
	// BandManualReview means the parse must be reviewed by a person.
	BandManualReview Band = "manual_review"
)

// FieldConfidence is the per-field scoring outcome.
type FieldConfidence struct {
	Value     *string `json:"value,omitempty"`
	Score     float64 `json:"score"`
	Extracted bool    `json:"extracted"`
}

// ConfidenceScore is the trust signal computed for one parse.
type ConfidenceScore struct {
	Breakdown map[Field]FieldConfidence `json:"breakdown"`
	Overall   float64                   `json:"overall"`
}

// ShouldAutoAccept reports whether the overall score meets the auto-accept threshold.
func (c ConfidenceScore) ShouldAutoAccept() bool {
	return c.Overall >= AutoAcceptThreshold
}

// NeedsManualReview reports whether the overall score is below the review floor.
func (c ConfidenceScore) NeedsManualReview() bool {
	return c.Overall < ManualReviewThreshold
}

// Band classifies the overall score.
func (c ConfidenceScore) Band() Band {
	switch {
	case c.ShouldAutoAccept():
		return BandAutoAccept
	case c.NeedsManualReview():
		return BandManualReview
	default:
		return BandLightReview
	}
}
