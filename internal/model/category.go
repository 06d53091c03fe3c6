package model

import "time"

// Categorization confidences.
const (
	ConfidenceRuleMatch    = 100
	ConfidenceBuiltinMatch = 80
	ConfidenceFallback     = 50
)

// CategorizationResult is the outcome of categorizing a merchant name.
type CategorizationResult struct {
	MatchedPattern *string `json:"matchedPattern,omitempty"`
	CategoryName   string  `json:"categoryName"`
	Emoji          string  `json:"emoji"`
	Color          string  `json:"color"`
	Confidence     int     `json:"confidence"`
	IsFallback     bool    `json:"isFallback"`
}

// MappingSource indicates how a merchant mapping was created.
type MappingSource string

const (
	// MappingSourceManual indicates the mapping was created via the mappings command.
	MappingSourceManual MappingSource = "MANUAL"
	// MappingSourceReview indicates the mapping was learned while reviewing transactions.
	MappingSourceReview MappingSource = "REVIEW"
)

// MerchantMapping is a previously seen merchant normalization and category choice.
type MerchantMapping struct {
	UpdatedAt      time.Time
	Alias          string // Normalized form as seen in messages
	NormalizedName string // Canonical normalized merchant
	DisplayName    string
	Category       string
	Source         MappingSource
	UseCount       int
}
