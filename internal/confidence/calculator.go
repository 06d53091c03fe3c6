// Package confidence scores SMS extraction outcomes.
package confidence

import (
	"math"
	"sync"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
)

// weightTolerance absorbs float rounding when checking weight sums.
const weightTolerance = 1e-9

// DefaultWeights returns the process-wide field weights.
func DefaultWeights() model.ConfidenceWeights {
	return model.ConfidenceWeights{
		Sender:    0.20,
		Amount:    0.30,
		Merchant:  0.20,
		Date:      0.10,
		Reference: 0.20,
	}
}

// weightedFields fixes the summation order so scores are reproducible.
var weightedFields = []model.Field{
	model.FieldSender,
	model.FieldAmount,
	model.FieldMerchant,
	model.FieldDate,
	model.FieldReference,
}

// Observation is the extraction outcome for a single field.
type Observation struct {
	Value     string
	Extracted bool
}

// Observed builds an Observation from an extractor's (value, ok) pair.
func Observed(value string, ok bool) Observation {
	return Observation{Value: value, Extracted: ok}
}

// Input collects everything the calculator scores.
type Input struct {
	// Bank is the matched bank rule, nil when the sender matched no bank.
	Bank      *model.BankRule
	Body      string
	Sender    Observation
	Amount    Observation
	Merchant  Observation
	Date      Observation
	Type      Observation
	Reference Observation
}

// Calculator combines per-field outcomes into an overall score.
type Calculator struct {
	warned   sync.Map // model.ConfidenceWeights -> struct{}
	defaults model.ConfidenceWeights
}

// New creates a calculator. A nil defaults uses DefaultWeights.
func New(defaults *model.ConfidenceWeights) *Calculator {
	c := &Calculator{defaults: DefaultWeights()}
	if defaults != nil {
		c.defaults = *defaults
	}
	return c
}

// Weights returns the weights applied for bank: its own when configured,
// otherwise the calculator defaults.
func (c *Calculator) Weights(bank *model.BankRule) model.ConfidenceWeights {
	if bank != nil && bank.ConfidenceWeights != nil {
		return *bank.ConfidenceWeights
	}
	return c.defaults
}

// Calculate scores in. Each extracted field contributes its full weight, a
// missing one contributes nothing, and the total is clamped to [0,1].
// Transaction type is reported in the breakdown but carries no weight.
func (c *Calculator) Calculate(in Input) model.ConfidenceScore {
	w := c.Weights(in.Bank)

	breakdown := map[model.Field]model.FieldConfidence{
		model.FieldSender:    score(in.Sender, w.Sender),
		model.FieldAmount:    score(in.Amount, w.Amount),
		model.FieldMerchant:  score(in.Merchant, w.Merchant),
		model.FieldDate:      score(in.Date, w.Date),
		model.FieldReference: score(in.Reference, w.Reference),
		model.FieldType:      score(in.Type, 0),
	}

	var total float64
	for _, f := range weightedFields {
		total += breakdown[f].Score
	}

	if total > 1+weightTolerance {
		c.warnOverweight(in.Bank, w)
	}

	return model.ConfidenceScore{
		Breakdown: breakdown,
		Overall:   clamp(total),
	}
}

func (c *Calculator) warnOverweight(bank *model.BankRule, w model.ConfidenceWeights) {
	if _, seen := c.warned.LoadOrStore(w, struct{}{}); seen {
		return
	}
	code := ""
	if bank != nil {
		code = bank.Code
	}
	common.LogWarn("Confidence weights sum above 1.0, clamping overall score", common.Fields{
		"bank":       code,
		"weight_sum": w.Sum(),
	})
}

func score(o Observation, weight float64) model.FieldConfidence {
	fc := model.FieldConfidence{Extracted: o.Extracted}
	if o.Extracted {
		v := o.Value
		fc.Value = &v
		fc.Score = weight
	}
	return fc
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
