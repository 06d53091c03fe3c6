package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// breakdownOrder is the display order of confidence fields.
var breakdownOrder = []model.Field{
	model.FieldSender,
	model.FieldAmount,
	model.FieldMerchant,
	model.FieldDate,
	model.FieldType,
	model.FieldReference,
}

// FormatBand renders a review band in its color.
func FormatBand(band model.Band) string {
	style, ok := bandStyles[band]
	if !ok {
		return string(band)
	}
	return style.Render(bandLabels[band])
}

// FormatScore renders an overall confidence as a percentage colored by band.
func FormatScore(score model.ConfidenceScore) string {
	style := bandStyles[score.Band()]
	return style.Render(fmt.Sprintf("%3.0f%%", score.Overall*100))
}

// FormatAmount renders an amount with a sign for its direction.
func FormatAmount(amount decimal.Decimal, isDebit bool) string {
	if isDebit {
		return DebitStyle.Render("-" + amount.StringFixed(2))
	}
	return CreditStyle.Render("+" + amount.StringFixed(2))
}

// FormatBreakdown renders the per-field confidence table.
func FormatBreakdown(score model.ConfidenceScore) string {
	var b strings.Builder
	for _, field := range breakdownOrder {
		fc, ok := score.Breakdown[field]
		if !ok {
			continue
		}

		mark := SuccessStyle.Render(SuccessIcon)
		if !fc.Extracted {
			mark = ErrorStyle.Render(ErrorIcon)
		}
		value := SubtleStyle.Render("-")
		if fc.Value != nil {
			value = *fc.Value
		}
		fmt.Fprintf(&b, "%s %-18s %.2f  %s\n", mark, field, fc.Score, value)
	}
	fmt.Fprintf(&b, "%s %s", BoldStyle.Render("Overall:"), FormatScore(score))
	return b.String()
}

// FormatTransaction renders the details of a parsed transaction.
func FormatTransaction(txn *model.ParsedTransaction) string {
	lines := []string{
		fmt.Sprintf("%s %s", BoldStyle.Render("Bank:"), txn.BankName),
		fmt.Sprintf("%s %s", BoldStyle.Render("Amount:"), FormatAmount(txn.Amount, txn.IsDebit)),
		fmt.Sprintf("%s %s", BoldStyle.Render("Merchant:"), txn.NormalizedMerchant),
		fmt.Sprintf("%s %s", BoldStyle.Render("Date:"), txn.Date.Format("2006-01-02")),
		fmt.Sprintf("%s %s", BoldStyle.Render("Type:"), txn.Type),
		fmt.Sprintf("%s %s", BoldStyle.Render("Reference:"), txn.ReferenceNumber),
		fmt.Sprintf("%s %s %s", BoldStyle.Render("Confidence:"), FormatScore(txn.Confidence), FormatBand(txn.Confidence.Band())),
	}
	return strings.Join(lines, "\n")
}

// FormatCategory renders a categorization result with its emoji.
func FormatCategory(result model.CategorizationResult) string {
	name := result.CategoryName
	if result.Emoji != "" {
		name = result.Emoji + " " + name
	}
	if result.Color != "" {
		name = lipgloss.NewStyle().Foreground(lipgloss.Color(result.Color)).Render(name)
	}
	if result.IsFallback {
		name += SubtleStyle.Render(" (fallback)")
	}
	return name
}
