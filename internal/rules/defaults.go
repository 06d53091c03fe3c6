package rules

import "github.com/Veraticus/spice-sms/internal/model"

// DefaultFallbackPatterns returns the generic extraction patterns compiled into the
// binary. They back degraded mode when no rule document can be loaded.
func DefaultFallbackPatterns() model.FallbackPatterns {
	return model.FallbackPatterns{
		TransactionPatterns: model.TransactionPatterns{
			Amount: []string{
				`(?i)(?:Rs\.?|INR|₹)\s*([\d,]+(?:\.\d{1,2})?)`,
				`(?i)\b(?:amount|amt)\s*(?:of)?\s*:?\s*([\d,]+(?:\.\d{1,2})?)`,
			},
			Merchant: []string{
				`(?i)\b(?:at|towards)\s+([A-Za-z0-9][A-Za-z0-9 &'.\-]*?)(?:\s+on\b|\s+via\b|\s+ref\b|[.,;]|$)`,
				`(?i)\bto\s+([A-Za-z][A-Za-z0-9 &'.\-]*?)(?:\s+on\b|\s+via\b|\s+ref\b|[.,;]|$)`,
				`(?i)\bfrom\s+([A-Za-z][A-Za-z0-9 &'.\-]*?)(?:\s+on\b|\s+ref\b|[.,;]|$)`,
			},
			Date: []string{
				`(?:^|\D)(\d{4}-\d{2}-\d{2})(?:\D|$)`,
				`(?:^|\D)(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})(?:\D|$)`,
				`(?i)(?:^|\D)(\d{1,2}[- ]?(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[- ,]*\d{2,4})(?:\D|$)`,
			},
			TransactionType: []string{
				`(?i)\b(debited|credited|spent|withdrawn|received|deposited|refunded)\b`,
			},
			ReferenceNumber: []string{
				`(?i)\b(?:Ref(?:erence)?|UTR|RRN|Txn\s*(?:ID|No)|Transaction\s*(?:ID|No))\.?\s*(?:No\.?|Number|ID)?\s*[:#]?\s*([A-Za-z0-9]{6,})`,
			},
		},
		DebitKeywords:  []string{"debited", "spent", "withdrawn", "paid", "purchase", "sent", "debit"},
		CreditKeywords: []string{"credited", "received", "deposited", "refund", "credit"},
	}
}

// FallbackDocument is the rule document used in degraded mode: no bank rules,
// built-in fallback patterns only.
func FallbackDocument() model.RuleDocument {
	return model.RuleDocument{
		Version:          model.SupportedRuleVersions[len(model.SupportedRuleVersions)-1],
		FallbackPatterns: DefaultFallbackPatterns(),
	}
}
