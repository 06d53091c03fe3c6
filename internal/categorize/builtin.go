package categorize

import "github.com/Veraticus/spice-sms/internal/model"

// builtinCategory is a hardcoded keyword rule used when no rule document loads.
type builtinCategory struct {
	name     string
	emoji    string
	color    string
	keywords []string
}

// builtinCategories is checked top to bottom; keywords match as substrings of
// the normalized merchant.
var builtinCategories = []builtinCategory{
	{name: "Entertainment", emoji: "🎬", color: "#9C27B0", keywords: []string{"NETFLIX", "SPOTIFY", "HOTSTAR", "BOOKMYSHOW", "PRIME VIDEO"}},
	{name: "Food & Dining", emoji: "🍽️", color: "#FF5722", keywords: []string{"SWIGGY", "ZOMATO", "RESTAURANT", "CAFE", "DOMINOS", "MCDONALD"}},
	{name: "Groceries", emoji: "🛒", color: "#4CAF50", keywords: []string{"BIGBASKET", "BLINKIT", "DMART", "ZEPTO", "GROCER"}},
	{name: "Transportation", emoji: "🚗", color: "#2196F3", keywords: []string{"UBER", "OLA", "RAPIDO", "PETROL", "FUEL", "IRCTC"}},
	{name: "Shopping", emoji: "🛍️", color: "#E91E63", keywords: []string{"AMAZON", "FLIPKART", "MYNTRA", "AJIO"}},
	{name: "Utilities", emoji: "💡", color: "#FFC107", keywords: []string{"ELECTRICITY", "AIRTEL", "JIO", "BROADBAND", "GAS"}},
	{name: "Healthcare", emoji: "🏥", color: "#00BCD4", keywords: []string{"PHARMACY", "APOLLO", "HOSPITAL", "CLINIC"}},
}

// builtinFallback is used when neither the rule document nor the keyword table applies.
var builtinFallback = model.MerchantCategoryRule{
	Name:  "Other",
	Emoji: "📦",
	Color: "#9E9E9E",
}
