package classification

import "github.com/Veraticus/spendlens/internal/model"

// Category names used by the default rules and the challenge evaluator.
const (
	CategoryGroceries     = "Groceries"
	CategoryDining        = "Dining"
	CategoryTransport     = "Transport"
	CategoryShopping      = "Shopping"
	CategoryEntertainment = "Entertainment"
	CategorySubscriptions = "Subscriptions"
	CategoryBills         = "Bills"
	CategoryIncome        = "Income"
	CategoryTransfers     = "Transfers"
	CategoryRefunds       = "Refunds"
	CategoryCash          = "Cash"
	CategoryHealth        = "Health"
)

// DefaultRules returns the system-wide merchant rules seeded on first
// migration. More specific patterns come first because the first match wins.
func DefaultRules() []model.MerchantCategoryRule {
	return []model.MerchantCategoryRule{
		// Refunds before shopping so "AMAZON REFUND" is not a purchase
		{Category: CategoryRefunds, MerchantPattern: "REFUND|REFD|RETURN CREDIT|CASHBACK"},
		{Category: CategoryIncome, MerchantPattern: "SALARY|PAYROLL|WAGES|HMRC TAX REFUND|DIVIDEND|INTEREST PAID"},
		{Category: CategoryTransfers, MerchantPattern: "TRANSFER TO|TRANSFER FROM|TFR|STANDING ORDER TO SAVINGS|MONZO POT"},

		{Category: CategorySubscriptions, MerchantPattern: "NETFLIX|SPOTIFY|DISNEY PLUS|DISNEY+|AMAZON PRIME|APPLE.COM/BILL|YOUTUBE PREMIUM|NOW TV"},
		{Category: CategoryGroceries, MerchantPattern: "TESCO|SAINSBURY|ASDA|ALDI|LIDL|WAITROSE|MORRISONS|CO-OP|OCADO|ICELAND"},
		{Category: CategoryDining, MerchantPattern: "DELIVEROO|JUST EAT|UBER EATS|MCDONALDS|NANDOS|PRET A MANGER|STARBUCKS|COSTA|GREGGS|PIZZA"},
		{Category: CategoryTransport, MerchantPattern: "TFL|TRAINLINE|UBER|NATIONAL RAIL|SHELL|BP |ESSO|TEXACO|NCP|BOLT"},
		{Category: CategoryShopping, MerchantPattern: "AMAZON|AMZN|ARGOS|JOHN LEWIS|PRIMARK|NEXT RETAIL|IKEA|EBAY|ZARA"},
		{Category: CategoryEntertainment, MerchantPattern: "CINEWORLD|ODEON|VUE|TICKETMASTER|STEAM|PLAYSTATION|XBOX"},
		{Category: CategoryBills, MerchantPattern: "COUNCIL TAX|BRITISH GAS|OCTOPUS ENERGY|EDF|THAMES WATER|BT GROUP|VODAFONE|EE LIMITED|VIRGIN MEDIA|TV LICENCE"},
		{Category: CategoryHealth, MerchantPattern: "BOOTS|SUPERDRUG|PHARMACY|PUREGYM|THE GYM|DENTAL"},
		{Category: CategoryCash, MerchantPattern: "CASH WITHDRAWAL|ATM|LINK "},
	}
}
