package model

import (
	"strings"
	"time"
)

// MerchantCategoryRule maps a |-delimited set of merchant substrings to a
// spending category. Rules without a user are system-wide defaults.
type MerchantCategoryRule struct {
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	UserID          *string   `json:"user_id,omitempty"`
	ID              string    `json:"id"`
	Category        string    `json:"category"`
	MerchantPattern string    `json:"merchant_pattern"`
}

// IsSystem reports whether the rule has no owning user.
func (r MerchantCategoryRule) IsSystem() bool {
	return r.UserID == nil
}

// Alternatives splits the merchant pattern into its non-empty, upper-cased
// substrings.
func (r MerchantCategoryRule) Alternatives() []string {
	parts := strings.Split(r.MerchantPattern, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, strings.ToUpper(p))
	}
	return out
}
