package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/provider"
)

// RenderPatternReport renders a detection pass over transactions in a single
// currency.
func RenderPatternReport(set *model.PatternSet, currency string) string {
	if set == nil || set.IsEmpty() {
		if currency == "" {
			return FormatInfo("No patterns found") + "\n"
		}
		return FormatInfo("No patterns found in "+currency) + "\n"
	}

	var b strings.Builder
	title := "Spending patterns"
	if currency != "" {
		title += " in " + currency
	}
	b.WriteString(FormatTitle(title) + "\n")

	writePatterns(&b, "Recurring income", set.RecurringTransactions, currency)
	writePatterns(&b, "Recurring payments", set.RecurringPayments, currency)

	b.WriteString(SubtitleStyle.Render("Seasonal adjustments") + "\n")
	switch {
	case set.SeasonalUnavailable:
		b.WriteString(SubtleStyle.Render("  unavailable: amounts average to zero") + "\n")
	case len(set.SeasonalPatterns) == 0:
		b.WriteString(SubtleStyle.Render("  none") + "\n")
	default:
		for _, s := range set.SeasonalPatterns {
			fmt.Fprintf(&b, "  %-10s %+.0f%%\n", s.Month, s.Adjustment*100)
		}
	}

	if len(set.ScheduledTransactions) > 0 {
		b.WriteString(SubtitleStyle.Render("Scheduled") + "\n")
		for _, s := range set.ScheduledTransactions {
			fmt.Fprintf(&b, "  %s  %s  %s\n", s.Date.Format(time.DateOnly), FormatAmount(s.Amount, currency), s.TransactionID)
		}
	}

	return b.String()
}

func writePatterns(b *strings.Builder, title string, patterns []model.TransactionPattern, currency string) {
	b.WriteString(SubtitleStyle.Render(title) + "\n")
	if len(patterns) == 0 {
		b.WriteString(SubtleStyle.Render("  none") + "\n")
		return
	}
	for _, p := range patterns {
		fmt.Fprintf(b, "  %-30s %s  every %d days (%d times)\n",
			p.Description, FormatAmount(p.Amount, currency), p.Frequency, p.Occurrences)
	}
}

// ChallengeRow pairs a catalog entry with the user's latest attempt.
type ChallengeRow struct {
	Attempt   *model.UserChallenge
	Challenge model.Challenge
}

// RenderChallenges renders the challenge catalog with the user's standing.
func RenderChallenges(rows []ChallengeRow, xp int, badges []string) string {
	var b strings.Builder
	b.WriteString(FormatTitle("Challenges") + "\n")

	header := TableHeaderStyle.Render(fmt.Sprintf("%-36s %-24s %-18s %-10s %6s", "ID", "NAME", "TYPE", "STATUS", "XP"))
	b.WriteString(header + "\n")

	for _, row := range rows {
		status := SubtleStyle.Render("available")
		if !row.Challenge.Active {
			status = SubtleStyle.Render("retired")
		}
		if row.Attempt != nil {
			status = statusStyle(row.Attempt.Status).Render(string(row.Attempt.Status))
		}
		criteria := ""
		if row.Challenge.Criteria != nil {
			criteria = string(row.Challenge.Criteria.Type())
		}
		fmt.Fprintf(&b, "%-36s %-24s %-18s %-10s %6d\n",
			row.Challenge.ID, truncate(row.Challenge.Name, 24), criteria, status, row.Challenge.RewardXP)
	}

	sorted := append([]string(nil), badges...)
	sort.Strings(sorted)
	summary := fmt.Sprintf("%s %d XP", TrophyIcon, xp)
	if len(sorted) > 0 {
		summary += "  badges: " + strings.Join(sorted, ", ")
	}
	b.WriteString("\n" + BoldStyle.Render(summary) + "\n")
	return b.String()
}

func statusStyle(status model.ChallengeStatus) lipgloss.Style {
	switch status {
	case model.ChallengeCompleted:
		return SuccessStyle
	case model.ChallengeFailed:
		return ErrorStyle
	default:
		return InfoStyle
	}
}

// RenderRules renders categorization rules, user rules first.
func RenderRules(rules []model.MerchantCategoryRule) string {
	if len(rules) == 0 {
		return FormatInfo("No rules found")
	}
	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-6s %-40s %s", "SCOPE", "PATTERN", "CATEGORY")) + "\n")
	for _, r := range rules {
		scope := "user"
		if r.IsSystem() {
			scope = "system"
		}
		fmt.Fprintf(&b, "%-6s %-40s %s\n", scope, truncate(r.MerchantPattern, 40), r.Category)
	}
	return b.String()
}

// RenderSyncResult renders a sync summary box.
func RenderSyncResult(result *provider.SyncResult) string {
	lines := []string{
		fmt.Sprintf("Transactions: %d (%d categorized)", result.Transactions, result.Categorized),
		fmt.Sprintf("Balances:     %d", result.Balances),
	}
	if c := result.Challenges; c != nil {
		lines = append(lines, fmt.Sprintf("Challenges:   %d evaluated, %d completed, %d failed", c.Evaluated, c.Completed, c.Failed))
		if c.XPAwarded > 0 {
			lines = append(lines, FormatSuccess(fmt.Sprintf("+%d XP", c.XPAwarded)))
		}
		for _, badge := range c.BadgesAwarded {
			lines = append(lines, FormatSuccess("New badge: "+badge))
		}
	}
	title := fmt.Sprintf("%s Synced %s at %s", BankIcon, result.Provider, result.SyncedAt.Format(time.DateTime))
	return RenderBox(title, strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
