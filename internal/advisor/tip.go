package advisor

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	xerrors "FinMitra/internal/errors"
	"FinMitra/internal/profile"
	"FinMitra/internal/sanitize"
	"FinMitra/internal/storage/mysql"
)

const tipSystemPrompt = "You are a friendly financial advisor who gives quick, " +
	"practical tips for Indian families. Reply with exactly one actionable tip " +
	"of one or two sentences, as plain text."

// GenerateTip produces one short actionable tip from the profile alone. It
// never touches conversation state. An empty or oversized tip counts as a
// failed attempt: the call is retried once with the same inputs and then
// surfaced as a generation failure.
func (a *Advisor) GenerateTip(ctx context.Context, p profile.HouseholdProfile) (string, error) {
	if a.llmClient == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "advisor is missing a generation client")
	}

	prompt := buildTipPrompt(p)

	tip, err := a.tipAttempt(ctx, prompt)
	if err != nil && ctx.Err() == nil {
		tip, err = a.tipAttempt(ctx, prompt)
	}
	if err != nil {
		code := xerrors.CodeGeneration
		if stdErrors.Is(err, context.DeadlineExceeded) {
			code = xerrors.CodeTimeout
		}
		return "", xerrors.Wrap(code, err, "tip generation failed")
	}

	a.recordOutcome(ctx, mysql.KindTip, "", p.Summary(), tip)
	return tip, nil
}

func (a *Advisor) tipAttempt(ctx context.Context, prompt string) (string, error) {
	output, err := a.generate(ctx, tipSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	tip := sanitize.Clean(output)
	if tip == "" {
		return "", stdErrors.New("tip was empty after sanitization")
	}
	if length := len([]rune(tip)); length > a.maxTipLength {
		return "", fmt.Errorf("tip length %d exceeds limit %d", length, a.maxTipLength)
	}
	return tip, nil
}

func buildTipPrompt(p profile.HouseholdProfile) string {
	var b strings.Builder
	b.WriteString("## User profile\n")
	fmt.Fprintf(&b, "- Age: %d\n", p.Age)
	if p.Occupation != "" {
		fmt.Fprintf(&b, "- Occupation: %s\n", p.Occupation)
	}
	fmt.Fprintf(&b, "- Family members: %d\n", p.FamilyMembers)
	fmt.Fprintf(&b, "- Family earners: %d\n", p.Earners)
	fmt.Fprintf(&b, "- Family dependents: %d\n", p.Dependents)
	fmt.Fprintf(&b, "- Gross salary: ₹%s\n", formatMoney(p.GrossIncome))
	for _, item := range p.Expenses {
		fmt.Fprintf(&b, "- Expense %s: ₹%s\n", item.Name, formatMoney(item.Amount))
	}
	fmt.Fprintf(&b, "- Investment %%: %s\n", formatPercent(p.InvestmentPercent))
	if len(p.InvestmentOptions) > 0 {
		fmt.Fprintf(&b, "- Investment options: %s\n", strings.Join(p.InvestmentOptions, ", "))
	}
	for _, goal := range p.Goals {
		fmt.Fprintf(&b, "- Goal %s: ₹%s in %d months\n",
			goal.Name, formatMoney(goal.TargetAmount), goal.MonthsToAchieve)
	}
	b.WriteString("\nGive a single, actionable tip (1-2 lines) for this user to improve their financial planning.")
	return b.String()
}
