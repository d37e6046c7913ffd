package advisor

import (
	"fmt"
	"strings"

	"FinMitra/internal/knowledge"
	"FinMitra/internal/profile"
	"FinMitra/internal/session"
)

// step is one specialized reasoning stage of the plan pipeline. Each step
// sees the profile, the conversation history, and every finding produced
// before it in the current run.
type step struct {
	name   string
	system string
	prompt func(rc *runContext) string
}

// runContext is the ephemeral state of one pipeline run. It is owned by the
// run that created it and discarded afterwards; steps read it and contribute
// findings through addFinding, never by mutating anything else.
type runContext struct {
	profile  profile.HouseholdProfile
	history  []session.Turn
	message  string
	guidance []knowledge.Snippet
	findings map[string]string
	order    []string
}

func newRunContext(p profile.HouseholdProfile, history []session.Turn, message string) *runContext {
	return &runContext{
		profile:  p,
		history:  history,
		message:  strings.TrimSpace(message),
		findings: make(map[string]string),
	}
}

func (rc *runContext) addFinding(name, text string) {
	rc.findings[name] = text
	rc.order = append(rc.order, name)
}

// pipelineSteps run in this exact order on every plan request. The savings
// audit and lifestyle steps reference the expense and investment findings,
// so the order is part of the contract, not an implementation detail.
var pipelineSteps = []step{
	{
		name: "expense_analysis",
		system: "You are a detail-oriented expense analyst with deep knowledge of " +
			"Indian household spending patterns.",
		prompt: func(rc *runContext) string {
			var b strings.Builder
			b.WriteString("Analyze this household and categorize all monthly expenses into ")
			b.WriteString("Necessities, Luxuries, and Recurring Obligations. Use realistic ")
			b.WriteString("Indian cost estimates and give estimated amounts per category.\n\n")
			b.WriteString(rc.profileBlock())
			b.WriteString(rc.historyBlock())
			return b.String()
		},
	},
	{
		name: "investment_advice",
		system: "You are a savvy investment expert who tailors strategies for " +
			"Indian families.",
		prompt: func(rc *runContext) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Based on the household profile and the expense analysis below, "+
				"recommend how to allocate %s%% of income across suitable Indian "+
				"investment routes", formatPercent(rc.profile.InvestmentPercent))
			if len(rc.profile.InvestmentOptions) > 0 {
				fmt.Fprintf(&b, ", preferring: %s", strings.Join(rc.profile.InvestmentOptions, ", "))
			}
			b.WriteString(". Give each route an amount and a one-line rationale.\n\n")
			b.WriteString(rc.profileBlock())
			b.WriteString(rc.findingsBlock("expense_analysis"))
			b.WriteString(rc.historyBlock())
			return b.String()
		},
	},
	{
		name: "savings_audit",
		system: "You are a strict but helpful savings auditor who ensures financial " +
			"health and future security.",
		prompt: func(rc *runContext) string {
			var b strings.Builder
			b.WriteString("Using the expense and investment findings below, calculate the ")
			b.WriteString("household's savings rate as a percentage and amount. If savings ")
			b.WriteString("fall below 20% of in-hand income, warn clearly and give at least ")
			b.WriteString("3 actionable ways to improve savings.\n\n")
			b.WriteString(rc.profileBlock())
			b.WriteString(rc.findingsBlock("expense_analysis", "investment_advice"))
			b.WriteString(rc.historyBlock())
			return b.String()
		},
	},
	{
		name: "lifestyle_adjustments",
		system: "You are a creative advisor who balances comfort and savings for " +
			"Indian families.",
		prompt: func(rc *runContext) string {
			var b strings.Builder
			b.WriteString("Based on the findings so far, suggest lifestyle adjustments that ")
			b.WriteString("optimize spending and improve quality of life without cutting ")
			b.WriteString("essentials. Be specific and practical for an Indian family.\n\n")
			b.WriteString(rc.profileBlock())
			b.WriteString(rc.findingsBlock("expense_analysis", "investment_advice", "savings_audit"))
			b.WriteString(rc.historyBlock())
			return b.String()
		},
	},
}

// mergeStep composes the final plan. It is a model invocation of its own:
// the findings can contradict each other (an aggressive allocation against a
// poor savings audit) and the resolution has to be narrative, not a join.
var mergeStep = step{
	name: "plan_merge",
	system: "You are a family financial planner writing for a small phone screen. " +
		"Write plain text without markdown tables or heavy formatting.",
	prompt: func(rc *runContext) string {
		var b strings.Builder
		b.WriteString("Compose one coherent financial plan from the findings below. ")
		b.WriteString("Resolve contradictions between them; investment recommendations ")
		b.WriteString("must respect the savings audit's constraints. Keep the ordering: ")
		b.WriteString("expenses, investments, savings, lifestyle.\n\n")
		if rc.message != "" {
			fmt.Fprintf(&b, "The user specifically asked: %q. Address this directly.\n\n", rc.message)
		}
		b.WriteString(rc.profileBlock())
		b.WriteString(rc.findingsBlock(
			"expense_analysis", "investment_advice", "savings_audit", "lifestyle_adjustments"))
		if len(rc.guidance) > 0 {
			b.WriteString("## Reference notes\n")
			for _, snippet := range rc.guidance {
				fmt.Fprintf(&b, "- %s: %s\n", snippet.Title, snippet.Content)
			}
			b.WriteString("\n")
		}
		b.WriteString(rc.historyBlock())
		return b.String()
	},
}

func (rc *runContext) profileBlock() string {
	p := rc.profile
	var b strings.Builder
	b.WriteString("## Household profile\n")
	fmt.Fprintf(&b, "- Age: %d\n", p.Age)
	if p.Occupation != "" {
		fmt.Fprintf(&b, "- Occupation: %s\n", p.Occupation)
	}
	fmt.Fprintf(&b, "- Family members: %d (%d earners, %d dependents)\n",
		p.FamilyMembers, p.Earners, p.Dependents)
	fmt.Fprintf(&b, "- Gross family income: ₹%s/%s\n", formatMoney(p.GrossIncome), p.TimePeriod)
	fmt.Fprintf(&b, "- In-hand income: ₹%s/%s\n", formatMoney(p.InHandIncome), p.TimePeriod)
	fmt.Fprintf(&b, "- Intends to invest: %s%% of income\n", formatPercent(p.InvestmentPercent))
	if len(p.InvestmentOptions) > 0 {
		fmt.Fprintf(&b, "- Preferred instruments: %s\n", strings.Join(p.InvestmentOptions, ", "))
	}
	for _, item := range p.Expenses {
		fmt.Fprintf(&b, "- Expense %s: ₹%s\n", item.Name, formatMoney(item.Amount))
	}
	for _, goal := range p.Goals {
		fmt.Fprintf(&b, "- Goal %s: ₹%s in %d months\n",
			goal.Name, formatMoney(goal.TargetAmount), goal.MonthsToAchieve)
	}
	if p.DiningOutPerWeek > 0 {
		fmt.Fprintf(&b, "- Dining out: %d times/week\n", p.DiningOutPerWeek)
	}
	if p.ShoppingPerMonth > 0 {
		fmt.Fprintf(&b, "- Clothes shopping: %d times/month\n", p.ShoppingPerMonth)
	}
	if p.RecurringExpenses != "" {
		fmt.Fprintf(&b, "- Recurring expenses: %s\n", p.RecurringExpenses)
	}
	if p.CommuteMode != "" {
		fmt.Fprintf(&b, "- Commute: %s\n", p.CommuteMode)
	}
	b.WriteString("\n")
	return b.String()
}

func (rc *runContext) findingsBlock(names ...string) string {
	var b strings.Builder
	for _, name := range names {
		finding, ok := rc.findings[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## Finding: %s\n%s\n\n", name, finding)
	}
	return b.String()
}

func (rc *runContext) historyBlock() string {
	if len(rc.history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Conversation so far\n")
	for _, turn := range rc.history {
		fmt.Fprintf(&b, "[%s] %s\n", turn.Role, truncate(turn.Text, 300))
	}
	b.WriteString("\n")
	return b.String()
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func formatMoney(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%.2f", value)
}

func formatPercent(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%g", value)
}
