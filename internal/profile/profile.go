package profile

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	xerrors "FinMitra/internal/errors"
)

// ExpenseItem is one named monthly expense line.
type ExpenseItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Goal is a named financial goal with a target amount and horizon.
type Goal struct {
	Name            string  `json:"name"`
	TargetAmount    float64 `json:"amount"`
	MonthsToAchieve int     `json:"time_to_achieve"`
}

// HouseholdProfile is the canonical, validated form of a household's
// financial situation. It is built once per request and never mutated.
type HouseholdProfile struct {
	Age               int           `json:"age"`
	FamilyMembers     int           `json:"family_members"`
	Earners           int           `json:"earners"`
	Dependents        int           `json:"dependents"`
	Occupation        string        `json:"occupation"`
	GrossIncome       float64       `json:"gross_income"`
	InHandIncome      float64       `json:"in_hand_income"`
	InvestmentPercent float64       `json:"investment_percent"`
	InvestmentOptions []string      `json:"investment_options"`
	Expenses          []ExpenseItem `json:"expenses"`
	Goals             []Goal        `json:"goals"`
	DiningOutPerWeek  int           `json:"dining_out"`
	ShoppingPerMonth  int           `json:"shopping_freq"`
	RecurringExpenses string        `json:"recurring_expenses"`
	CommuteMode       string        `json:"commute_mode"`
	TimePeriod        string        `json:"time_period"`
}

// Raw is the loose-typed profile as mobile and web clients send it. Numeric
// fields routinely arrive as strings, so everything numeric is `any` until
// Normalize coerces it. Unknown extra fields are dropped by the decoder.
type Raw struct {
	Age               any          `json:"age"`
	FamilyMembers     any          `json:"family_members"`
	Earners           any          `json:"earners"`
	Dependents        any          `json:"dependents"`
	Occupation        string       `json:"occupation"`
	GrossIncome       any          `json:"gross_income"`
	InHandIncome      any          `json:"in_hand_income"`
	InvestmentPercent any          `json:"investment_percent"`
	InvestmentOptions any          `json:"investment_options"`
	Expenses          []RawExpense `json:"expenses"`
	Goals             []RawGoal    `json:"goals"`
	DiningOutPerWeek  any          `json:"dining_out"`
	ShoppingPerMonth  any          `json:"shopping_freq"`
	RecurringExpenses string       `json:"recurring_expenses"`
	CommuteMode       string       `json:"commute_mode"`
	TimePeriod        string       `json:"time_period"`
}

// RawExpense mirrors one incoming expense line.
type RawExpense struct {
	Name   string `json:"name"`
	Amount any    `json:"amount"`
}

// RawGoal mirrors one incoming goal.
type RawGoal struct {
	Name            string `json:"name"`
	Amount          any    `json:"amount"`
	MonthsToAchieve any    `json:"time_to_achieve"`
}

// Normalize validates and coerces a raw profile into its canonical form. It
// is a pure function: it never touches shared state and reports the first
// offending field via a VALIDATION_FAILED error with a "field" metadata key.
func Normalize(raw Raw) (HouseholdProfile, error) {
	var p HouseholdProfile
	var err error

	if p.Age, err = coerceInt("age", raw.Age); err != nil {
		return HouseholdProfile{}, err
	}
	if p.FamilyMembers, err = coerceInt("family_members", raw.FamilyMembers); err != nil {
		return HouseholdProfile{}, err
	}
	if p.Earners, err = coerceInt("earners", raw.Earners); err != nil {
		return HouseholdProfile{}, err
	}
	if p.Dependents, err = coerceInt("dependents", raw.Dependents); err != nil {
		return HouseholdProfile{}, err
	}
	if p.GrossIncome, err = coerceFloat("gross_income", raw.GrossIncome); err != nil {
		return HouseholdProfile{}, err
	}
	if p.InHandIncome, err = coerceFloat("in_hand_income", raw.InHandIncome); err != nil {
		return HouseholdProfile{}, err
	}
	if p.InvestmentPercent, err = coerceFloat("investment_percent", raw.InvestmentPercent); err != nil {
		return HouseholdProfile{}, err
	}
	if p.InvestmentPercent > 100 {
		return HouseholdProfile{}, invalid("investment_percent", "must lie within [0,100]")
	}
	if p.DiningOutPerWeek, err = coerceInt("dining_out", raw.DiningOutPerWeek); err != nil {
		return HouseholdProfile{}, err
	}
	if p.ShoppingPerMonth, err = coerceInt("shopping_freq", raw.ShoppingPerMonth); err != nil {
		return HouseholdProfile{}, err
	}

	p.Occupation = strings.TrimSpace(raw.Occupation)
	p.RecurringExpenses = strings.TrimSpace(raw.RecurringExpenses)
	p.CommuteMode = strings.TrimSpace(raw.CommuteMode)
	p.TimePeriod = strings.TrimSpace(raw.TimePeriod)
	if p.TimePeriod == "" {
		p.TimePeriod = "monthly"
	}

	if p.InvestmentOptions, err = coerceOptions(raw.InvestmentOptions); err != nil {
		return HouseholdProfile{}, err
	}

	p.Expenses = make([]ExpenseItem, 0, len(raw.Expenses))
	for i, item := range raw.Expenses {
		field := fmt.Sprintf("expenses[%d].amount", i)
		amount, err := coerceFloat(field, item.Amount)
		if err != nil {
			return HouseholdProfile{}, err
		}
		p.Expenses = append(p.Expenses, ExpenseItem{
			Name:   strings.TrimSpace(item.Name),
			Amount: amount,
		})
	}

	p.Goals = make([]Goal, 0, len(raw.Goals))
	for i, goal := range raw.Goals {
		amount, err := coerceFloat(fmt.Sprintf("goals[%d].amount", i), goal.Amount)
		if err != nil {
			return HouseholdProfile{}, err
		}
		months, err := coerceInt(fmt.Sprintf("goals[%d].time_to_achieve", i), goal.MonthsToAchieve)
		if err != nil {
			return HouseholdProfile{}, err
		}
		p.Goals = append(p.Goals, Goal{
			Name:            strings.TrimSpace(goal.Name),
			TargetAmount:    amount,
			MonthsToAchieve: months,
		})
	}

	return p, nil
}

// Summary renders a compact one-line description used as the user turn when
// the caller sends no free-text message. Keeping it short keeps history
// prompts bounded.
func (p HouseholdProfile) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Profile: age %d, family of %d (%d earners, %d dependents)",
		p.Age, p.FamilyMembers, p.Earners, p.Dependents)
	if p.Occupation != "" {
		fmt.Fprintf(&b, ", %s", p.Occupation)
	}
	fmt.Fprintf(&b, ", in-hand income %s/%s", formatAmount(p.InHandIncome), p.TimePeriod)
	fmt.Fprintf(&b, ", invests %s%%", formatAmount(p.InvestmentPercent))
	if len(p.InvestmentOptions) > 0 {
		fmt.Fprintf(&b, " via %s", strings.Join(p.InvestmentOptions, ", "))
	}
	if len(p.Expenses) > 0 {
		fmt.Fprintf(&b, ", %d expense lines", len(p.Expenses))
	}
	if len(p.Goals) > 0 {
		fmt.Fprintf(&b, ", %d goals", len(p.Goals))
	}
	return b.String()
}

func invalid(field, msg string) error {
	return xerrors.New(xerrors.CodeValidation,
		fmt.Sprintf("field %s %s", field, msg),
		xerrors.WithMetadata("field", field))
}

// coerceFloat accepts numbers, numeric strings, and json.Number. Absent
// values default to zero; negatives are rejected.
func coerceFloat(field string, value any) (float64, error) {
	var parsed float64
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		parsed = v
	case float32:
		parsed = float64(v)
	case int:
		parsed = float64(v)
	case int64:
		parsed = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, invalid(field, "is not numeric")
		}
		parsed = f
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, invalid(field, "is not numeric")
		}
		parsed = f
	default:
		return 0, invalid(field, "has an unsupported type")
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, invalid(field, "is not a finite number")
	}
	if parsed < 0 {
		return 0, invalid(field, "must not be negative")
	}
	return parsed, nil
}

// coerceInt is coerceFloat restricted to whole numbers.
func coerceInt(field string, value any) (int, error) {
	parsed, err := coerceFloat(field, value)
	if err != nil {
		return 0, err
	}
	if parsed != math.Trunc(parsed) {
		return 0, invalid(field, "must be a whole number")
	}
	return int(parsed), nil
}

// coerceOptions accepts a list of labels, a comma-separated string, or a
// map whose keys are the labels (older clients sent preference maps).
func coerceOptions(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return cleanLabels(v), nil
	case []any:
		labels := make([]string, 0, len(v))
		for _, item := range v {
			labels = append(labels, fmt.Sprint(item))
		}
		return cleanLabels(labels), nil
	case string:
		return cleanLabels(strings.Split(v, ",")), nil
	case map[string]any:
		labels := make([]string, 0, len(v))
		for key := range v {
			labels = append(labels, key)
		}
		sort.Strings(labels)
		return cleanLabels(labels), nil
	default:
		return nil, invalid("investment_options", "has an unsupported type")
	}
}

func cleanLabels(labels []string) []string {
	cleaned := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label != "" {
			cleaned = append(cleaned, label)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
