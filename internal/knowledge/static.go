// Package knowledge supplies short finance-guidance snippets that ground
// the merge step in Indian market specifics the model tends to get vague
// about (instrument lock-ins, tax sections, typical rates).
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Snippet is one piece of guidance the pipeline may quote to the model.
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// Provider retrieves snippets relevant to a household's goals and
// investment preferences.
type Provider interface {
	Query(terms []string) []Snippet
}

// StaticProvider serves snippets from a fixed list, loaded from a JSON file
// or from the built-in defaults.
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider wraps a snippet list.
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{items: items, maxResults: maxResults}
}

// LoadStaticProvider reads snippets from a JSON file.
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("knowledge source path must not be empty")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge source: %w", err)
	}
	var entries []Snippet
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("parse knowledge source: %w", err)
	}
	return NewStaticProvider(entries, maxResults), nil
}

// DefaultProvider returns the built-in snippet set.
func DefaultProvider(maxResults int) *StaticProvider {
	return NewStaticProvider(defaultSnippets, maxResults)
}

// Query matches terms (goal names, investment preferences) against snippet
// keywords and titles. Matching is substring-based and case-insensitive.
func (p *StaticProvider) Query(terms []string) []Snippet {
	if p == nil || len(terms) == 0 {
		return nil
	}

	lowered := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			lowered = append(lowered, term)
		}
	}
	if len(lowered) == 0 {
		return nil
	}

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, lowered) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matches(item Snippet, terms []string) bool {
	title := strings.ToLower(item.Title)
	for _, term := range terms {
		if strings.Contains(title, term) || strings.Contains(term, title) {
			return true
		}
		for _, keyword := range item.Keywords {
			keyword = strings.ToLower(keyword)
			if strings.Contains(term, keyword) || strings.Contains(keyword, term) {
				return true
			}
		}
	}
	return false
}

var defaultSnippets = []Snippet{
	{
		Title:    "SIP basics",
		Content:  "Systematic Investment Plans average out market timing; equity SIPs suit goals more than 5 years away, debt or hybrid funds suit shorter horizons.",
		Keywords: []string{"sip", "mutual fund", "equity"},
	},
	{
		Title:    "PPF lock-in",
		Content:  "PPF has a 15-year lock-in with partial withdrawals from year 7, qualifies under Section 80C, and suits retirement or long-horizon goals, not near-term ones.",
		Keywords: []string{"ppf", "retirement", "80c"},
	},
	{
		Title:    "Emergency fund first",
		Content:  "Before locking money into instruments, hold 6 months of household expenses in a liquid fund or sweep-in FD, especially for single-earner families.",
		Keywords: []string{"emergency", "fd", "fixed deposit", "liquid"},
	},
	{
		Title:    "Education goals",
		Content:  "Education costs in India inflate around 10% a year; for a child's education goal, Sukanya Samriddhi (for daughters) and equity SIPs with a glide to debt near the target date are common routes.",
		Keywords: []string{"education", "child", "school", "college", "sukanya"},
	},
	{
		Title:    "Savings rate benchmark",
		Content:  "A savings rate below 20% of in-hand income is a warning sign; households at that level should cut discretionary spends before adding investment commitments.",
		Keywords: []string{"savings", "save more", "budget"},
	},
	{
		Title:    "Gold and real estate",
		Content:  "Sovereign Gold Bonds beat physical gold on cost and add interest; real estate needs a large corpus and is illiquid, so treat it as a long-horizon goal of its own.",
		Keywords: []string{"gold", "real estate", "property", "house", "home"},
	},
}
