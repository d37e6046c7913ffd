// Package finmitra is a small typed client for the FinMitra REST API. It
// mirrors the wire format rather than importing server internals, so it can
// be vendored into client projects as-is.
package finmitra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom
// http.Client. Plan generation chains several model calls, so it is
// deliberately generous.
const DefaultHTTPTimeout = 5 * time.Minute

// Client wraps HTTP interactions with a finmitrad instance.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("base URL must include scheme and host")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Profile is the loose-typed household profile as the API accepts it.
// Numeric fields may be strings or numbers.
type Profile struct {
	Age               any           `json:"age,omitempty"`
	FamilyMembers     any           `json:"family_members,omitempty"`
	Earners           any           `json:"earners,omitempty"`
	Dependents        any           `json:"dependents,omitempty"`
	Occupation        string        `json:"occupation,omitempty"`
	GrossIncome       any           `json:"gross_income,omitempty"`
	InHandIncome      any           `json:"in_hand_income,omitempty"`
	InvestmentPercent any           `json:"investment_percent,omitempty"`
	InvestmentOptions []string      `json:"investment_options,omitempty"`
	Expenses          []ExpenseItem `json:"expenses,omitempty"`
	Goals             []Goal        `json:"goals,omitempty"`
	DiningOutPerWeek  any           `json:"dining_out,omitempty"`
	ShoppingPerMonth  any           `json:"shopping_freq,omitempty"`
	RecurringExpenses string        `json:"recurring_expenses,omitempty"`
	CommuteMode       string        `json:"commute_mode,omitempty"`
	TimePeriod        string        `json:"time_period,omitempty"`
}

// ExpenseItem is one named expense line.
type ExpenseItem struct {
	Name   string `json:"name"`
	Amount any    `json:"amount"`
}

// Goal is one named financial goal.
type Goal struct {
	Name            string `json:"name"`
	Amount          any    `json:"amount"`
	MonthsToAchieve any    `json:"time_to_achieve"`
}

// Turn is one conversation history entry.
type Turn struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// PlanResult is the outcome of a plan request.
type PlanResult struct {
	Plan      string `json:"plan"`
	SessionID string `json:"session_id"`
	History   []Turn `json:"history"`
}

// APIError carries the service's coded failure response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("finmitra API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

type wireResponse struct {
	Success   bool   `json:"success"`
	Plan      string `json:"plan"`
	Tip       string `json:"tip"`
	SessionID string `json:"session_id"`
	History   []Turn `json:"history"`
	Error     string `json:"error"`
	Code      string `json:"code"`
}

// GeneratePlan requests a full financial plan. sessionID and message may be
// empty; the returned session ID links follow-up requests to this
// conversation.
func (c *Client) GeneratePlan(ctx context.Context, p Profile, sessionID, message string) (*PlanResult, error) {
	payload := map[string]any{
		"profile":    p,
		"session_id": sessionID,
		"message":    message,
	}
	resp, err := c.post(ctx, "/api/v1/plans", payload)
	if err != nil {
		return nil, err
	}
	return &PlanResult{Plan: resp.Plan, SessionID: resp.SessionID, History: resp.History}, nil
}

// GenerateTip requests one short actionable tip.
func (c *Client) GenerateTip(ctx context.Context, p Profile) (string, error) {
	resp, err := c.post(ctx, "/api/v1/tips", map[string]any{"profile": p})
	if err != nil {
		return "", err
	}
	return resp.Tip, nil
}

// Health reports whether the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*wireResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded wireResponse
	if err := json.Unmarshal(content, &decoded); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !decoded.Success {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       decoded.Code,
			Message:    decoded.Error,
		}
	}
	return &decoded, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}
