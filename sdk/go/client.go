package crewsimsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Crewsim HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Action is one unit of simulated activity from a run record.
type Action struct {
	Type         string   `json:"type"`
	IssueKey     string   `json:"issue_key"`
	IssueType    string   `json:"issue_type"`
	AssigneeName string   `json:"assignee_name,omitempty"`
	AssigneeID   *string  `json:"assignee_id,omitempty"`
	FromStatus   *string  `json:"from_status,omitempty"`
	ToStatus     *string  `json:"to_status,omitempty"`
	HoursLogged  *float64 `json:"hours_logged,omitempty"`
	Reason       string   `json:"reason"`
	Executed     bool     `json:"executed"`
	Error        *string  `json:"error,omitempty"`
}

// Summary tallies a run's actions.
type Summary struct {
	Planned       int            `json:"planned"`
	Executed      int            `json:"executed"`
	Failed        int            `json:"failed"`
	Skipped       int            `json:"skipped"`
	PlannedByType map[string]int `json:"planned_by_type,omitempty"`
}

// Run is the API run model.
type Run struct {
	ID          string   `json:"id"`
	TeamID      string   `json:"team_id"`
	SimDate     string   `json:"sim_date"`
	DryRun      bool     `json:"dry_run"`
	Status      string   `json:"status"`
	Actions     []Action `json:"actions"`
	Summary     *Summary `json:"summary,omitempty"`
	Error       *string  `json:"error,omitempty"`
	StartedAt   string   `json:"started_at"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

// Status reports whether a run currently holds the running slot.
type Status struct {
	Running bool `json:"running"`
}

// CapacityPlan mirrors the plan document accepted by the API.
type CapacityPlan struct {
	TeamID string `json:"team_id,omitempty"`
	Epics  []Epic `json:"epics"`
}

type Epic struct {
	EpicKey   string  `json:"epic_key"`
	Status    string  `json:"status"`
	IssueType string  `json:"issue_type"`
	Stories   []Story `json:"stories"`
}

type Story struct {
	StoryKey  string           `json:"story_key"`
	Status    string           `json:"status"`
	IssueType string           `json:"issue_type"`
	Phases    map[string]Phase `json:"phases"`
}

type Phase struct {
	Role                string  `json:"role"`
	StartDate           *string `json:"start_date,omitempty"`
	EndDate             *string `json:"end_date,omitempty"`
	AssigneeAccountID   *string `json:"assignee_account_id,omitempty"`
	AssigneeDisplayName string  `json:"assignee_display_name,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StartRun triggers a simulation run for a team. An empty simDate means the
// server picks today.
func (c *Client) StartRun(ctx context.Context, teamID, simDate string, dryRun bool) (Run, error) {
	body := map[string]any{"dry_run": dryRun}
	if simDate != "" {
		body["sim_date"] = simDate
	}
	var resp Run
	endpoint := fmt.Sprintf("v0/teams/%s/runs", url.PathEscape(teamID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// GetRun fetches one run by id.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var resp Run
	endpoint := fmt.Sprintf("v0/runs/%s", url.PathEscape(runID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListRuns returns recent runs, optionally filtered by team.
func (c *Client) ListRuns(ctx context.Context, teamID string, limit int) ([]Run, error) {
	endpoint := "v0/runs"
	q := url.Values{}
	if teamID != "" {
		q.Set("team_id", teamID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Run
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Status reports whether the engine currently holds a running slot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, "v0/status", nil, &resp)
	return resp, err
}

// ImportPlan replaces the stored capacity plan for a team.
func (c *Client) ImportPlan(ctx context.Context, teamID string, plan CapacityPlan) (CapacityPlan, error) {
	var resp CapacityPlan
	endpoint := fmt.Sprintf("v0/teams/%s/plan", url.PathEscape(teamID))
	err := c.do(ctx, http.MethodPut, endpoint, plan, &resp)
	return resp, err
}

// GetPlan fetches the stored capacity plan for a team.
func (c *Client) GetPlan(ctx context.Context, teamID string) (CapacityPlan, error) {
	var resp CapacityPlan
	endpoint := fmt.Sprintf("v0/teams/%s/plan", url.PathEscape(teamID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
