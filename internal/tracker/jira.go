package tracker

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

// JiraClient is a minimal Jira Cloud REST v3 client implementing Client.
type JiraClient struct {
	BaseURL    string
	Email      string
	APIToken   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewJira creates a client with sane defaults.
func NewJira(baseURL, email, apiToken string) *JiraClient {
	return &JiraClient{
		BaseURL:  baseURL,
		Email:    email,
		APIToken: apiToken,
		Timeout:  30 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira api error: status=%d body=%s", e.StatusCode, e.Body)
}

type jiraIssueFields struct {
	IssueType struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	Status struct {
		Name string `json:"name"`
	} `json:"status"`
	Assignee *struct {
		AccountID string `json:"accountId"`
	} `json:"assignee"`
	TimeTracking struct {
		OriginalEstimateSeconds  int64  `json:"originalEstimateSeconds"`
		RemainingEstimateSeconds *int64 `json:"remainingEstimateSeconds"`
		TimeSpentSeconds         int64  `json:"timeSpentSeconds"`
	} `json:"timetracking"`
}

type jiraIssue struct {
	Key    string          `json:"key"`
	Fields jiraIssueFields `json:"fields"`
}

func fromJiraIssue(in jiraIssue) Issue {
	out := Issue{
		Key:                      in.Key,
		IssueType:                in.Fields.IssueType.Name,
		Status:                   in.Fields.Status.Name,
		OriginalEstimateSeconds:  in.Fields.TimeTracking.OriginalEstimateSeconds,
		RemainingEstimateSeconds: in.Fields.TimeTracking.RemainingEstimateSeconds,
		TimeSpentSeconds:         in.Fields.TimeTracking.TimeSpentSeconds,
	}
	if in.Fields.Assignee != nil {
		out.AssigneeAccountID = in.Fields.Assignee.AccountID
	}
	return out
}

// ListSubtasks returns the subtasks under a parent issue.
func (c *JiraClient) ListSubtasks(ctx context.Context, parentKey string) ([]Issue, error) {
	jql := fmt.Sprintf(`parent = "%s" ORDER BY key ASC`, parentKey)
	endpoint := fmt.Sprintf("rest/api/3/search?jql=%s&fields=issuetype,status,assignee,timetracking&maxResults=100",
		url.QueryEscape(jql))
	var resp struct {
		Issues []jiraIssue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		out = append(out, fromJiraIssue(is))
	}
	return out, nil
}

// ListTransitions returns the workflow transitions currently available.
func (c *JiraClient) ListTransitions(ctx context.Context, issueKey string) ([]Transition, error) {
	endpoint := fmt.Sprintf("rest/api/3/issue/%s/transitions", url.PathEscape(issueKey))
	var resp struct {
		Transitions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			To   *struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Transition, 0, len(resp.Transitions))
	for _, t := range resp.Transitions {
		tr := Transition{ID: t.ID, Name: t.Name}
		if t.To != nil {
			tr.ToStatus = t.To.Name
		}
		out = append(out, tr)
	}
	return out, nil
}

// ApplyTransition moves an issue through a workflow transition.
func (c *JiraClient) ApplyTransition(ctx context.Context, issueKey, transitionID string) error {
	endpoint := fmt.Sprintf("rest/api/3/issue/%s/transitions", url.PathEscape(issueKey))
	body := map[string]any{"transition": map[string]string{"id": transitionID}}
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// AddWorklog logs time against an issue, dated at the given start.
func (c *JiraClient) AddWorklog(ctx context.Context, issueKey string, seconds int64, started time.Time) error {
	endpoint := fmt.Sprintf("rest/api/3/issue/%s/worklog", url.PathEscape(issueKey))
	body := map[string]any{
		"timeSpentSeconds": seconds,
		"started":          started.Format("2006-01-02T15:04:05.000-0700"),
	}
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// AssignIssue sets the issue assignee by account id.
func (c *JiraClient) AssignIssue(ctx context.Context, issueKey, accountID string) error {
	endpoint := fmt.Sprintf("rest/api/3/issue/%s/assignee", url.PathEscape(issueKey))
	return c.do(ctx, http.MethodPut, endpoint, map[string]string{"accountId": accountID}, nil)
}

func (c *JiraClient) do(ctx context.Context, method, endpoint string, body any, out any) error {
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
	req.SetBasicAuth(c.Email, c.APIToken)
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
