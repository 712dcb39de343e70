package tracker

import (
	"context"
	"time"
)

// Transition is one workflow step currently available on an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// ToStatus is the destination status name, when the tracker exposes it.
	ToStatus string `json:"to_status,omitempty"`
}

// Issue is the subset of tracker issue data the planner consumes.
type Issue struct {
	Key                      string `json:"key"`
	IssueType                string `json:"issue_type"`
	Status                   string `json:"status"`
	AssigneeAccountID        string `json:"assignee_account_id,omitempty"`
	OriginalEstimateSeconds  int64  `json:"original_estimate_seconds"`
	RemainingEstimateSeconds *int64 `json:"remaining_estimate_seconds,omitempty"`
	TimeSpentSeconds         int64  `json:"time_spent_seconds"`
}

// Client is the tracked-work system contract the engine depends on. The
// production implementation talks to Jira; tests substitute fakes.
type Client interface {
	ListSubtasks(ctx context.Context, parentKey string) ([]Issue, error)
	ListTransitions(ctx context.Context, issueKey string) ([]Transition, error)
	ApplyTransition(ctx context.Context, issueKey, transitionID string) error
	AddWorklog(ctx context.Context, issueKey string, seconds int64, started time.Time) error
	AssignIssue(ctx context.Context, issueKey, accountID string) error
}
