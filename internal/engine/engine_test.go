package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crewsim/internal/config"
	"crewsim/internal/db"
	"crewsim/internal/domain"
	"crewsim/internal/migrate"
	"crewsim/internal/tracker"
)

// fakeTracker serves canned issue data and records every mutation.
type fakeTracker struct {
	subtasks    map[string][]tracker.Issue
	transitions map[string][]tracker.Transition
	failOn      map[string]error

	applied  []string
	worklogs []string
	assigned []string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		subtasks:    map[string][]tracker.Issue{},
		transitions: map[string][]tracker.Transition{},
		failOn:      map[string]error{},
	}
}

func (f *fakeTracker) ListSubtasks(ctx context.Context, parentKey string) ([]tracker.Issue, error) {
	if err := f.failOn["subtasks:"+parentKey]; err != nil {
		return nil, err
	}
	return f.subtasks[parentKey], nil
}

func (f *fakeTracker) ListTransitions(ctx context.Context, issueKey string) ([]tracker.Transition, error) {
	if err := f.failOn["transitions:"+issueKey]; err != nil {
		return nil, err
	}
	return f.transitions[issueKey], nil
}

func (f *fakeTracker) ApplyTransition(ctx context.Context, issueKey, transitionID string) error {
	if err := f.failOn["apply:"+issueKey]; err != nil {
		return err
	}
	f.applied = append(f.applied, issueKey+":"+transitionID)
	return nil
}

func (f *fakeTracker) AddWorklog(ctx context.Context, issueKey string, seconds int64, started time.Time) error {
	if err := f.failOn["worklog:"+issueKey]; err != nil {
		return err
	}
	f.worklogs = append(f.worklogs, fmt.Sprintf("%s:%d", issueKey, seconds))
	return nil
}

func (f *fakeTracker) AssignIssue(ctx context.Context, issueKey, accountID string) error {
	if err := f.failOn["assign:"+issueKey]; err != nil {
		return err
	}
	f.assigned = append(f.assigned, issueKey+":"+accountID)
	return nil
}

// testConfig builds a deterministic config: zero daily variance makes the
// planner's worklog hours equal min(capacity, remaining).
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Teams = []config.Team{{
		ID:            "alpha",
		Name:          "Team Alpha",
		EpicIssueType: "Epic",
		Members: []config.Member{
			{AccountID: "a1", DisplayName: "Dev One", Role: "DEV", HoursPerDay: 6},
			{AccountID: "a2", DisplayName: "QA One", Role: "QA", HoursPerDay: 5, Inactive: true},
		},
	}}
	cfg.Workflow.Roles = map[string]string{
		"Development": "DEV",
		"Testing":     "QA",
	}
	cfg.Calendar.Workdays = []string{"mon", "tue", "wed", "thu", "fri"}
	cfg.Simulation.CompletionToleranceHours = 0.25
	return cfg
}

func newTestEngine(t *testing.T, ft *fakeTracker) Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(conn, testConfig(), ft)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

func strptr(s string) *string { return &s }

func importTestPlan(t *testing.T, e Engine, plan domain.CapacityPlan) {
	t.Helper()
	if err := e.ImportPlan(context.Background(), "alpha", plan); err != nil {
		t.Fatalf("import plan: %v", err)
	}
}

// singleStoryPlan schedules one DEV phase on PRJ-2 covering 2026-03-02..06.
func singleStoryPlan() domain.CapacityPlan {
	return domain.CapacityPlan{Epics: []domain.PlannedEpic{{
		EpicKey:   "PRJ-1",
		Status:    "In Progress",
		IssueType: "Epic",
		Stories: []domain.PlannedStory{{
			StoryKey:  "PRJ-2",
			Status:    "In Progress",
			IssueType: "Story",
			Phases: map[string]domain.PhaseSchedule{
				"DEV": {
					Role:              "DEV",
					StartDate:         strptr("2026-03-02"),
					EndDate:           strptr("2026-03-06"),
					AssigneeAccountID: strptr("a1"),
				},
			},
		}},
	}}}
}
