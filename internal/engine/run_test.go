package engine

import (
	"context"
	"errors"
	"testing"

	"crewsim/internal/domain"
	"crewsim/internal/repo"
	"crewsim/internal/tracker"
)

func TestRunDryRun(t *testing.T) {
	ft := newFakeTracker()
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "To Do", OriginalEstimateSeconds: 14400},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	rec, err := e.Run(context.Background(), "alpha", mustDate(t, "2026-03-02"), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.Status != domain.RunCompleted || !rec.DryRun {
		t.Fatalf("record = %+v", rec)
	}
	// assign, start, worklog, close.
	if rec.Summary == nil || rec.Summary.Planned != 4 {
		t.Fatalf("summary = %+v", rec.Summary)
	}
	if rec.Summary.Executed != 0 || rec.Summary.Failed != 0 {
		t.Fatalf("dry run must not count execution: %+v", rec.Summary)
	}
	if rec.Summary.PlannedByType["worklog"] != 1 || rec.Summary.PlannedByType["transition"] != 2 {
		t.Fatalf("planned_by_type = %+v", rec.Summary.PlannedByType)
	}
	if len(ft.applied)+len(ft.worklogs)+len(ft.assigned) != 0 {
		t.Fatal("dry run must not touch the tracker")
	}

	stored, err := e.Repo.GetRun(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.Status != domain.RunCompleted || len(stored.Actions) != 4 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestRunExecutes(t *testing.T) {
	ft := newFakeTracker()
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "To Do", OriginalEstimateSeconds: 14400},
	}
	ft.transitions["PRJ-3"] = []tracker.Transition{
		{ID: "11", Name: "Start Progress", ToStatus: "In Progress"},
		{ID: "31", Name: "Done", ToStatus: "Done"},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	rec, err := e.Run(context.Background(), "alpha", mustDate(t, "2026-03-02"), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.Summary.Planned != 4 || rec.Summary.Executed != 4 || rec.Summary.Failed != 0 {
		t.Fatalf("summary = %+v", rec.Summary)
	}
	if len(ft.assigned) != 1 || len(ft.applied) != 2 || len(ft.worklogs) != 1 {
		t.Fatalf("tracker calls: assigned=%v applied=%v worklogs=%v", ft.assigned, ft.applied, ft.worklogs)
	}
	if ft.worklogs[0] != "PRJ-3:14400" {
		t.Fatalf("worklog = %v", ft.worklogs)
	}
}

func TestRunConflict(t *testing.T) {
	e := newTestEngine(t, newFakeTracker())
	importTestPlan(t, e, singleStoryPlan())

	held := domain.RunRecord{ID: "other", TeamID: "alpha", SimDate: "2026-03-02", Status: domain.RunRunning, StartedAt: "2026-03-02T08:00:00Z"}
	if err := e.Repo.ClaimRun(context.Background(), held); err != nil {
		t.Fatalf("hold slot: %v", err)
	}

	_, err := e.Run(context.Background(), "alpha", mustDate(t, "2026-03-02"), true)
	if !errors.Is(err, repo.ErrRunActive) {
		t.Fatalf("want ErrRunActive, got %v", err)
	}

	runs, err := e.Repo.ListRuns(context.Background(), repo.RunFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("conflicting attempt must not leave a record, got %d", len(runs))
	}
}

func TestRunUnknownTeamRejectedBeforeClaim(t *testing.T) {
	e := newTestEngine(t, newFakeTracker())
	if _, err := e.Run(context.Background(), "ghost", mustDate(t, "2026-03-02"), true); err == nil {
		t.Fatal("expected error")
	}
	running, err := e.Repo.AnyRunning(context.Background())
	if err != nil || running {
		t.Fatalf("no slot should be held, running=%v err=%v", running, err)
	}
}

func TestRunPlanFailureMarksRunFailed(t *testing.T) {
	e := newTestEngine(t, newFakeTracker())
	// No plan imported; planning fails after the claim.
	rec, err := e.Run(context.Background(), "alpha", mustDate(t, "2026-03-02"), true)
	if err == nil {
		t.Fatal("expected error")
	}

	stored, getErr := e.Repo.GetRun(context.Background(), rec.ID)
	if getErr != nil {
		t.Fatalf("get run: %v", getErr)
	}
	if stored.Status != domain.RunFailed || stored.Error == nil {
		t.Fatalf("stored = %+v", stored)
	}

	running, err := e.Repo.AnyRunning(context.Background())
	if err != nil || running {
		t.Fatalf("slot must be released, running=%v err=%v", running, err)
	}
}

func TestRunTrackerFailureStillCompletes(t *testing.T) {
	ft := newFakeTracker()
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "In Progress", OriginalEstimateSeconds: 36000},
	}
	ft.failOn["worklog:PRJ-3"] = &tracker.APIError{StatusCode: 500, Body: "boom"}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	rec, err := e.Run(context.Background(), "alpha", mustDate(t, "2026-03-02"), false)
	if err != nil {
		t.Fatalf("per-action failures must not fail the run: %v", err)
	}
	if rec.Status != domain.RunCompleted {
		t.Fatalf("status = %s", rec.Status)
	}
	if rec.Summary.Planned != 1 || rec.Summary.Failed != 1 || rec.Summary.Executed != 0 {
		t.Fatalf("summary = %+v", rec.Summary)
	}
	if rec.Actions[0].Error == nil {
		t.Fatalf("action error missing: %+v", rec.Actions[0])
	}
}
