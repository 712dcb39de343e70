package engine

import (
	"context"
	"errors"
	"testing"

	"crewsim/internal/domain"
	"crewsim/internal/repo"
	"crewsim/internal/tracker"
)

func TestPlanDayNonWorkday(t *testing.T) {
	e := newTestEngine(t, newFakeTracker())
	importTestPlan(t, e, singleStoryPlan())

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-07"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("saturday plan should be empty, got %d actions", len(actions))
	}
}

func TestPlanDayUnknownTeam(t *testing.T) {
	e := newTestEngine(t, newFakeTracker())
	if _, err := e.PlanDay(context.Background(), "ghost", mustDate(t, "2026-03-02")); err == nil {
		t.Fatal("expected error for unknown team")
	}
}

func TestPlanDayMissingPlan(t *testing.T) {
	e := newTestEngine(t, newFakeTracker())
	_, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-02"))
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPlanDayFullSequence(t *testing.T) {
	ft := newFakeTracker()
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "To Do", OriginalEstimateSeconds: 14400},
		{Key: "PRJ-4", IssueType: "Development", Status: "In Progress", OriginalEstimateSeconds: 36000},
		{Key: "PRJ-5", IssueType: "Testing", Status: "To Do", OriginalEstimateSeconds: 7200},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}

	// PRJ-5 is a QA subtask with no QA phase scheduled; only the two DEV
	// subtasks produce work. PRJ-3 starts fresh (assign, start, log 4h of 4h,
	// close), PRJ-4 just gets a capacity-bound worklog.
	want := []struct {
		typ   domain.ActionType
		key   string
		hours float64
	}{
		{domain.ActionAssign, "PRJ-3", 0},
		{domain.ActionTransition, "PRJ-3", 0},
		{domain.ActionWorklog, "PRJ-3", 4.0},
		{domain.ActionTransition, "PRJ-3", 0},
		{domain.ActionWorklog, "PRJ-4", 6.0},
	}
	if len(actions) != len(want) {
		t.Fatalf("got %d actions, want %d: %+v", len(actions), len(want), actions)
	}
	for i, w := range want {
		a := actions[i]
		if a.Type != w.typ || a.IssueKey != w.key {
			t.Fatalf("action %d = %s %s, want %s %s", i, a.Type, a.IssueKey, w.typ, w.key)
		}
		if w.typ == domain.ActionWorklog {
			if a.HoursLogged == nil || *a.HoursLogged != w.hours {
				t.Fatalf("action %d hours = %v, want %v", i, a.HoursLogged, w.hours)
			}
		}
	}
	if got := *actions[1].ToStatus; got != StatusInProgress {
		t.Fatalf("start transition target = %s", got)
	}
	if got := *actions[3].ToStatus; got != StatusDone {
		t.Fatalf("close transition target = %s", got)
	}
	if actions[0].AssigneeID == nil || *actions[0].AssigneeID != "a1" {
		t.Fatalf("assignee = %v", actions[0].AssigneeID)
	}
}

func TestPlanDayClosesWithinTolerance(t *testing.T) {
	ft := newFakeTracker()
	// 6.2h remaining against 6h capacity: the 0.2h shortfall is inside the
	// 0.25h tolerance, so the day's log also closes the issue.
	remaining := int64(22320)
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "In Progress", RemainingEstimateSeconds: &remaining},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions: %+v", len(actions), actions)
	}
	if actions[0].Type != domain.ActionWorklog || *actions[0].HoursLogged != 6.0 {
		t.Fatalf("worklog = %+v", actions[0])
	}
	// 6.0 >= 6.2 - 0.25 closes the subtask.
	if actions[1].Type != domain.ActionTransition || *actions[1].ToStatus != StatusDone {
		t.Fatalf("close = %+v", actions[1])
	}
}

func TestPlanDayZeroRemaining(t *testing.T) {
	ft := newFakeTracker()
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "In Progress", OriginalEstimateSeconds: 14400, TimeSpentSeconds: 14400},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}
	if len(actions) != 1 || actions[0].Type != domain.ActionTransition || *actions[0].ToStatus != StatusDone {
		t.Fatalf("actions = %+v", actions)
	}
	if actions[0].Reason != "remaining estimate is 0" {
		t.Fatalf("reason = %q", actions[0].Reason)
	}
}

func TestPlanDayInactiveAssigneeSkipped(t *testing.T) {
	ft := newFakeTracker()
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Testing", Status: "To Do", OriginalEstimateSeconds: 7200},
	}
	plan := singleStoryPlan()
	plan.Epics[0].Stories[0].Phases = map[string]domain.PhaseSchedule{
		"QA": {Role: "QA", StartDate: strptr("2026-03-02"), EndDate: strptr("2026-03-06"), AssigneeAccountID: strptr("a2")},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, plan)

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("inactive assignee should produce no actions, got %+v", actions)
	}
}

func TestPlanDayOutsidePhaseWindow(t *testing.T) {
	ft := newFakeTracker()
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "To Do", OriginalEstimateSeconds: 7200},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-09"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("date after phase end should produce no actions, got %+v", actions)
	}
}

func TestPlanDayStoryAndEpicRollup(t *testing.T) {
	ft := newFakeTracker()
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "Closed"},
		{Key: "PRJ-4", IssueType: "Testing", Status: "Done"},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions: %+v", len(actions), actions)
	}
	if actions[0].IssueKey != "PRJ-2" || *actions[0].ToStatus != StatusDone || actions[0].Reason != "all subtasks completed" {
		t.Fatalf("story rollup = %+v", actions[0])
	}
	if actions[1].IssueKey != "PRJ-1" || actions[1].IssueType != "Epic" || actions[1].Reason != "all stories completed" {
		t.Fatalf("epic rollup = %+v", actions[1])
	}
}

func TestPlanDayRollupCountsPendingDone(t *testing.T) {
	ft := newFakeTracker()
	// One subtask already closed, the other finishes today via the logged
	// hours; the story rollup must count the pending close.
	ft.subtasks["PRJ-2"] = []tracker.Issue{
		{Key: "PRJ-3", IssueType: "Development", Status: "Closed"},
		{Key: "PRJ-4", IssueType: "Development", Status: "In Progress", OriginalEstimateSeconds: 10800},
	}
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}
	// worklog 3h, close PRJ-4, close story, close epic.
	if len(actions) != 4 {
		t.Fatalf("got %d actions: %+v", len(actions), actions)
	}
	if actions[2].IssueKey != "PRJ-2" || actions[3].IssueKey != "PRJ-1" {
		t.Fatalf("rollup order = %+v", actions)
	}
}

func TestPlanDayNoRollupWithoutSubtasks(t *testing.T) {
	ft := newFakeTracker()
	e := newTestEngine(t, ft)
	importTestPlan(t, e, singleStoryPlan())

	actions, err := e.PlanDay(context.Background(), "alpha", mustDate(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("plan day: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("story without subtasks must not roll up, got %+v", actions)
	}
}
