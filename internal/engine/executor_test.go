package engine

import (
	"context"
	"strings"
	"testing"

	"crewsim/internal/domain"
	"crewsim/internal/tracker"
	"crewsim/internal/workflow"
)

func transitionAction(key, target string) domain.Action {
	return domain.Action{Type: domain.ActionTransition, IssueKey: key, IssueType: "Development", ToStatus: &target}
}

func worklogAction(key string, hours float64) domain.Action {
	return domain.Action{Type: domain.ActionWorklog, IssueKey: key, IssueType: "Development", HoursLogged: &hours}
}

func TestFindBestTransitionExact(t *testing.T) {
	w := workflow.New(testConfig())
	available := []tracker.Transition{
		{ID: "11", Name: "Start Progress", ToStatus: "In Progress"},
		{ID: "31", Name: "Done", ToStatus: "Done"},
	}
	tr, err := findBestTransition("done", "Development", available, w)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if tr.ID != "31" {
		t.Fatalf("picked %+v, want exact name match", tr)
	}

	// Exact destination match wins too.
	tr, err = findBestTransition("In Progress", "Development", available, w)
	if err != nil || tr.ID != "11" {
		t.Fatalf("picked %+v, %v", tr, err)
	}
}

func TestFindBestTransitionByCategory(t *testing.T) {
	w := workflow.New(testConfig())
	// No transition named "Done", but "Закрыть" lands on a done-category status.
	available := []tracker.Transition{
		{ID: "11", Name: "В работу", ToStatus: "В работе"},
		{ID: "41", Name: "Закрыть", ToStatus: "Закрыто"},
	}
	tr, err := findBestTransition("Done", "Development", available, w)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if tr.ID != "41" {
		t.Fatalf("picked %+v, want category match", tr)
	}
}

func TestFindBestTransitionForwardFallback(t *testing.T) {
	w := workflow.New(testConfig())
	// Target Done but the workflow only offers a step into in-progress.
	available := []tracker.Transition{
		{ID: "11", Name: "Start Progress", ToStatus: "In Progress"},
	}
	tr, err := findBestTransition("Done", "Development", available, w)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if tr.ID != "11" {
		t.Fatalf("picked %+v, want forward fallback", tr)
	}

	// The fallback only applies to done targets.
	if _, err := findBestTransition("In Progress", "Development", nil, w); err == nil {
		t.Fatal("expected no-match error for in-progress target with no transitions")
	}
}

func TestFindBestTransitionNoMatchListsOptions(t *testing.T) {
	w := workflow.New(testConfig())
	available := []tracker.Transition{
		{ID: "51", Name: "Reopen", ToStatus: "Open"},
	}
	_, err := findBestTransition("In Progress", "Development", available, w)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Reopen -> Open") {
		t.Fatalf("error should enumerate available transitions: %v", err)
	}
}

func TestExecuteActionsSequence(t *testing.T) {
	ft := newFakeTracker()
	ft.transitions["PRJ-3"] = []tracker.Transition{
		{ID: "11", Name: "Start Progress", ToStatus: "In Progress"},
	}
	e := newTestEngine(t, ft)

	a1 := "a1"
	actions := []domain.Action{
		{Type: domain.ActionAssign, IssueKey: "PRJ-3", AssigneeID: &a1},
		transitionAction("PRJ-3", "In Progress"),
		worklogAction("PRJ-3", 4.0),
	}
	out := e.ExecuteActions(context.Background(), actions, mustDate(t, "2026-03-02"), "alpha")
	for i, a := range out {
		if !a.Executed || a.Error != nil {
			t.Fatalf("action %d not executed: %+v", i, a)
		}
	}
	if len(ft.assigned) != 1 || ft.assigned[0] != "PRJ-3:a1" {
		t.Fatalf("assigned = %v", ft.assigned)
	}
	if len(ft.applied) != 1 || ft.applied[0] != "PRJ-3:11" {
		t.Fatalf("applied = %v", ft.applied)
	}
	if len(ft.worklogs) != 1 || ft.worklogs[0] != "PRJ-3:14400" {
		t.Fatalf("worklogs = %v", ft.worklogs)
	}
	if *out[1].ToStatus != "In Progress" {
		t.Fatalf("resolved destination = %v", *out[1].ToStatus)
	}
}

func TestExecuteActionsRecordsResolvedDestination(t *testing.T) {
	ft := newFakeTracker()
	ft.transitions["PRJ-3"] = []tracker.Transition{
		{ID: "41", Name: "Закрыть", ToStatus: "Закрыто"},
	}
	e := newTestEngine(t, ft)

	out := e.ExecuteActions(context.Background(), []domain.Action{transitionAction("PRJ-3", "Done")}, mustDate(t, "2026-03-02"), "alpha")
	if !out[0].Executed {
		t.Fatalf("action failed: %+v", out[0])
	}
	if *out[0].ToStatus != "Закрыто" {
		t.Fatalf("to_status = %q, want actual destination", *out[0].ToStatus)
	}
}

func TestExecuteActionsFailureIsolation(t *testing.T) {
	ft := newFakeTracker()
	ft.failOn["worklog:PRJ-3"] = &tracker.APIError{StatusCode: 500, Body: "boom"}
	ft.transitions["PRJ-4"] = []tracker.Transition{
		{ID: "11", Name: "Start Progress", ToStatus: "In Progress"},
	}
	e := newTestEngine(t, ft)

	actions := []domain.Action{
		worklogAction("PRJ-3", 2.0),
		transitionAction("PRJ-4", "In Progress"),
	}
	out := e.ExecuteActions(context.Background(), actions, mustDate(t, "2026-03-02"), "alpha")
	if out[0].Executed || out[0].Error == nil {
		t.Fatalf("first action should fail: %+v", out[0])
	}
	if !out[1].Executed {
		t.Fatalf("second action should still run: %+v", out[1])
	}
}

func TestExecuteActionsNoMatchMarksFailed(t *testing.T) {
	ft := newFakeTracker()
	ft.transitions["PRJ-3"] = []tracker.Transition{
		{ID: "51", Name: "Reopen", ToStatus: "Open"},
	}
	e := newTestEngine(t, ft)

	out := e.ExecuteActions(context.Background(), []domain.Action{transitionAction("PRJ-3", "In Progress")}, mustDate(t, "2026-03-02"), "alpha")
	if out[0].Executed || out[0].Error == nil {
		t.Fatalf("expected failure: %+v", out[0])
	}
	if !strings.Contains(*out[0].Error, "Reopen") {
		t.Fatalf("error should list transitions: %q", *out[0].Error)
	}
	if len(ft.applied) != 0 {
		t.Fatalf("nothing should be applied, got %v", ft.applied)
	}
}

func TestExecuteActionsCancellation(t *testing.T) {
	ft := newFakeTracker()
	e := newTestEngine(t, ft)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	actions := []domain.Action{
		worklogAction("PRJ-3", 2.0),
		worklogAction("PRJ-4", 2.0),
	}
	out := e.ExecuteActions(ctx, actions, mustDate(t, "2026-03-02"), "alpha")
	if out[0].Executed || out[0].Error == nil || *out[0].Error != "interrupted" {
		t.Fatalf("first action should be interrupted: %+v", out[0])
	}
	if out[1].Executed || out[1].Error != nil {
		t.Fatalf("second action should be untouched: %+v", out[1])
	}
	if len(ft.worklogs) != 0 {
		t.Fatalf("nothing should reach the tracker, got %v", ft.worklogs)
	}
}

func TestExecuteActionsSkipPassThrough(t *testing.T) {
	e := newTestEngine(t, newFakeTracker())
	out := e.ExecuteActions(context.Background(), []domain.Action{
		{Type: domain.ActionSkip, IssueKey: "PRJ-3", Reason: "no capacity"},
	}, mustDate(t, "2026-03-02"), "alpha")
	if out[0].Executed || out[0].Error != nil {
		t.Fatalf("skip action should stay untouched: %+v", out[0])
	}
}
