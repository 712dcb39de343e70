package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"crewsim/internal/domain"
	"crewsim/internal/tracker"
	"crewsim/internal/workflow"
)

const interruptedMessage = "interrupted"

// transitionMatcher tries to pick a transition for the requested target.
// Matchers run in order; the first hit wins, so new heuristics slot in
// without touching existing ones.
type transitionMatcher func(target string, targetCat domain.StatusCategory, issueType string, available []tracker.Transition, w *workflow.Categorizer) (tracker.Transition, bool)

var transitionMatchers = []transitionMatcher{
	matchExact,
	matchCategory,
	matchForward,
}

// matchExact picks a transition whose name or destination status equals the
// requested target, case-insensitively.
func matchExact(target string, _ domain.StatusCategory, _ string, available []tracker.Transition, _ *workflow.Categorizer) (tracker.Transition, bool) {
	for _, tr := range available {
		if strings.EqualFold(tr.Name, target) || strings.EqualFold(tr.ToStatus, target) {
			return tr, true
		}
	}
	return tracker.Transition{}, false
}

// matchCategory picks any transition whose destination resolves to the same
// coarse category as the requested target.
func matchCategory(_ string, targetCat domain.StatusCategory, issueType string, available []tracker.Transition, w *workflow.Categorizer) (tracker.Transition, bool) {
	if targetCat != domain.CategoryInProgress && targetCat != domain.CategoryDone {
		return tracker.Transition{}, false
	}
	for _, tr := range available {
		if w.Categorize(tr.ToStatus, issueType) == targetCat {
			return tr, true
		}
	}
	return tracker.Transition{}, false
}

// matchForward applies only when the target is Done and nothing matched:
// moving the issue forward into in-progress beats reopening or failing.
func matchForward(_ string, targetCat domain.StatusCategory, issueType string, available []tracker.Transition, w *workflow.Categorizer) (tracker.Transition, bool) {
	if targetCat != domain.CategoryDone {
		return tracker.Transition{}, false
	}
	for _, tr := range available {
		if w.Categorize(tr.ToStatus, issueType) == domain.CategoryInProgress {
			return tr, true
		}
	}
	return tracker.Transition{}, false
}

func findBestTransition(target, issueType string, available []tracker.Transition, w *workflow.Categorizer) (tracker.Transition, error) {
	targetCat := w.Categorize(target, issueType)
	for _, match := range transitionMatchers {
		if tr, ok := match(target, targetCat, issueType, available, w); ok {
			return tr, nil
		}
	}
	names := make([]string, 0, len(available))
	for _, tr := range available {
		names = append(names, fmt.Sprintf("%s -> %s", tr.Name, tr.ToStatus))
	}
	return tracker.Transition{}, fmt.Errorf("no transition to %q; available: [%s]", target, strings.Join(names, ", "))
}

// ExecuteActions resolves each planned action against the tracker, strictly
// sequentially with a fixed delay between calls. Failures are recorded on
// the action and the batch continues; cancellation marks the in-flight
// action interrupted and abandons the rest.
func (e Engine) ExecuteActions(ctx context.Context, actions []domain.Action, date time.Time, teamID string) []domain.Action {
	delay := time.Duration(e.Config.Simulation.ActionDelayMillis) * time.Millisecond
	for i := range actions {
		a := &actions[i]
		if ctx.Err() != nil {
			markFailed(a, interruptedMessage)
			return actions
		}
		if err := e.executeAction(ctx, a, date); err != nil {
			if isInterrupted(ctx, err) {
				markFailed(a, interruptedMessage)
				return actions
			}
			markFailed(a, err.Error())
			log.Printf("action %s %s failed: %v", a.Type, a.IssueKey, err)
		}
		if i < len(actions)-1 {
			select {
			case <-ctx.Done():
				return actions
			case <-time.After(delay):
			}
		}
	}
	return actions
}

func (e Engine) executeAction(ctx context.Context, a *domain.Action, date time.Time) error {
	switch a.Type {
	case domain.ActionSkip:
		return nil
	case domain.ActionAssign:
		if a.AssigneeID == nil {
			return errors.New("assign action missing assignee id")
		}
		if err := e.Tracker.AssignIssue(ctx, a.IssueKey, *a.AssigneeID); err != nil {
			return err
		}
		a.Executed = true
		return nil
	case domain.ActionTransition:
		return e.executeTransition(ctx, a)
	case domain.ActionWorklog:
		if a.HoursLogged == nil {
			return errors.New("worklog action missing hours")
		}
		seconds := int64(*a.HoursLogged * 3600)
		started := time.Date(date.Year(), date.Month(), date.Day(), 9, 0, 0, 0, time.UTC)
		if err := e.Tracker.AddWorklog(ctx, a.IssueKey, seconds, started); err != nil {
			return err
		}
		a.Executed = true
		return nil
	default:
		return fmt.Errorf("unknown action type %s", a.Type)
	}
}

func (e Engine) executeTransition(ctx context.Context, a *domain.Action) error {
	if a.ToStatus == nil {
		return errors.New("transition action missing target status")
	}
	available, err := e.Tracker.ListTransitions(ctx, a.IssueKey)
	if err != nil {
		return err
	}
	tr, err := findBestTransition(*a.ToStatus, a.IssueType, available, e.Workflow)
	if err != nil {
		return err
	}
	if err := e.Tracker.ApplyTransition(ctx, a.IssueKey, tr.ID); err != nil {
		return err
	}
	a.Executed = true
	// Record where the issue actually landed, which can differ from the
	// requested target under category or forward matching.
	actual := tr.ToStatus
	if actual == "" {
		actual = tr.Name
	}
	a.ToStatus = &actual
	return nil
}

func markFailed(a *domain.Action, msg string) {
	a.Executed = false
	a.Error = &msg
}

func isInterrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
