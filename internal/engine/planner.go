package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"crewsim/internal/deviation"
	"crewsim/internal/domain"
	"crewsim/internal/tracker"
)

// dayPlan accumulates the ordered action list for one simulated date.
type dayPlan struct {
	actions []domain.Action
	// pendingDone marks issues that already have a Done transition queued
	// earlier in this plan, so roll-up checks count them as finished.
	pendingDone map[string]bool
	// subtasks caches tracker fetches per story key.
	subtasks map[string][]tracker.Issue
}

func (p *dayPlan) add(a domain.Action) {
	p.actions = append(p.actions, a)
}

func (p *dayPlan) transitionDone(issueKey, issueType, fromStatus, reason string) {
	to := StatusDone
	a := domain.Action{
		Type:      domain.ActionTransition,
		IssueKey:  issueKey,
		IssueType: issueType,
		ToStatus:  &to,
		Reason:    reason,
	}
	if fromStatus != "" {
		a.FromStatus = &fromStatus
	}
	p.add(a)
	p.pendingDone[issueKey] = true
}

// PlanDay turns the team's capacity plan into the ordered list of actions for
// one calendar date. Non-workdays yield an empty plan.
func (e Engine) PlanDay(ctx context.Context, teamID string, date time.Time) ([]domain.Action, error) {
	if !e.Calendar.IsWorkday(date) {
		return nil, nil
	}
	team := e.Config.TeamByID(teamID)
	if team == nil {
		return nil, fmt.Errorf("unknown team %s", teamID)
	}
	plan, err := e.Repo.GetPlan(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("capacity plan for team %s: %w", teamID, err)
	}
	roster := e.roster(team)

	p := &dayPlan{
		pendingDone: map[string]bool{},
		subtasks:    map[string][]tracker.Issue{},
	}
	for _, epic := range plan.Epics {
		for _, story := range epic.Stories {
			for _, role := range sortedRoles(story.Phases) {
				phase := story.Phases[role]
				if phase.Role == "" {
					phase.Role = role
				}
				if err := e.planPhase(ctx, p, story, phase, roster, date); err != nil {
					return nil, err
				}
			}
		}
	}

	// Roll-up pass: close stories whose subtasks are all finished (or will
	// be once this plan's pending Done transitions apply), then epics.
	for _, epic := range plan.Epics {
		for _, story := range epic.Stories {
			if err := e.planStoryRollup(ctx, p, story); err != nil {
				return nil, err
			}
		}
		e.planEpicRollup(p, team.EpicIssueType, epic)
	}
	return p.actions, nil
}

func sortedRoles(phases map[string]domain.PhaseSchedule) []string {
	roles := make([]string, 0, len(phases))
	for r := range phases {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// planPhase emits actions for one role-phase of a story, if the date falls
// inside the phase window and the assignee is on the active roster.
func (e Engine) planPhase(ctx context.Context, p *dayPlan, story domain.PlannedStory, phase domain.PhaseSchedule, roster map[string]domain.RosterMember, date time.Time) error {
	if phase.StartDate == nil || phase.EndDate == nil || phase.AssigneeAccountID == nil {
		return nil
	}
	start, err := time.Parse("2006-01-02", *phase.StartDate)
	if err != nil {
		return fmt.Errorf("phase %s/%s start date: %w", story.StoryKey, phase.Role, err)
	}
	end, err := time.Parse("2006-01-02", *phase.EndDate)
	if err != nil {
		return fmt.Errorf("phase %s/%s end date: %w", story.StoryKey, phase.Role, err)
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(start) || day.After(end) {
		return nil
	}
	member, ok := roster[*phase.AssigneeAccountID]
	if !ok {
		return nil
	}
	subtasks, err := e.storySubtasks(ctx, p, story.StoryKey)
	if err != nil {
		return err
	}
	for _, st := range subtasks {
		if e.Workflow.SubtaskRole(st.IssueType) != phase.Role {
			continue
		}
		switch e.Workflow.Categorize(st.Status, st.IssueType) {
		case domain.CategoryNew:
			accountID := member.AccountID
			p.add(domain.Action{
				Type:         domain.ActionAssign,
				IssueKey:     st.Key,
				IssueType:    st.IssueType,
				AssigneeName: member.DisplayName,
				AssigneeID:   &accountID,
				Reason:       fmt.Sprintf("phase %s starts work", phase.Role),
			})
			from := st.Status
			to := StatusInProgress
			p.add(domain.Action{
				Type:       domain.ActionTransition,
				IssueKey:   st.Key,
				IssueType:  st.IssueType,
				FromStatus: &from,
				ToStatus:   &to,
				Reason:     "work started",
			})
			e.planWorklog(p, st, member)
		case domain.CategoryInProgress:
			e.planWorklog(p, st, member)
		case domain.CategoryDone:
			// nothing left to simulate
		}
	}
	return nil
}

// planWorklog emits the daily time-logging step for one subtask, closing it
// when the logged hours come within the completion tolerance of the
// remaining estimate.
func (e Engine) planWorklog(p *dayPlan, st tracker.Issue, member domain.RosterMember) {
	dailyHours := e.Deviation.ApplyDailyDeviation(member.HoursPerDay, e.Config.Simulation.DailyVariance)
	remaining := remainingHours(st)
	if remaining <= 0 {
		p.transitionDone(st.Key, st.IssueType, st.Status, "remaining estimate is 0")
		return
	}
	hoursToLog := min(dailyHours, remaining)
	hoursToLog = roundHalfFloor(hoursToLog)
	hours := hoursToLog
	accountID := member.AccountID
	p.add(domain.Action{
		Type:         domain.ActionWorklog,
		IssueKey:     st.Key,
		IssueType:    st.IssueType,
		AssigneeName: member.DisplayName,
		AssigneeID:   &accountID,
		HoursLogged:  &hours,
		Reason:       fmt.Sprintf("%.1fh of %.1fh remaining", hoursToLog, remaining),
	})
	if hoursToLog >= remaining-e.Config.Simulation.CompletionToleranceHours {
		p.transitionDone(st.Key, st.IssueType, st.Status, "work completed after logging")
	}
}

// remainingHours prefers the tracker's remaining estimate and falls back to
// original minus spent, floored at zero.
func remainingHours(st tracker.Issue) float64 {
	var seconds int64
	if st.RemainingEstimateSeconds != nil {
		seconds = *st.RemainingEstimateSeconds
	} else {
		seconds = st.OriginalEstimateSeconds - st.TimeSpentSeconds
	}
	if seconds < 0 {
		seconds = 0
	}
	return float64(seconds) / 3600
}

// planStoryRollup closes a story when every subtask is done or about to be.
func (e Engine) planStoryRollup(ctx context.Context, p *dayPlan, story domain.PlannedStory) error {
	if e.Workflow.IsDone(story.Status, story.IssueType) {
		return nil
	}
	subtasks, err := e.storySubtasks(ctx, p, story.StoryKey)
	if err != nil {
		return err
	}
	if len(subtasks) == 0 {
		return nil
	}
	for _, st := range subtasks {
		if !e.Workflow.IsDone(st.Status, st.IssueType) && !p.pendingDone[st.Key] {
			return nil
		}
	}
	p.transitionDone(story.StoryKey, story.IssueType, story.Status, "all subtasks completed")
	return nil
}

// planEpicRollup closes an epic when every story is done or about to be. The
// transition carries the configured epic issue-type name.
func (e Engine) planEpicRollup(p *dayPlan, epicIssueType string, epic domain.PlannedEpic) {
	if e.Workflow.IsDone(epic.Status, epic.IssueType) {
		return
	}
	if len(epic.Stories) == 0 {
		return
	}
	for _, story := range epic.Stories {
		if !e.Workflow.IsDone(story.Status, story.IssueType) && !p.pendingDone[story.StoryKey] {
			return
		}
	}
	p.transitionDone(epic.EpicKey, epicIssueType, epic.Status, "all stories completed")
}

func (e Engine) storySubtasks(ctx context.Context, p *dayPlan, storyKey string) ([]tracker.Issue, error) {
	if cached, ok := p.subtasks[storyKey]; ok {
		return cached, nil
	}
	subtasks, err := e.Tracker.ListSubtasks(ctx, storyKey)
	if err != nil {
		return nil, fmt.Errorf("list subtasks of %s: %w", storyKey, err)
	}
	p.subtasks[storyKey] = subtasks
	return subtasks, nil
}

// roundHalfFloor rounds to the nearest half hour with a half-hour floor.
func roundHalfFloor(v float64) float64 {
	v = deviation.RoundHalf(v)
	if v < 0.5 {
		return 0.5
	}
	return v
}
