package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"crewsim/internal/domain"
	"crewsim/internal/events"
)

// Run claims the global running slot, plans one day of activity for the team
// and, unless dryRun is set, executes the plan against the tracker. The run
// record is finalized exactly once whether the run completes or fails.
func (e Engine) Run(ctx context.Context, teamID string, date time.Time, dryRun bool) (domain.RunRecord, error) {
	if e.Config.TeamByID(teamID) == nil {
		return domain.RunRecord{}, fmt.Errorf("unknown team %s", teamID)
	}
	rec := domain.RunRecord{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		SimDate:   date.Format("2006-01-02"),
		DryRun:    dryRun,
		Status:    domain.RunRunning,
		StartedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.ClaimRun(ctx, rec); err != nil {
		return domain.RunRecord{}, err
	}
	e.appendEvent(ctx, "run.started", teamID, rec.ID, events.EventPayload{
		"sim_date": rec.SimDate,
		"dry_run":  dryRun,
	})

	actions, err := e.PlanDay(ctx, teamID, date)
	if err != nil {
		return rec, e.failRun(ctx, rec, actions, err)
	}
	if !dryRun && len(actions) > 0 {
		actions = e.ExecuteActions(ctx, actions, date, teamID)
	}
	summary := buildSummary(actions, dryRun)

	rec.Actions = actions
	rec.Summary = &summary
	rec.Status = domain.RunCompleted
	completedAt := e.now().UTC().Format(time.RFC3339)
	rec.CompletedAt = &completedAt

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rec, e.failRun(ctx, rec, actions, err)
	}
	defer tx.Rollback()
	if err := e.Repo.CompleteRun(ctx, tx, rec.ID, actions, summary, completedAt); err != nil {
		return rec, e.failRun(ctx, rec, actions, err)
	}
	if err := e.Events.Append(ctx, tx, "run.completed", teamID, "run", rec.ID, events.EventPayload{
		"sim_date": rec.SimDate,
		"planned":  summary.Planned,
		"executed": summary.Executed,
		"failed":   summary.Failed,
	}); err != nil {
		return rec, e.failRun(ctx, rec, actions, err)
	}
	if err := tx.Commit(); err != nil {
		return rec, e.failRun(ctx, rec, actions, err)
	}
	return rec, nil
}

// failRun releases the running slot by finalizing the record as failed. The
// original error is returned; finalization problems are only logged so they
// never mask the root cause.
func (e Engine) failRun(ctx context.Context, rec domain.RunRecord, actions []domain.Action, cause error) error {
	completedAt := e.now().UTC().Format(time.RFC3339)
	// Finalize even when the caller's context is already canceled, otherwise
	// the running slot stays held forever.
	fctx := context.WithoutCancel(ctx)
	tx, err := e.DB.BeginTx(fctx, nil)
	if err != nil {
		log.Printf("run %s: finalize failed run: %v", rec.ID, err)
		return cause
	}
	defer tx.Rollback()
	if err := e.Repo.FailRun(fctx, tx, rec.ID, actions, cause.Error(), completedAt); err != nil {
		log.Printf("run %s: mark failed: %v", rec.ID, err)
		return cause
	}
	if err := e.Events.Append(fctx, tx, "run.failed", rec.TeamID, "run", rec.ID, events.EventPayload{
		"error": cause.Error(),
	}); err != nil {
		log.Printf("run %s: append failure event: %v", rec.ID, err)
		return cause
	}
	if err := tx.Commit(); err != nil {
		log.Printf("run %s: commit failure record: %v", rec.ID, err)
	}
	return cause
}

func (e Engine) appendEvent(ctx context.Context, evtType, teamID, entityID string, payload events.EventPayload) {
	if err := e.Events.Append(ctx, nil, evtType, teamID, "run", entityID, payload); err != nil {
		log.Printf("append event %s: %v", evtType, err)
	}
}

// buildSummary tallies a finished action list. Dry runs report planned counts
// only; executed and failed stay zero because nothing touched the tracker.
func buildSummary(actions []domain.Action, dryRun bool) domain.Summary {
	s := domain.Summary{PlannedByType: map[string]int{}}
	for _, a := range actions {
		if a.Type == domain.ActionSkip {
			s.Skipped++
			continue
		}
		s.Planned++
		s.PlannedByType[string(a.Type)]++
		if dryRun {
			continue
		}
		if a.Executed {
			s.Executed++
		} else {
			s.Failed++
		}
	}
	return s
}
