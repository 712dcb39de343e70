package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crewsim/internal/calendar"
	"crewsim/internal/config"
	"crewsim/internal/deviation"
	"crewsim/internal/domain"
	"crewsim/internal/events"
	"crewsim/internal/repo"
	"crewsim/internal/tracker"
	"crewsim/internal/workflow"
)

// Target status strings requested by the planner. The executor resolves them
// against whatever transitions the tracker actually offers.
const (
	StatusInProgress = "In Progress"
	StatusDone       = "Done"
)

// Engine plans and executes one simulated day of team activity.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Calendar  *calendar.Calendar
	Workflow  *workflow.Categorizer
	Tracker   tracker.Client
	Deviation *deviation.Model
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config, tr tracker.Client) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Calendar:  calendar.New(cfg),
		Workflow:  workflow.New(cfg),
		Tracker:   tr,
		Deviation: deviation.NewSeeded(uint64(time.Now().UnixNano())),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ImportPlan stores a team's externally computed capacity plan.
func (e Engine) ImportPlan(ctx context.Context, teamID string, plan domain.CapacityPlan) error {
	if e.Config.TeamByID(teamID) == nil {
		return fmt.Errorf("unknown team %s", teamID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpsertPlan(ctx, tx, teamID, plan, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "plan.imported", teamID, "plan", teamID, events.EventPayload{
		"epics": len(plan.Epics),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// speedProbabilities adapts the configured buckets for the deviation model.
func (e Engine) speedProbabilities() deviation.SpeedProbabilities {
	s := e.Config.Simulation.Speed
	return deviation.SpeedProbabilities{
		OnTrack:     s.OnTrack,
		Early:       s.Early,
		Delay:       s.Delay,
		SevereDelay: s.SevereDelay,
	}
}

// roster indexes a team's active members by tracker account id.
func (e Engine) roster(team *config.Team) map[string]domain.RosterMember {
	out := map[string]domain.RosterMember{}
	for _, m := range team.ActiveMembers() {
		out[m.AccountID] = domain.RosterMember{
			AccountID:   m.AccountID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			HoursPerDay: m.HoursPerDay,
		}
	}
	return out
}
