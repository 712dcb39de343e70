package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"crewsim/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrRunActive means another run currently holds the running slot.
	ErrRunActive = errors.New("a simulation run is already in progress")
)

// ClaimRun atomically inserts a RUNNING run record. The partial unique index
// runs_single_running makes the insert itself the claim: under concurrent
// callers exactly one insert succeeds and the rest get ErrRunActive. The
// guard is global across teams, not per team.
func (r Repo) ClaimRun(ctx context.Context, rec domain.RunRecord) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO runs(id,team_id,sim_date,dry_run,status,started_at) VALUES (?,?,?,?,?,?)`,
		rec.ID, rec.TeamID, rec.SimDate, boolInt(rec.DryRun), domain.RunRunning, rec.StartedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrRunActive
		}
		return err
	}
	return nil
}

// CompleteRun finalizes a run exactly once with its actions and summary.
func (r Repo) CompleteRun(ctx context.Context, tx *sql.Tx, id string, actions []domain.Action, summary domain.Summary, completedAt string) error {
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE runs SET actions_json=?, summary_json=?, status=?, completed_at=? WHERE id=? AND status=?`,
		string(actionsJSON), string(summaryJSON), domain.RunCompleted, completedAt, id, domain.RunRunning)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailRun finalizes a run as failed, keeping whatever actions were planned.
func (r Repo) FailRun(ctx context.Context, tx *sql.Tx, id string, actions []domain.Action, message, completedAt string) error {
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE runs SET actions_json=?, status=?, error=?, completed_at=? WHERE id=? AND status=?`,
		string(actionsJSON), domain.RunFailed, nullable(message), completedAt, id, domain.RunRunning)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id,team_id,sim_date,dry_run,actions_json,summary_json,status,error,started_at,completed_at`

func scanRun(scan func(dest ...any) error) (domain.RunRecord, error) {
	var rec domain.RunRecord
	var dryRun int
	var actionsJSON, summaryJSON, errMsg, completedAt sql.NullString
	if err := scan(&rec.ID, &rec.TeamID, &rec.SimDate, &dryRun, &actionsJSON, &summaryJSON, &rec.Status, &errMsg, &rec.StartedAt, &completedAt); err != nil {
		return rec, err
	}
	rec.DryRun = dryRun != 0
	if actionsJSON.Valid && actionsJSON.String != "" {
		if err := json.Unmarshal([]byte(actionsJSON.String), &rec.Actions); err != nil {
			return rec, fmt.Errorf("unmarshal actions: %w", err)
		}
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var s domain.Summary
		if err := json.Unmarshal([]byte(summaryJSON.String), &s); err != nil {
			return rec, fmt.Errorf("unmarshal summary: %w", err)
		}
		rec.Summary = &s
	}
	if errMsg.Valid {
		rec.Error = &errMsg.String
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.String
	}
	return rec, nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.RunRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id)
	rec, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	return rec, err
}

// RunFilters bounds a run listing.
type RunFilters struct {
	TeamID string
	From   string
	To     string
	Limit  int
}

func (r Repo) ListRuns(ctx context.Context, f RunFilters) ([]domain.RunRecord, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
	}
	if f.From != "" {
		clauses = append(clauses, "sim_date>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "sim_date<=?")
		args = append(args, f.To)
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY started_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// AnyRunning reports whether a run currently holds the running slot.
func (r Repo) AnyRunning(ctx context.Context) (bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT 1 FROM runs WHERE status=? LIMIT 1`, domain.RunRunning)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

// UpsertPlan stores a team's capacity plan document.
func (r Repo) UpsertPlan(ctx context.Context, tx *sql.Tx, teamID string, plan domain.CapacityPlan, updatedAt string) error {
	plan.TeamID = teamID
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO capacity_plans(team_id,plan_json,updated_at) VALUES (?,?,?)
ON CONFLICT(team_id) DO UPDATE SET plan_json=excluded.plan_json, updated_at=excluded.updated_at`, teamID, string(payload), updatedAt)
	return err
}

func (r Repo) GetPlan(ctx context.Context, teamID string) (domain.CapacityPlan, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT plan_json FROM capacity_plans WHERE team_id=?`, teamID).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.CapacityPlan{}, ErrNotFound
	}
	if err != nil {
		return domain.CapacityPlan{}, err
	}
	var plan domain.CapacityPlan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return domain.CapacityPlan{}, fmt.Errorf("unmarshal plan: %w", err)
	}
	if plan.TeamID == "" {
		plan.TeamID = teamID
	}
	return plan, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
