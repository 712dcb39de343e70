package domain

// ActionType enumerates the units of simulated activity a planner can emit.
type ActionType string

const (
	ActionAssign     ActionType = "assign"
	ActionTransition ActionType = "transition"
	ActionWorklog    ActionType = "worklog"
	ActionSkip       ActionType = "skip"
)

// StatusCategory is the coarse lifecycle bucket a raw status string maps to.
type StatusCategory string

const (
	CategoryNew        StatusCategory = "new"
	CategoryInProgress StatusCategory = "in_progress"
	CategoryDone       StatusCategory = "done"
	CategoryUnknown    StatusCategory = "unknown"
)

// Action is one intended unit of simulated activity. The planner creates it,
// the executor fills in Executed/Error and the resolved target status; once a
// run completes the action list is frozen in the run record.
type Action struct {
	Type         ActionType `json:"type" enum:"assign,transition,worklog,skip"`
	IssueKey     string     `json:"issue_key"`
	IssueType    string     `json:"issue_type"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	AssigneeID   *string    `json:"assignee_id,omitempty"`
	FromStatus   *string    `json:"from_status,omitempty"`
	ToStatus     *string    `json:"to_status,omitempty"`
	HoursLogged  *float64   `json:"hours_logged,omitempty"`
	Reason       string     `json:"reason"`
	Executed     bool       `json:"executed"`
	Error        *string    `json:"error,omitempty"`
}

// PhaseSchedule is one role's scheduled window of work on a story, supplied
// by the externally computed capacity plan.
type PhaseSchedule struct {
	Role                string  `json:"role"`
	StartDate           *string `json:"start_date,omitempty" format:"date"`
	EndDate             *string `json:"end_date,omitempty" format:"date"`
	AssigneeAccountID   *string `json:"assignee_account_id,omitempty"`
	AssigneeDisplayName string  `json:"assignee_display_name,omitempty"`
}

// PlannedStory is a story row of a capacity plan, keyed by role phases.
type PlannedStory struct {
	StoryKey  string                   `json:"story_key"`
	Status    string                   `json:"status"`
	IssueType string                   `json:"issue_type"`
	Phases    map[string]PhaseSchedule `json:"phases"`
}

// PlannedEpic is an epic row of a capacity plan.
type PlannedEpic struct {
	EpicKey   string         `json:"epic_key"`
	Status    string         `json:"status"`
	IssueType string         `json:"issue_type"`
	Stories   []PlannedStory `json:"stories"`
}

// CapacityPlan is the externally computed epic/story/phase schedule for a team.
type CapacityPlan struct {
	TeamID string        `json:"team_id" required:"false"`
	Epics  []PlannedEpic `json:"epics"`
}

// RosterMember is an active team member eligible for phase assignments.
type RosterMember struct {
	AccountID   string  `json:"account_id"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role,omitempty"`
	HoursPerDay float64 `json:"hours_per_day"`
}

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Summary tallies a run's actions by type and outcome. For a dry run only the
// planned counts are meaningful; executed/failed stay zero.
type Summary struct {
	Planned       int            `json:"planned"`
	Executed      int            `json:"executed"`
	Failed        int            `json:"failed"`
	Skipped       int            `json:"skipped"`
	PlannedByType map[string]int `json:"planned_by_type,omitempty"`
}

// RunRecord is the append-only persisted record of one simulation run.
// At most one record with status running exists at any time, across all teams.
type RunRecord struct {
	ID          string   `json:"id"`
	TeamID      string   `json:"team_id"`
	SimDate     string   `json:"sim_date" format:"date"`
	DryRun      bool     `json:"dry_run"`
	Actions     []Action `json:"actions"`
	Summary     *Summary `json:"summary,omitempty"`
	Status      string   `json:"status" enum:"running,completed,failed"`
	Error       *string  `json:"error,omitempty"`
	StartedAt   string   `json:"started_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

// Event is one append-only audit row describing a state change.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TeamID     string `json:"team_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates an API caller; only the sha256 hash is stored.
type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
