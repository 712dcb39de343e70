package server

import (
	"crewsim/internal/config"
	"crewsim/internal/domain"
)

// StartRunRequest triggers a simulation run for one team.
type StartRunRequest struct {
	SimDate string `json:"sim_date,omitempty" format:"date" example:"2026-03-02"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// RunResponse is the API view of a persisted run record.
type RunResponse struct {
	ID          string          `json:"id"`
	TeamID      string          `json:"team_id"`
	SimDate     string          `json:"sim_date" format:"date"`
	DryRun      bool            `json:"dry_run"`
	Status      string          `json:"status" enum:"running,completed,failed"`
	Actions     []domain.Action `json:"actions"`
	Summary     *domain.Summary `json:"summary,omitempty"`
	Error       *string         `json:"error,omitempty"`
	StartedAt   string          `json:"started_at" format:"date-time"`
	CompletedAt *string         `json:"completed_at,omitempty" format:"date-time"`
}

func runResponse(rec domain.RunRecord) RunResponse {
	if rec.Actions == nil {
		rec.Actions = []domain.Action{}
	}
	return RunResponse{
		ID:          rec.ID,
		TeamID:      rec.TeamID,
		SimDate:     rec.SimDate,
		DryRun:      rec.DryRun,
		Status:      rec.Status,
		Actions:     rec.Actions,
		Summary:     rec.Summary,
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
}

func mapRuns(items []domain.RunRecord) []RunResponse {
	out := make([]RunResponse, 0, len(items))
	for _, rec := range items {
		out = append(out, runResponse(rec))
	}
	return out
}

// StatusResponse reports whether a run currently holds the running slot.
type StatusResponse struct {
	Running bool `json:"running"`
}

// TeamMemberResponse is a configured member of a team roster.
type TeamMemberResponse struct {
	AccountID   string  `json:"account_id"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role,omitempty"`
	HoursPerDay float64 `json:"hours_per_day"`
	Inactive    bool    `json:"inactive,omitempty"`
}

// TeamResponse is a configured team.
type TeamResponse struct {
	ID      string               `json:"id"`
	Name    string               `json:"name"`
	Members []TeamMemberResponse `json:"members"`
}

func teamResponse(t config.Team) TeamResponse {
	members := make([]TeamMemberResponse, 0, len(t.Members))
	for _, m := range t.Members {
		members = append(members, TeamMemberResponse{
			AccountID:   m.AccountID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			HoursPerDay: m.HoursPerDay,
			Inactive:    m.Inactive,
		})
	}
	return TeamResponse{ID: t.ID, Name: t.Name, Members: members}
}

// EventResponse is one audit event row.
type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TeamID     string `json:"team_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, ev := range items {
		out = append(out, EventResponse{
			ID:         ev.ID,
			TS:         ev.TS,
			Type:       ev.Type,
			TeamID:     ev.TeamID,
			EntityKind: ev.EntityKind,
			EntityID:   ev.EntityID,
			Payload:    ev.Payload,
		})
	}
	return out
}
