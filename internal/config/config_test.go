package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
jira:
  base_url: https://example.atlassian.net
  email: bot@example.com
  api_token: secret
teams:
  - id: alpha
    name: Team Alpha
    members:
      - account_id: a1
        display_name: Dev One
        role: DEV
        hours_per_day: 6
      - account_id: a2
        display_name: QA One
        role: QA
        hours_per_day: 5
        inactive: true
`

func TestFromYAMLDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Simulation.DailyVariance)
	assert.Equal(t, 0.25, cfg.Simulation.CompletionToleranceHours)
	assert.Equal(t, 500, cfg.Simulation.ActionDelayMillis)
	assert.Equal(t, 0.6, cfg.Simulation.Speed.OnTrack)
	assert.Equal(t, 0.1, cfg.Simulation.Speed.SevereDelay)
	assert.Equal(t, []string{"mon", "tue", "wed", "thu", "fri"}, cfg.Calendar.Workdays)
	assert.Equal(t, "Epic", cfg.Teams[0].EpicIssueType)
}

func TestFromYAMLInvalid(t *testing.T) {
	cases := map[string]string{
		"no teams":          `teams: []`,
		"empty team id":     "teams:\n  - name: x",
		"duplicate team id": "teams:\n  - id: a\n  - id: a",
		"bad variance": `
teams: [{id: a}]
simulation: {daily_variance: 1.5}`,
		"negative speed": `
teams: [{id: a}]
simulation: {speed: {on_track: -0.1}}`,
		"bad workday": `
teams: [{id: a}]
calendar: {workdays: [funday]}`,
		"bad holiday": `
teams: [{id: a}]
calendar: {holidays: ["03/04/2026"]}`,
		"bad alias category": `
teams: [{id: a}]
workflow: {status_aliases: {finished: [Done]}}`,
		"scheduler without trigger": `
teams: [{id: a}]
scheduler: {enabled: true}`,
	}
	for name, src := range cases {
		_, err := FromYAML([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestWeekdays(t *testing.T) {
	cfg, err := FromYAML([]byte(minimalYAML))
	require.NoError(t, err)
	wd := cfg.Weekdays()
	assert.True(t, wd[time.Monday])
	assert.True(t, wd[time.Friday])
	assert.False(t, wd[time.Saturday])
	assert.False(t, wd[time.Sunday])
}

func TestTeamByIDAndActiveMembers(t *testing.T) {
	cfg, err := FromYAML([]byte(minimalYAML))
	require.NoError(t, err)
	team := cfg.TeamByID("alpha")
	require.NotNil(t, team)
	assert.Nil(t, cfg.TeamByID("beta"))

	active := team.ActiveMembers()
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].AccountID)
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Teams)
	assert.False(t, cfg.Scheduler.Enabled)
}
