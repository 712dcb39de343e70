package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models crewsim.yml.
type Config struct {
	Jira struct {
		BaseURL  string `yaml:"base_url"`
		Email    string `yaml:"email"`
		APIToken string `yaml:"api_token"`
	} `yaml:"jira"`
	Teams    []Team `yaml:"teams"`
	Workflow struct {
		// Roles maps a subtask issue-type name to a pipeline role code.
		Roles map[string]string `yaml:"roles"`
		// StatusAliases adds project-specific status names on top of the
		// built-in multi-locale heuristics, keyed by category.
		StatusAliases map[string][]string `yaml:"status_aliases"`
	} `yaml:"workflow"`
	Simulation struct {
		DailyVariance            float64 `yaml:"daily_variance"`
		CompletionToleranceHours float64 `yaml:"completion_tolerance_hours"`
		ActionDelayMillis        int     `yaml:"action_delay_millis"`
		Speed                    struct {
			OnTrack     float64 `yaml:"on_track"`
			Early       float64 `yaml:"early"`
			Delay       float64 `yaml:"delay"`
			SevereDelay float64 `yaml:"severe_delay"`
		} `yaml:"speed"`
	} `yaml:"simulation"`
	Scheduler struct {
		Enabled bool   `yaml:"enabled"`
		At      string `yaml:"at"`
		Every   string `yaml:"every"`
		DryRun  bool   `yaml:"dry_run"`
	} `yaml:"scheduler"`
	Calendar struct {
		Workdays []string `yaml:"workdays"`
		Holidays []string `yaml:"holidays"`
	} `yaml:"calendar"`
	Server struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// Team is a configured roster of members driving one capacity plan.
type Team struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	EpicIssueType string   `yaml:"epic_issue_type"`
	Members       []Member `yaml:"members"`
}

// Member is one roster entry.
type Member struct {
	AccountID   string  `yaml:"account_id"`
	DisplayName string  `yaml:"display_name"`
	Role        string  `yaml:"role"`
	HoursPerDay float64 `yaml:"hours_per_day"`
	Inactive    bool    `yaml:"inactive"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run 'crewsim init' to generate one", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func applyDefaults(c *Config) {
	if c.Simulation.DailyVariance == 0 {
		c.Simulation.DailyVariance = 0.3
	}
	if c.Simulation.CompletionToleranceHours == 0 {
		c.Simulation.CompletionToleranceHours = 0.25
	}
	if c.Simulation.ActionDelayMillis == 0 {
		c.Simulation.ActionDelayMillis = 500
	}
	if c.Simulation.Speed.OnTrack == 0 && c.Simulation.Speed.Early == 0 &&
		c.Simulation.Speed.Delay == 0 && c.Simulation.Speed.SevereDelay == 0 {
		c.Simulation.Speed.OnTrack = 0.6
		c.Simulation.Speed.Early = 0.15
		c.Simulation.Speed.Delay = 0.15
		c.Simulation.Speed.SevereDelay = 0.1
	}
	if len(c.Calendar.Workdays) == 0 {
		c.Calendar.Workdays = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	for i := range c.Teams {
		if c.Teams[i].EpicIssueType == "" {
			c.Teams[i].EpicIssueType = "Epic"
		}
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Teams) == 0 {
		return fmt.Errorf("config.teams must list at least one team")
	}
	seen := map[string]bool{}
	for _, t := range c.Teams {
		if t.ID == "" {
			return fmt.Errorf("config.teams contains empty team id")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate team id %s", t.ID)
		}
		seen[t.ID] = true
		for _, m := range t.Members {
			if m.AccountID == "" {
				return fmt.Errorf("team %s has member with empty account_id", t.ID)
			}
			if m.HoursPerDay < 0 {
				return fmt.Errorf("member %s has negative hours_per_day", m.AccountID)
			}
		}
	}
	if v := c.Simulation.DailyVariance; v < 0 || v >= 1 {
		return fmt.Errorf("simulation.daily_variance must be in [0,1), got %v", v)
	}
	if c.Simulation.CompletionToleranceHours < 0 {
		return fmt.Errorf("simulation.completion_tolerance_hours must be >= 0")
	}
	// Speed probabilities are intentionally not required to sum to 1; the
	// draw uses cumulative thresholds over whatever is configured.
	for name, p := range map[string]float64{
		"on_track":     c.Simulation.Speed.OnTrack,
		"early":        c.Simulation.Speed.Early,
		"delay":        c.Simulation.Speed.Delay,
		"severe_delay": c.Simulation.Speed.SevereDelay,
	} {
		if p < 0 {
			return fmt.Errorf("simulation.speed.%s must be >= 0", name)
		}
	}
	if c.Scheduler.Enabled && c.Scheduler.At == "" && c.Scheduler.Every == "" {
		return fmt.Errorf("scheduler.at or scheduler.every required when scheduler is enabled")
	}
	for _, d := range c.Calendar.Workdays {
		if _, ok := weekdayNames[strings.ToLower(d)]; !ok {
			return fmt.Errorf("calendar.workdays contains unknown day %q", d)
		}
	}
	for _, h := range c.Calendar.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("calendar.holidays entry %q is not YYYY-MM-DD", h)
		}
	}
	for k := range c.Workflow.StatusAliases {
		switch k {
		case "new", "in_progress", "done":
		default:
			return fmt.Errorf("workflow.status_aliases has unknown category %q", k)
		}
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// Weekdays resolves calendar.workdays into time.Weekday values.
func (c *Config) Weekdays() map[time.Weekday]bool {
	out := map[time.Weekday]bool{}
	for _, d := range c.Calendar.Workdays {
		if wd, ok := weekdayNames[strings.ToLower(d)]; ok {
			out[wd] = true
		}
	}
	return out
}

// TeamByID returns the configured team, or nil when unknown.
func (c *Config) TeamByID(id string) *Team {
	for i := range c.Teams {
		if c.Teams[i].ID == id {
			return &c.Teams[i]
		}
	}
	return nil
}

// ActiveMembers returns the team's roster excluding inactive entries.
func (t *Team) ActiveMembers() []Member {
	var out []Member
	for _, m := range t.Members {
		if !m.Inactive {
			out = append(out, m)
		}
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crewsim.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `jira:
  base_url: https://your-site.atlassian.net
  email: bot@example.com
  api_token: ${CREWSIM_JIRA_TOKEN}

teams:
  - id: alpha
    name: Team Alpha
    epic_issue_type: Epic
    members:
      - account_id: "5f000000000000000000a001"
        display_name: Dev One
        role: DEV
        hours_per_day: 6
      - account_id: "5f000000000000000000a002"
        display_name: QA One
        role: QA
        hours_per_day: 5

workflow:
  roles:
    Development: DEV
    Testing: QA
    Analysis: SA
  status_aliases:
    done: [Closed, Resolved]
    in_progress: [In Review]

simulation:
  daily_variance: 0.3
  completion_tolerance_hours: 0.25
  action_delay_millis: 500
  speed:
    on_track: 0.6
    early: 0.15
    delay: 0.15
    severe_delay: 0.1

scheduler:
  enabled: false
  at: "09:30"
  dry_run: false

calendar:
  workdays: [mon, tue, wed, thu, fri]
  holidays: []
`
