package workflow

import (
	"strings"

	"crewsim/internal/config"
	"crewsim/internal/domain"
)

// Categorizer maps raw tracker statuses to coarse lifecycle categories and
// subtask issue types to pipeline role codes. Config aliases win over the
// built-in heuristics.
type Categorizer struct {
	roles   map[string]string
	aliases map[string]domain.StatusCategory
}

func New(cfg *config.Config) *Categorizer {
	c := &Categorizer{
		roles:   map[string]string{},
		aliases: map[string]domain.StatusCategory{},
	}
	for issueType, role := range cfg.Workflow.Roles {
		c.roles[strings.ToLower(issueType)] = role
	}
	for cat, names := range cfg.Workflow.StatusAliases {
		for _, name := range names {
			c.aliases[strings.ToLower(strings.TrimSpace(name))] = domain.StatusCategory(cat)
		}
	}
	return c
}

// Substring heuristics covering the locales seen in the wild. Done is checked
// before in-progress so "closed in review" style names resolve as done.
var (
	doneHints = []string{
		"done", "closed", "close", "resolved", "resolve", "complete", "cancel",
		"готово", "закрыт", "решен", "отменен",
		"fertig", "erledigt", "geschlossen",
		"terminé", "fermé", "résolu",
		"完了", "完成",
	}
	inProgressHints = []string{
		"progress", "review", "developing", "testing", "doing",
		"работ", "выполня", "проверк", "ревью",
		"bearbeitung", "en cours", "進行", "处理",
	}
	newHints = []string{
		"to do", "todo", "open", "new", "backlog", "created", "draft",
		"новая", "новое", "открыт", "бэклог",
		"offen", "neu", "nouveau", "à faire",
	}
)

// Categorize resolves a raw status name for an issue type into a lifecycle
// bucket. The issue type is accepted for parity with tracker-side workflow
// schemes that scope statuses per type; the current mapping is type-agnostic.
func (c *Categorizer) Categorize(status, issueType string) domain.StatusCategory {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return domain.CategoryUnknown
	}
	if cat, ok := c.aliases[s]; ok {
		return cat
	}
	for _, hint := range doneHints {
		if strings.Contains(s, hint) {
			return domain.CategoryDone
		}
	}
	for _, hint := range inProgressHints {
		if strings.Contains(s, hint) {
			return domain.CategoryInProgress
		}
	}
	for _, hint := range newHints {
		if strings.Contains(s, hint) {
			return domain.CategoryNew
		}
	}
	return domain.CategoryUnknown
}

// IsDone reports whether the status resolves to the done bucket.
func (c *Categorizer) IsDone(status, issueType string) bool {
	return c.Categorize(status, issueType) == domain.CategoryDone
}

// SubtaskRole maps a subtask issue-type name to its pipeline role code, or ""
// when the type is not part of the configured pipeline.
func (c *Categorizer) SubtaskRole(issueType string) string {
	return c.roles[strings.ToLower(issueType)]
}
