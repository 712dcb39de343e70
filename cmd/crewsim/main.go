package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crewsim/internal/calendar"
	"crewsim/internal/config"
	"crewsim/internal/db"
	"crewsim/internal/domain"
	"crewsim/internal/engine"
	"crewsim/internal/migrate"
	"crewsim/internal/repo"
	"crewsim/internal/scheduler"
	"crewsim/internal/server"
	"crewsim/internal/tracker"
)

var rootCmd = &cobra.Command{
	Use:   "crewsim",
	Short: "Crewsim CLI",
	Long: `Crewsim projects simulated days of team activity onto a work tracker.
Given a capacity plan (epics, stories, role phases with dates and assignees),
it plans one day of assignments, status transitions, and worklogs per team,
and optionally executes them against Jira. Runs are recorded in a local
SQLite workspace; at most one run executes at a time.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CREWSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(teamsCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate a default crewsim.yml in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var teamID, simDate string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate one day of activity for a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			if teamID == "" {
				return fmt.Errorf("--team required")
			}
			date := time.Now().UTC()
			if simDate != "" {
				parsed, err := time.Parse("2006-01-02", simDate)
				if err != nil {
					return fmt.Errorf("invalid --date, expected YYYY-MM-DD: %w", err)
				}
				date = parsed
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.Run(ctx, teamID, date, dryRun)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				printRunDetail(rec)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id")
	cmd.Flags().StringVar(&simDate, "date", "", "simulation date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only, do not touch the tracker")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func runsCmd() *cobra.Command {
	runs := &cobra.Command{Use: "runs", Short: "Inspect recorded runs"}
	runs.AddCommand(runsListCmd())
	runs.AddCommand(runsShowCmd())
	return runs
}

func runsListCmd() *cobra.Command {
	var teamID, from, to string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRuns(ctx, repo.RunFilters{TeamID: teamID, From: from, To: to, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Team", "Date", "Dry", "Status", "Planned", "Executed", "Failed", "Started"})
				for _, rec := range items {
					planned, executed, failed := 0, 0, 0
					if rec.Summary != nil {
						planned, executed, failed = rec.Summary.Planned, rec.Summary.Executed, rec.Summary.Failed
					}
					t.AppendRow(table.Row{rec.ID, rec.TeamID, rec.SimDate, rec.DryRun, rec.Status, planned, executed, failed, rec.StartedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "filter by team id")
	cmd.Flags().StringVar(&from, "from", "", "min sim date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "max sim date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func runsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show one run with its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rec, err := r.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				printRunDetail(rec)
				return nil
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a run is in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				running, err := r.AnyRunning(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]bool{"running": running})
				}
				if running {
					fmt.Println("A simulation run is in progress.")
				} else {
					fmt.Println("Idle.")
				}
				return nil
			})
		},
	}
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Manage capacity plans"}
	plan.AddCommand(planImportCmd())
	plan.AddCommand(planShowCmd())
	return plan
}

func planImportCmd() *cobra.Command {
	var teamID, filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a capacity plan from JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if teamID == "" {
				return fmt.Errorf("--team required")
			}
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var plan domain.CapacityPlan
			if err := json.Unmarshal(data, &plan); err != nil {
				return fmt.Errorf("invalid plan json: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.ImportPlan(ctx, teamID, plan); err != nil {
					return err
				}
				fmt.Printf("Imported plan for team %s (%d epics)\n", teamID, len(plan.Epics))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id")
	cmd.Flags().StringVar(&filePath, "file", "", "path to plan JSON")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func planShowCmd() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored capacity plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if teamID == "" {
				return fmt.Errorf("--team required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plan, err := r.GetPlan(ctx, teamID)
				if err != nil {
					return err
				}
				return printJSON(plan)
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func teamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List configured teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg.Teams)
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Name", "Member", "Role", "h/day", "Active"})
			for _, team := range cfg.Teams {
				for _, m := range team.Members {
					t.AppendRow(table.Row{team.ID, team.Name, m.DisplayName, m.Role, m.HoursPerDay, !m.Inactive})
				}
			}
			t.Render()
			return nil
		},
	}
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.NewString()
				rec := domain.APIKey{
					ID:      uuid.NewString(),
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, rec); err != nil {
					return err
				}
				fmt.Printf("API key created (id %s). Store it now, it is not shown again:\n%s\n", rec.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSON(keys)
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	logRoot.AddCommand(logTailCmd())
	return logRoot
}

func logTailCmd() *cobra.Command {
	var n int
	var teamID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, teamID, evtType)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&teamID, "team", "", "team filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, cfg, newTracker(cfg))
			secret := cfg.Server.JWTSecret
			if env := os.Getenv("CREWSIM_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("server.jwt_secret (or CREWSIM_JWT_SECRET) is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
			})
			if err != nil {
				return err
			}
			if cfg.Scheduler.Enabled {
				sched := scheduler.New(cfg, calendar.New(cfg), e)
				go sched.Start(cmd.Context())
				defer sched.Stop()
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Crewsim API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg, newTracker(cfg)))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func newTracker(cfg *config.Config) tracker.Client {
	token := cfg.Jira.APIToken
	if env := os.Getenv("CREWSIM_JIRA_TOKEN"); env != "" {
		token = env
	}
	return tracker.NewJira(cfg.Jira.BaseURL, cfg.Jira.Email, token)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRunDetail(rec domain.RunRecord) {
	fmt.Printf("Run %s  team=%s date=%s dry_run=%v status=%s\n", rec.ID, rec.TeamID, rec.SimDate, rec.DryRun, rec.Status)
	if rec.Error != nil {
		fmt.Printf("Error: %s\n", *rec.Error)
	}
	if rec.Summary != nil {
		fmt.Printf("Planned %d, executed %d, failed %d, skipped %d\n",
			rec.Summary.Planned, rec.Summary.Executed, rec.Summary.Failed, rec.Summary.Skipped)
	}
	if len(rec.Actions) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Type", "Issue", "Assignee", "From", "To", "Hours", "Reason", "OK", "Error"})
	for _, a := range rec.Actions {
		t.AppendRow(table.Row{
			a.Type, a.IssueKey, a.AssigneeName,
			strOrDash(a.FromStatus), strOrDash(a.ToStatus), hoursOrDash(a.HoursLogged),
			a.Reason, a.Executed, strOrDash(a.Error),
		})
	}
	t.Render()
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func hoursOrDash(h *float64) string {
	if h == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *h)
}
