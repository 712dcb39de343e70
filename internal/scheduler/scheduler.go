package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"crewsim/internal/calendar"
	"crewsim/internal/config"
	"crewsim/internal/domain"
	"crewsim/internal/repo"
)

// Runner starts one simulation run for a team. Satisfied by engine.Engine.
type Runner interface {
	Run(ctx context.Context, teamID string, date time.Time, dryRun bool) (domain.RunRecord, error)
}

// Scheduler triggers daily simulation runs on a wall-clock schedule. Teams
// run sequentially within a tick; one team failing never stops the others.
type Scheduler struct {
	cfg      *config.Config
	cal      *calendar.Calendar
	runner   Runner
	stopChan chan struct{}
	lastRun  time.Time
	now      func() time.Time
}

func New(cfg *config.Config, cal *calendar.Calendar, runner Runner) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		cal:      cal,
		runner:   runner,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start runs the scheduler loop until Stop is called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("scheduler started (at=%q every=%q dry_run=%v)",
		s.cfg.Scheduler.At, s.cfg.Scheduler.Every, s.cfg.Scheduler.DryRun)
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopChan:
			log.Println("scheduler stopped")
			return
		case <-ctx.Done():
			log.Println("scheduler stopped")
			return
		}
	}
}

// Stop ends the scheduler loop.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due, err := s.shouldRun(now)
	if err != nil {
		log.Printf("scheduler: %v", err)
		return
	}
	if !due {
		return
	}
	if !s.cal.IsWorkday(now) {
		s.lastRun = now
		return
	}
	s.lastRun = now
	s.runAll(ctx, now)
}

// runAll simulates the current day for every configured team, isolating
// failures per team.
func (s *Scheduler) runAll(ctx context.Context, date time.Time) {
	for _, team := range s.cfg.Teams {
		rec, err := s.runner.Run(ctx, team.ID, date, s.cfg.Scheduler.DryRun)
		if errors.Is(err, repo.ErrRunActive) {
			log.Printf("scheduler: team %s skipped, another run is in progress", team.ID)
			continue
		}
		if err != nil {
			log.Printf("scheduler: team %s run failed: %v", team.ID, err)
			continue
		}
		if rec.Summary != nil {
			log.Printf("scheduler: team %s run %s done (planned=%d executed=%d failed=%d)",
				team.ID, rec.ID, rec.Summary.Planned, rec.Summary.Executed, rec.Summary.Failed)
		}
	}
}

// shouldRun decides whether this minute tick fires. A fixed "at" time fires
// once per day; an "every" interval fires when enough time elapsed since the
// last trigger.
func (s *Scheduler) shouldRun(now time.Time) (bool, error) {
	if s.cfg.Scheduler.At != "" {
		hour, minute, err := parseAtTime(s.cfg.Scheduler.At)
		if err != nil {
			return false, fmt.Errorf("invalid schedule time %q: %w", s.cfg.Scheduler.At, err)
		}
		if now.Hour() != hour || now.Minute() != minute {
			return false, nil
		}
		return s.lastRun.IsZero() || now.Sub(s.lastRun) >= 23*time.Hour, nil
	}
	if s.cfg.Scheduler.Every != "" {
		interval, err := time.ParseDuration(s.cfg.Scheduler.Every)
		if err != nil {
			return false, fmt.Errorf("invalid schedule interval %q: %w", s.cfg.Scheduler.Every, err)
		}
		return s.lastRun.IsZero() || now.Sub(s.lastRun) >= interval, nil
	}
	return false, nil
}

// parseAtTime parses "HH:MM".
func parseAtTime(at string) (hour, minute int, err error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour")
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute")
	}
	return hour, minute, nil
}
