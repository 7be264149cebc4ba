package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/stores"
)

// retentionSchedule runs the trace store sweep once a day.
const retentionSchedule = "0 3 * * *"

// Scheduler runs configured workflow schedules and the store retention
// sweep while the server is up.
type Scheduler struct {
	workflow *aiq.Workflow
	store    stores.RunStore
	cfg      *config.Config
	cron     *cron.Cron
	logger   *log.Logger
}

// NewScheduler registers the config's schedules and, when the store has a
// retention policy, the daily sweep.
func NewScheduler(workflow *aiq.Workflow, store stores.RunStore, cfg *config.Config) *Scheduler {
	s := &Scheduler{
		workflow: workflow,
		store:    store,
		cfg:      cfg,
		cron:     cron.New(),
		logger:   log.New(os.Stdout, "[scheduler] ", log.LstdFlags),
	}

	for _, sched := range cfg.Schedules {
		sched := sched
		_, err := s.cron.AddFunc(sched.Cron, func() {
			s.runSchedule(sched)
		})
		if err != nil {
			s.logger.Printf("Warning: invalid cron expression for schedule '%s': %v", sched.Name, err)
			continue
		}
		s.logger.Printf("Registered schedule '%s' (%s)", sched.Name, sched.Cron)
	}

	if store != nil && cfg.Store.RetentionDays > 0 {
		_, err := s.cron.AddFunc(retentionSchedule, s.pruneExpiredRuns)
		if err != nil {
			s.logger.Printf("Warning: failed to register retention sweep: %v", err)
		}
	}

	return s
}

// Start begins firing schedules. Safe to call with none registered.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runSchedule(sched config.Schedule) {
	runID := uuid.New().String()
	s.logger.Printf("Schedule '%s' firing (run %s)", sched.Name, runID)

	if s.store != nil {
		err := s.store.CreateRun(&stores.Run{
			RunID:            runID,
			Channel:          "schedule",
			Input:            sched.Input,
			UseKnowledgeBase: sched.UseKnowledgeBase,
			Status:           "running",
			StartedAt:        time.Now(),
		})
		if err != nil {
			s.logger.Printf("Warning: failed to record run for schedule '%s': %v", sched.Name, err)
		}
	}

	output, steps, err := s.workflow.Run(context.Background(), sched.Input, sched.UseKnowledgeBase)
	if s.store != nil {
		if saveErr := s.store.SaveSteps(runID, stores.FromSteps(steps)); saveErr != nil {
			s.logger.Printf("Warning: failed to save steps for schedule '%s': %v", sched.Name, saveErr)
		}
		if completeErr := s.store.CompleteRun(runID, output, err); completeErr != nil {
			s.logger.Printf("Warning: failed to complete run for schedule '%s': %v", sched.Name, completeErr)
		}
	}
	if err != nil {
		s.logger.Printf("Schedule '%s' failed: %v", sched.Name, err)
		return
	}
	s.logger.Printf("Schedule '%s' completed", sched.Name)
}

// pruneExpiredRuns deletes runs older than the configured retention window
func (s *Scheduler) pruneExpiredRuns() {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.Store.RetentionDays)
	pruned, err := s.store.PruneBefore(cutoff)
	if err != nil {
		s.logger.Printf("Retention sweep failed: %v", err)
		return
	}
	if pruned > 0 {
		s.logger.Printf("Retention sweep removed %d runs older than %s", pruned, cutoff.Format(time.RFC3339))
	}
}
