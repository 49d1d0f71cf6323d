package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

const JobAssignmentBackfill = "assignment_backfill"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunStore keeps one row per job execution.
type RunStore interface {
	StartRun(ctx context.Context, tenantID, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
}

type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

type Recorder interface {
	JobFinished(job, status string)
}

// TenantFunc runs one job for one tenant and returns details worth keeping.
type TenantFunc func(ctx context.Context, tenantID string) (any, error)

type Service struct {
	runs     RunStore
	tenants  TenantLister
	backfill TenantFunc
	schedule string
	metrics  Recorder
	queue    chan job

	mu        sync.Mutex
	scheduler *cron.Cron
}

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
}

func New(runs RunStore, tenants TenantLister, backfill TenantFunc, schedule string, metrics Recorder) *Service {
	return &Service{
		runs:     runs,
		tenants:  tenants,
		backfill: backfill,
		schedule: schedule,
		metrics:  metrics,
		queue:    make(chan job, 128),
	}
}

// Start runs the worker and, when a schedule is configured, the cron
// scheduler. Both stop when ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	go s.worker(ctx)
	if s.schedule == "" || s.backfill == nil {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.schedule, func() {
		if ctx.Err() != nil {
			return
		}
		s.EnqueueBackfills(ctx)
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", JobAssignmentBackfill, err)
	}
	scheduler.Start()

	s.mu.Lock()
	s.scheduler = scheduler
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}

func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
		return false
	}
}

// EnqueueBackfills queues one backfill per tenant and returns how many were queued.
func (s *Service) EnqueueBackfills(ctx context.Context) int {
	tenants, err := s.tenants.ListTenants(ctx)
	if err != nil {
		slog.Warn("backfill scheduler tenant lookup failed", "err", err)
		return 0
	}
	queued := 0
	for _, tenantID := range tenants {
		tenant := tenantID
		if s.Enqueue(JobAssignmentBackfill, tenant, func(ctx context.Context) (any, error) {
			return s.backfill(ctx, tenant)
		}) {
			queued++
		}
	}
	return queued
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

// RunBackfillNow reconciles one tenant synchronously.
func (s *Service) RunBackfillNow(ctx context.Context, tenantID string) (any, error) {
	return s.RunNow(ctx, JobAssignmentBackfill, tenantID, func(ctx context.Context) (any, error) {
		return s.backfill(ctx, tenantID)
	})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID, err := s.runs.StartRun(ctx, j.TenantID, j.Type)
	if err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		details = map[string]any{"error": err.Error(), "result": details}
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.runs.FinishRun(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	if s.metrics != nil {
		s.metrics.JobFinished(j.Type, status)
	}
	return details, err
}
