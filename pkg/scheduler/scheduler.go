// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scheduler drives the periodic repair and derivation jobs on
// independent cron cadences. Each job tolerates overlap with ingestion
// and with the other jobs; the schedule only decides how stale the
// derived state is allowed to get.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

// Job is one schedulable unit of batch work
type Job struct {
	// Name appears in logs and audit records
	Name string
	// Spec is a cron expression; @every and @hourly style descriptors
	// are supported
	Spec string
	// Timeout bounds one execution
	Timeout time.Duration
	// Run is the job body, typically a jobs.Runner invocation
	Run func(ctx context.Context) error
}

// Scheduler owns the cron loop
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
}

// New creates a stopped scheduler
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With("component", "scheduler"),
	}
}

// Register adds a job to the schedule. Returns an error on an invalid
// cron spec.
func (s *Scheduler) Register(job Job) error {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	_, err := s.cron.AddFunc(job.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := job.Run(ctx); err != nil {
			s.log.Warn("scheduled job returned error", "job", job.Name, "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.log.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	return nil
}

// Start begins firing jobs in a background goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job callback to return
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
