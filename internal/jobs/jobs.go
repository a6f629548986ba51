// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package jobs wraps scheduled and on-demand batch work in an audit
// record and a best-effort single-flight lease. Correctness never depends
// on the lease: every job body is idempotent, the lease only avoids
// duplicate work when an on-demand trigger coincides with a scheduled run.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

// Job names used in audit records and leases
const (
	JobConsolidation = "consolidation"
	JobResonance     = "resonance"
	JobWeeklyReport  = "weekly_report"
	JobArchive       = "archive"
)

// leaseTTL bounds how long a crashed run can block its successors
const leaseTTL = 10 * time.Minute

// ErrLeaseHeld is returned when another run of the same job holds the
// lease. The caller treats it as "nothing to do", not as a failure.
var ErrLeaseHeld = errors.New("job already running")

// Body is one job execution. The returned summary lands in the audit
// record on success.
type Body func(ctx context.Context) (summary string, err error)

// Runner executes jobs with auditing
type Runner struct {
	db     *gorm.DB
	log    *logger.Logger
	holder string
}

// NewRunner creates a runner with a unique holder identity for its leases
func NewRunner(db *gorm.DB, log *logger.Logger) *Runner {
	return &Runner{
		db:     db,
		log:    log.With("component", "jobs"),
		holder: uuid.NewString(),
	}
}

// Run executes fn under the named job's lease and audit record. If the
// lease is held by a live run elsewhere, nothing executes and ErrLeaseHeld
// is returned. fn's error is recorded in the audit record and returned.
func (r *Runner) Run(ctx context.Context, name string, fn Body) error {
	acquired, err := r.acquireLease(ctx, name)
	if err != nil {
		// Lease trouble must not block idempotent work
		r.log.Warn("lease acquisition failed, running anyway", "job", name, "error", err)
	} else if !acquired {
		r.log.Info("skipping run, lease held elsewhere", "job", name)
		return ErrLeaseHeld
	}
	defer r.releaseLease(name)

	run := &database.JobRun{
		JobName:   name,
		Status:    database.JobStatusRunning,
		StartedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		r.log.Error("failed to create job audit record", "job", name, "error", err)
	}

	summary, jobErr := fn(ctx)

	now := time.Now()
	updates := map[string]interface{}{
		"completed_at": now,
		"summary":      summary,
	}
	if jobErr != nil {
		updates["status"] = database.JobStatusFailed
		updates["error"] = jobErr.Error()
	} else {
		updates["status"] = database.JobStatusCompleted
	}
	if run.ID != "" {
		err := r.db.WithContext(ctx).Model(&database.JobRun{}).
			Where("id = ?", run.ID).
			Updates(updates).Error
		if err != nil {
			r.log.Error("failed to finalize job audit record", "job", name, "error", err)
		}
	}

	if jobErr != nil {
		r.log.Error("job failed", "job", name, "error", jobErr)
		return jobErr
	}
	r.log.Info("job completed", "job", name, "summary", summary)
	return nil
}

// acquireLease takes the named lease if it is free or expired. The upsert
// is atomic: the conflict update only applies over an expired lease, so
// two racing runners cannot both see success.
func (r *Runner) acquireLease(ctx context.Context, name string) (bool, error) {
	now := time.Now()
	lease := &database.JobLease{
		JobName:    name,
		HeldBy:     r.holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(leaseTTL),
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"held_by":     r.holder,
			"acquired_at": now,
			"expires_at":  now.Add(leaseTTL),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("chronicle_job_leases.expires_at < ?", now),
		}},
	}).Create(lease)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// releaseLease frees the lease if this runner still holds it. Uses a
// fresh context: release must happen even when the job's context is done.
func (r *Runner) releaseLease(name string) {
	err := r.db.WithContext(context.Background()).
		Where("job_name = ? AND held_by = ?", name, r.holder).
		Delete(&database.JobLease{}).Error
	if err != nil {
		r.log.Warn("failed to release job lease", "job", name, "error", err)
	}
}
