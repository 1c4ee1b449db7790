// Package cron runs periodic background jobs, such as history snapshots,
// on 5-field cron schedules.
package cron

import "context"

// ServiceName is the service key the process-wide Scheduler is registered
// under. Modules add their jobs during Provision.
const ServiceName = "cron.scheduler"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string
	// Schedule returns a 5-field cron expression (e.g., "0 3 * * *").
	Schedule() string
	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}
