// Package scheduler implements the scheduled jobs of the ad lifecycle service:
// the expiration sweep, the stats snapshot, and the task runner shared by the
// Lambda handler, the job-runner CLI and the in-process cron daemon.
package scheduler

import "time"

// TaskType identifies which scheduled job a trigger asks for.
type TaskType string

const (
	TaskExpirationSweep TaskType = "expiration_sweep"
	TaskExpirationStats TaskType = "expiration_stats"
)

// AllTasks lists every task the runner can dispatch.
var AllTasks = []TaskType{TaskExpirationSweep, TaskExpirationStats}

// MaintenancePayload is the JSON payload sent by EventBridge (or built by the
// CLI) to run a task:
//
//	{
//	  "task": "expiration_sweep",
//	  "reference_time": "2026-03-01T03:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for backfills and replays. If nil, the
	// runner's clock is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
