// Package events publishes job lifecycle events to Kafka and consumes
// job requests from it.
package events

import (
	"time"

	"github.com/google/uuid"
)

// JobRequest asks the agent to run a command on a host.
type JobRequest struct {
	Host        string    `json:"host"`
	Command     string    `json:"command"`
	RequestUID  uuid.UUID `json:"requestUid"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// JobFinished reports a completed job.
type JobFinished struct {
	Host       string    `json:"host"`
	JobID      string    `json:"jobId"`
	Command    string    `json:"command"`
	ExitCode   int       `json:"exitCode"`
	Stdout     []string  `json:"stdout"`
	FinishedAt time.Time `json:"finishedAt"`
}
