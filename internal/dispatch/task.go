// Package dispatch carries job requests over Pub/Sub: the publisher enqueues
// tasks and the consumer runs them through the job runner.
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mpsync/internal/jobs"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

const (
	attrJob        = "job"
	attrCredential = "credential_id"
)

// Task is one queued job run.
type Task struct {
	ID     uuid.UUID     `json:"id"`
	Job    enums.JobName `json:"job"`
	Params jobs.Params   `json:"params"`
	// NotBefore holds a task back until the credential's cool-down ends.
	NotBefore *time.Time `json:"not_before,omitempty"`
	Attempt   int        `json:"attempt"`
}

func NewTask(job enums.JobName, params jobs.Params) Task {
	return Task{ID: uuid.New(), Job: job, Params: params}
}

// Due reports whether the task may run at now.
func (t Task) Due(now time.Time) bool {
	return t.NotBefore == nil || !now.Before(*t.NotBefore)
}

// Retry is the follow-up task scheduled for at.
func (t Task) Retry(at time.Time) Task {
	next := t
	next.ID = uuid.New()
	next.NotBefore = &at
	next.Attempt = t.Attempt + 1
	return next
}

func (t Task) attributes() map[string]string {
	return map[string]string{
		attrJob:        t.Job.String(),
		attrCredential: fmt.Sprintf("%d", t.Params.CredentialID),
	}
}

func decodeTask(data []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "decode task")
	}
	if t.ID == uuid.Nil {
		return Task{}, pkgerrors.New(pkgerrors.CodeMalformedPayload, "task id missing")
	}
	if !t.Job.IsValid() {
		return Task{}, pkgerrors.New(pkgerrors.CodeMalformedPayload, fmt.Sprintf("unknown job %q", t.Job))
	}
	return t, nil
}
