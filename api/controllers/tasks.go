package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/mpsync/api/responses"
	"github.com/angelmondragon/mpsync/api/validators"
	"github.com/angelmondragon/mpsync/internal/jobs"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
)

// TaskEnqueuer publishes a sync task for the workers.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, job enums.JobName, params jobs.Params) (uuid.UUID, error)
}

type enqueueTaskRequest struct {
	Job    string      `json:"job" validate:"required"`
	Params jobs.Params `json:"params"`
}

type enqueueTaskResponse struct {
	TaskID uuid.UUID     `json:"task_id"`
	Job    enums.JobName `json:"job"`
}

// EnqueueTask accepts a job request and hands it to the queue.
func EnqueueTask(queue TaskEnqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueTaskRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		job, err := enums.ParseJobName(req.Job)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown job"))
			return
		}
		id, err := queue.Enqueue(r.Context(), job, req.Params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, enqueueTaskResponse{TaskID: id, Job: job})
	}
}
