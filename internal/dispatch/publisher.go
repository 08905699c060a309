package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/mpsync/internal/jobs"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/metrics"
)

const defaultPublishTimeout = 15 * time.Second

// MessagePublisher is the publishing surface of a Pub/Sub topic.
type MessagePublisher interface {
	Publish(context.Context, *gcppubsub.Message) PublishResult
}

type PublishResult interface {
	Get(context.Context) (string, error)
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

// NewGCPPublisher adapts a Pub/Sub publisher handle.
func NewGCPPublisher(pub *gcppubsub.Publisher) MessagePublisher {
	return gcpPublisher{pub: pub}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	return p.pub.Publish(ctx, msg)
}

type Publisher struct {
	pub     MessagePublisher
	logg    *logger.Logger
	metrics *metrics.DispatchMetrics
	timeout time.Duration
}

func NewPublisher(pub MessagePublisher, logg *logger.Logger, m *metrics.DispatchMetrics) (*Publisher, error) {
	if pub == nil {
		return nil, errors.New("pubsub publisher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Publisher{pub: pub, logg: logg, metrics: m, timeout: defaultPublishTimeout}, nil
}

// Enqueue validates and publishes a task for job.
func (p *Publisher) Enqueue(ctx context.Context, job enums.JobName, params jobs.Params) (uuid.UUID, error) {
	if !job.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown job "+job.String())
	}
	if err := params.Validate(); err != nil {
		return uuid.Nil, err
	}
	task := NewTask(job, params)
	return task.ID, p.Publish(ctx, task)
}

// EnqueueAfter publishes a task that consumers hold back until at.
func (p *Publisher) EnqueueAfter(ctx context.Context, job enums.JobName, params jobs.Params, at time.Time) (uuid.UUID, error) {
	if !job.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown job "+job.String())
	}
	if err := params.Validate(); err != nil {
		return uuid.Nil, err
	}
	task := NewTask(job, params)
	notBefore := at.UTC()
	task.NotBefore = &notBefore
	return task.ID, p.Publish(ctx, task)
}

// Publish sends task and waits for the server ID.
func (p *Publisher) Publish(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode task")
	}
	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := &gcppubsub.Message{Data: data, Attributes: task.attributes()}
	serverID, err := p.pub.Publish(pubCtx, msg).Get(pubCtx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish task")
	}
	p.metrics.IncEnqueued(task.Job.String())
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"task_id":    task.ID.String(),
		"job":        task.Job.String(),
		"message_id": serverID,
	}), "task enqueued")
	return nil
}
