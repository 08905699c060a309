package dispatch

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/mpsync/internal/jobs"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/idempotency"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/metrics"
)

const (
	defaultConsumerName = "sync-worker"
	defaultMaxAttempts  = 5
	defaultLockRetry    = time.Minute
)

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, job enums.JobName, params jobs.Params) jobs.Result
}

// Receiver is the pulling surface of a Pub/Sub subscription.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type ConsumerParams struct {
	Subscription Receiver
	Runner       Runner
	Idempotency  *idempotency.Manager
	// Retries republishes tasks whose credential was throttled or busy.
	Retries     *Publisher
	Logger      *logger.Logger
	Metrics     *metrics.DispatchMetrics
	Name        string
	MaxAttempts int
	LockRetry   time.Duration
}

type Consumer struct {
	subscription Receiver
	runner       Runner
	idempotency  *idempotency.Manager
	retries      *Publisher
	logg         *logger.Logger
	metrics      *metrics.DispatchMetrics
	name         string
	maxAttempts  int
	lockRetry    time.Duration
	now          func() time.Time
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	switch {
	case params.Subscription == nil:
		return nil, errors.New("sync subscription required")
	case params.Runner == nil:
		return nil, errors.New("job runner required")
	case params.Idempotency == nil:
		return nil, errors.New("idempotency manager required")
	case params.Retries == nil:
		return nil, errors.New("retry publisher required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	}
	name := params.Name
	if name == "" {
		name = defaultConsumerName
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	lockRetry := params.LockRetry
	if lockRetry <= 0 {
		lockRetry = defaultLockRetry
	}
	return &Consumer{
		subscription: params.Subscription,
		runner:       params.Runner,
		idempotency:  params.Idempotency,
		retries:      params.Retries,
		logg:         params.Logger,
		metrics:      params.Metrics,
		name:         name,
		maxAttempts:  attempts,
		lockRetry:    lockRetry,
		now:          time.Now,
	}, nil
}

// Run pulls tasks until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if c.process(ctx, msg.ID, msg.Data).ack {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

type outcome struct {
	ack   bool
	label string
}

var (
	outcomeMalformed = outcome{ack: true, label: "malformed"}
	outcomeDuplicate = outcome{ack: true, label: "duplicate"}
	outcomeSuccess   = outcome{ack: true, label: "success"}
	outcomeFailure   = outcome{ack: true, label: "failure"}
	outcomeRetry     = outcome{ack: true, label: "retry_scheduled"}
	outcomeDeferred  = outcome{ack: false, label: "deferred"}
	outcomeError     = outcome{ack: false, label: "error"}
)

func (c *Consumer) process(ctx context.Context, messageID string, data []byte) outcome {
	logCtx := c.logg.WithField(ctx, "message_id", messageID)

	task, err := decodeTask(data)
	if err != nil {
		c.logg.Error(logCtx, "dropping malformed task", err)
		c.metrics.IncConsumed("unknown", outcomeMalformed.label)
		return outcomeMalformed
	}
	res := c.handle(c.logg.WithFields(logCtx, map[string]any{
		"task_id": task.ID.String(),
		"attempt": task.Attempt,
	}), task)
	c.metrics.IncConsumed(task.Job.String(), res.label)
	return res
}

func (c *Consumer) handle(ctx context.Context, task Task) outcome {
	if !task.Due(c.now()) {
		return outcomeDeferred
	}

	already, err := c.idempotency.CheckAndMark(ctx, c.name, task.ID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return outcomeError
	}
	if already {
		c.logg.Info(ctx, "task already handled")
		return outcomeDuplicate
	}

	result := c.runner.Run(ctx, task.Job, task.Params)
	if ctx.Err() != nil && !result.OK() {
		// Shutting down; let the task be redelivered.
		c.release(ctx, task)
		return outcomeError
	}
	if result.OK() {
		return outcomeSuccess
	}

	at, retry := c.retryAt(result)
	if !retry {
		return outcomeFailure
	}
	if task.Attempt+1 >= c.maxAttempts {
		c.logg.Warn(ctx, "retry budget exhausted: "+result.String())
		return outcomeFailure
	}
	if err := c.retries.Publish(ctx, task.Retry(at)); err != nil {
		c.logg.Error(ctx, "schedule retry", err)
		c.release(ctx, task)
		return outcomeError
	}
	return outcomeRetry
}

// retryAt decides whether a failed run is worth another attempt and when.
func (c *Consumer) retryAt(result jobs.Result) (time.Time, bool) {
	switch result.Code {
	case pkgerrors.CodeRateLimited:
		if result.RetryAt != nil {
			return *result.RetryAt, true
		}
	case pkgerrors.CodeLockHeld:
		return c.now().Add(c.lockRetry), true
	}
	return time.Time{}, false
}

func (c *Consumer) release(ctx context.Context, task Task) {
	if err := c.idempotency.Delete(context.WithoutCancel(ctx), c.name, task.ID); err != nil {
		c.logg.Error(ctx, "release idempotency claim", err)
	}
}
