package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/messaging"
)

// JobKind names the work a queued job asks for.
type JobKind string

const (
	JobReconcile JobKind = "reconcile"
	JobFulfill   JobKind = "fulfill"
	JobBatch     JobKind = "batch"
)

// Job is the payload of the reconcile topic.
type Job struct {
	Kind        JobKind   `json:"kind"`
	OrderNumber string    `json:"order_number,omitempty"`
	Force       bool      `json:"force,omitempty"`
	Selector    *Selector `json:"selector,omitempty"`
	Source      Source    `json:"source"`
	RequestedAt time.Time `json:"requested_at"`
}

// Validate rejects jobs the worker cannot act on.
func (j Job) Validate() error {
	switch j.Kind {
	case JobReconcile, JobFulfill:
		if j.OrderNumber == "" {
			return fmt.Errorf("%s job without order number", j.Kind)
		}
	case JobBatch:
		if j.Selector == nil {
			return fmt.Errorf("batch job without selector")
		}
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	return nil
}

// DecodeJob parses a message value into a job.
func DecodeJob(value []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(value, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, job.Validate()
}

// Queue publishes jobs onto the reconcile topic.
type Queue struct {
	client  messaging.Client
	topic   string
	enabled bool
}

// NewQueue wires the queue to the configured reconcile topic.
func NewQueue(client messaging.Client, cfg config.Config) *Queue {
	return &Queue{client: client, topic: cfg.Messaging.Kafka.ReconcileTopic, enabled: messaging.Enabled(cfg)}
}

// Enqueue publishes job keyed by order number, so jobs for one order are
// consumed in order. It fails with messaging.ErrDisabled when no broker would
// ever deliver the job.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if !q.enabled {
		return fmt.Errorf("enqueue %s job: %w", job.Kind, messaging.ErrDisabled)
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	key := job.OrderNumber
	if key == "" {
		key = string(job.Kind)
	}
	return q.client.Publish(ctx, q.topic, []byte(key), payload)
}
