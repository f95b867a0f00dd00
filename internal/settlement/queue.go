package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-lms/internal/obs"
)

// Enqueuer is the subset of *asynq.Client used by QueueMarker.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueMarker enqueues settlements for the worker to deliver.
type QueueMarker struct {
	Client    Enqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
	Logger    zerolog.Logger
}

// MarkPaid enqueues a paid settlement.
func (q QueueMarker) MarkPaid(ctx context.Context, s Settlement) error {
	return q.enqueue(ctx, s.normalised(StatusPaid))
}

// MarkFailed enqueues a failed settlement.
func (q QueueMarker) MarkFailed(ctx context.Context, s Settlement) error {
	return q.enqueue(ctx, s.normalised(StatusFailed))
}

func (q QueueMarker) enqueue(ctx context.Context, s Settlement) error {
	if q.Client == nil {
		return errors.New("settlement: queue client not configured")
	}
	payload, err := s.Encode()
	if err != nil {
		return err
	}
	kind := taskType(s.Status)
	opts := []asynq.Option{
		asynq.TaskID(kind + ":" + s.Provider + ":" + s.OrderID),
	}
	if q.Queue != "" {
		opts = append(opts, asynq.Queue(q.Queue))
	}
	if q.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(q.MaxRetry))
	}
	if q.Retention > 0 {
		opts = append(opts, asynq.Retention(q.Retention))
	}
	info, err := q.Client.EnqueueContext(ctx, asynq.NewTask(kind, payload), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			obs.CountSettlement(kind, "duplicate")
			q.Logger.Info().Str("order_id", s.OrderID).Str("task", kind).Msg("settlement_already_queued")
			return nil
		}
		obs.CountSettlement(kind, "error")
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	obs.CountSettlement(kind, "enqueued")
	evt := q.Logger.Info().Str("order_id", s.OrderID).Str("provider", s.Provider).Str("task", kind)
	if info != nil {
		evt = evt.Str("task_id", info.ID).Str("queue", info.Queue)
	}
	evt.Msg("settlement_enqueued")
	return nil
}
