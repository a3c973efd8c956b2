package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// TaskReconcile is the asynq task type that replays degraded checkout steps.
const TaskReconcile = "checkout:reconcile"

// ReconcileTask lists the steps of one order that still need to be applied.
type ReconcileTask struct {
	OrderID    string      `json:"orderId"`
	UserID     string      `json:"userId"`
	StoreID    string      `json:"storeId"`
	Steps      []string    `json:"steps"`
	Stock      []StockLine `json:"stock,omitempty"`
	ProductIDs []string    `json:"productIds,omitempty"`
}

// AsynqEnqueuer schedules reconcile tasks, one per order.
type AsynqEnqueuer struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
}

// EnqueueReconcile enqueues task. An already queued task for the order is not an error.
func (e AsynqEnqueuer) EnqueueReconcile(ctx context.Context, task ReconcileTask) error {
	if e.Client == nil {
		return errors.New("reconcile queue not configured")
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(TaskReconcile + ":" + task.OrderID)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	_, err = e.Client.EnqueueContext(ctx, asynq.NewTask(TaskReconcile, payload, opts...))
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// ReconcileRepository applies the idempotent post-order steps.
type ReconcileRepository interface {
	// DecrementStock is a no-op for products already decremented for orderID.
	DecrementStock(ctx context.Context, orderID string, lines []StockLine) error
	DeleteCartLines(ctx context.Context, userID, storeID string, productIDs []string) error
}

// Reconciler processes TaskReconcile.
type Reconciler struct {
	Repo   ReconcileRepository
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (r *Reconciler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task ReconcileTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		obs.Inc(obs.ReconcileTotal, "invalid")
		return fmt.Errorf("decode reconcile task: %v: %w", err, asynq.SkipRetry)
	}
	err := r.Reconcile(ctx, task)
	switch {
	case err == nil:
		obs.Inc(obs.ReconcileTotal, "ok")
		return nil
	case errors.Is(err, cart.ErrInsufficientStock):
		// Stock was sold elsewhere in the meantime; retrying cannot help.
		obs.Inc(obs.ReconcileTotal, "shortfall")
		r.Logger.Error().Err(err).Str("order_id", task.OrderID).Msg("reconcile stock shortfall")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		obs.Inc(obs.ReconcileTotal, "retry")
		return err
	}
}

// Reconcile replays the steps listed in task.
func (r *Reconciler) Reconcile(ctx context.Context, task ReconcileTask) error {
	if r == nil || r.Repo == nil {
		return errors.New("reconciler not configured")
	}
	for _, step := range task.Steps {
		switch step {
		case StepStock:
			if err := r.Repo.DecrementStock(ctx, task.OrderID, task.Stock); err != nil {
				return fmt.Errorf("reconcile stock: %w", err)
			}
		case StepCart:
			if err := r.Repo.DeleteCartLines(ctx, task.UserID, task.StoreID, task.ProductIDs); err != nil {
				return fmt.Errorf("reconcile cart: %w", err)
			}
		default:
			r.Logger.Warn().Str("order_id", task.OrderID).Str("step", step).Msg("unknown reconcile step")
			continue
		}
		r.Logger.Info().Str("order_id", task.OrderID).Str("step", step).Msg("checkout step reconciled")
	}
	return nil
}
