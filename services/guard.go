package services

import (
	"context"
	"errors"
	"time"

	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/stores"
	"github.com/voyago/fulfillment/utils"
)

const defaultExecTimeout = 45 * time.Second

// ActionGuard wraps a non-idempotent external call so concurrent or repeated
// invocations with the same stable key collapse into one real execution. The
// pending lock row is persisted before the call runs, so a crash mid-call
// leaves a visible pending lock instead of a duplicated supplier booking.
type ActionGuard struct {
	locks       LockStore
	execTimeout time.Duration
	logger      *utils.Logger
}

func NewActionGuard(locks LockStore, execTimeout time.Duration) *ActionGuard {
	if execTimeout <= 0 {
		execTimeout = defaultExecTimeout
	}
	return &ActionGuard{
		locks:       locks,
		execTimeout: execTimeout,
		logger:      utils.NewLogger("action-guard"),
	}
}

type GuardRequest struct {
	BookingID   string
	Supplier    string
	Action      string
	ProviderRef string
	RequestID   string
	Meta        models.JSON
}

// GuardOutcome reports what happened for this caller. Skipped means another
// execution owns (or owned) the action; for a successful prior execution the
// stored result is returned so all observers see the winner's outcome.
type GuardOutcome struct {
	Skipped bool              `json:"skipped"`
	Status  models.LockStatus `json:"status"`
	Result  models.JSON       `json:"result,omitempty"`
}

func (g *ActionGuard) Run(ctx context.Context, req *GuardRequest, exec func(context.Context) (models.JSON, error)) (*GuardOutcome, error) {
	key := models.ActionLockKey(req.BookingID, req.Supplier, req.Action, req.ProviderRef)

	lock := &models.SupplierActionLock{
		IdempotencyKey: key,
		BookingID:      req.BookingID,
		Supplier:       req.Supplier,
		Action:         req.Action,
		ProviderRef:    req.ProviderRef,
		RequestID:      req.RequestID,
		Status:         models.LockStatusPending,
		Meta:           req.Meta,
		StartedAt:      time.Now(),
	}

	err := g.locks.Insert(ctx, lock)
	if errors.Is(err, stores.ErrLockExists) {
		return g.observeExisting(ctx, key)
	}
	if err != nil {
		return nil, utils.WrapError(err, "failed to create action lock")
	}

	execCtx, cancel := context.WithTimeout(ctx, g.execTimeout)
	defer cancel()

	result, execErr := exec(execCtx)
	if execErr != nil {
		// A timeout still settles the lock to failed; the settle write uses a
		// fresh context so a canceled caller cannot leave the lock pending.
		if markErr := g.locks.MarkFailed(context.Background(), key, execErr.Error()); markErr != nil {
			utils.LogError(ctx, markErr, "failed to settle action lock as failed", map[string]interface{}{
				"idempotency_key": key,
			})
		}
		return &GuardOutcome{Skipped: false, Status: models.LockStatusFailed}, execErr
	}

	if err := g.locks.MarkSucceeded(context.Background(), key, result); err != nil {
		return nil, utils.WrapError(err, "failed to settle action lock as succeeded")
	}

	return &GuardOutcome{Skipped: false, Status: models.LockStatusSuccess, Result: result}, nil
}

// observeExisting resolves a lost insert race: the guard never re-executes,
// it reports the owning execution's state. A failed prior execution is not
// retried here; retries belong to the failure queue at the event level.
func (g *ActionGuard) observeExisting(ctx context.Context, key string) (*GuardOutcome, error) {
	existing, err := g.locks.GetByKey(ctx, key)
	if err != nil {
		return nil, utils.WrapError(err, "failed to read existing action lock")
	}

	outcome := &GuardOutcome{Skipped: true, Status: existing.Status}
	if existing.Status == models.LockStatusSuccess {
		outcome.Result = existing.Result
	}
	return outcome, nil
}
