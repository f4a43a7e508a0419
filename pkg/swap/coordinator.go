package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/p2pswap/swapd/pkg/metrics"
)

const defaultConfirmTimeout = 2 * time.Minute

// Coordinator sequences the multi-step flows of the order lifecycle
// against the ledger. It is stateless between flow invocations except for
// the in-flight table that rejects duplicate concurrent submissions of
// the same intent (a double-click must not create two orders).
//
// Each flow runs as one strictly ordered sequence of steps; across flows
// there is no ordering and none is needed, the ledger serializes
// conflicting writes on its own.
type Coordinator struct {
	view           *OrderView
	log            *zap.SugaredLogger
	confirmTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewCoordinator(view *OrderView, confirmTimeout time.Duration, log *zap.SugaredLogger) *Coordinator {
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Coordinator{
		view:           view,
		log:            log,
		confirmTimeout: confirmTimeout,
		inflight:       make(map[string]struct{}),
	}
}

// CreateOrder posts a new order: approve the sell token for the ledger,
// then submit the create. The act step never runs before the approval is
// Confirmed -- the ledger must not accept an order it cannot later fulfill.
// A confirmed approval is left outstanding if the create fails; it is
// harmless and revocable by the actor.
func (c *Coordinator) CreateOrder(ctx context.Context, actor *ActorSession, p CreateParams) (OrderID, error) {
	if err := validateActor(actor); err != nil {
		return 0, err
	}
	if err := validateCreate(p); err != nil {
		return 0, err
	}

	key := fmt.Sprintf("create:%s:%s:%s:%s:%s",
		actor.Address().Hex(), p.TokenToSell.Hex(), p.TokenToBuy.Hex(), p.AmountToSell, p.AmountToBuy)
	if err := c.acquire(key); err != nil {
		return 0, err
	}
	defer c.release(key)

	metrics.FlowStarted("create")
	c.log.Infow("flow_started",
		"flow", "create",
		"actor", actor.Address().Hex(),
		"token_to_sell", p.TokenToSell.Hex(),
		"token_to_buy", p.TokenToBuy.Hex(),
		"amount_to_sell", p.AmountToSell.String(),
		"amount_to_buy", p.AmountToBuy.String())

	sub := newSubmission("create",
		newStep(StepApprove, "approve sell token", func(ctx context.Context) (TxHandle, error) {
			return actor.Ledger.SubmitApprove(ctx, actor, p.TokenToSell, p.AmountToSell)
		}),
		newStep(StepAct, "create order", func(ctx context.Context) (TxHandle, error) {
			return actor.Ledger.SubmitCreateOrder(ctx, actor, p)
		}),
	)

	receipt, ferr := c.runSteps(ctx, actor, sub)
	if ferr != nil {
		metrics.FlowFinished("create", string(ferr.Kind))
		return 0, ferr
	}

	// The ledger never assigns id 0. A confirmed create whose receipt
	// carries no id is unusable and must not be reported as success.
	if receipt.OrderID == 0 {
		ferr := sub.fail(KindActionFailed, "confirmed create reported no order id", nil)
		metrics.FlowFinished("create", string(ferr.Kind))
		return 0, ferr
	}

	metrics.FlowFinished("create", "confirmed")
	c.log.Infow("order_created",
		"order_id", uint64(receipt.OrderID),
		"maker", actor.Address().Hex())
	return receipt.OrderID, nil
}

// ExecuteOrder fills an existing order. The order is re-read immediately
// before any write; if it is already settled the flow fails fast with
// zero ledger writes. Between that read and the ledger's acceptance
// another actor may still win the race -- the ledger's rejection is then
// surfaced as ErrOrderAlreadySettled, distinct from infrastructure
// failure, so callers can show "someone else already filled this order".
func (c *Coordinator) ExecuteOrder(ctx context.Context, actor *ActorSession, id OrderID) (*Receipt, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("execute:%s:%d", actor.Address().Hex(), id)
	if err := c.acquire(key); err != nil {
		return nil, err
	}
	defer c.release(key)

	metrics.FlowStarted("execute")
	c.log.Infow("flow_started", "flow", "execute", "actor", actor.Address().Hex(), "order_id", uint64(id))

	order, err := c.view.Order(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			metrics.FlowFinished("execute", string(KindAlreadySettled))
			return nil, err
		}
		metrics.FlowFinished("execute", string(KindTransport))
		return nil, &FlowError{Flow: "execute", Kind: KindTransport, Reason: "order read failed", cause: err}
	}
	if !order.IsActive {
		metrics.FlowFinished("execute", string(KindAlreadySettled))
		return nil, &FlowError{Flow: "execute", Kind: KindAlreadySettled, Reason: "order is no longer active", cause: ErrOrderAlreadySettled}
	}

	sub := newSubmission("execute",
		newStep(StepApprove, "approve buy token", func(ctx context.Context) (TxHandle, error) {
			return actor.Ledger.SubmitApprove(ctx, actor, order.TokenToBuy, order.AmountToBuy)
		}),
		newStep(StepAct, "execute order", func(ctx context.Context) (TxHandle, error) {
			return actor.Ledger.SubmitExecuteOrder(ctx, actor, id)
		}),
	)

	receipt, ferr := c.runSteps(ctx, actor, sub)
	if ferr != nil {
		ferr = c.reclassifySettled(ctx, id, sub, ferr)
		metrics.FlowFinished("execute", string(ferr.Kind))
		return nil, ferr
	}

	metrics.FlowFinished("execute", "confirmed")
	c.log.Infow("order_executed", "order_id", uint64(id), "taker", actor.Address().Hex())
	return receipt, nil
}

// CancelOrder retracts an active order. Only the maker may cancel; no
// approval step is needed since no incoming transfer is authorized.
func (c *Coordinator) CancelOrder(ctx context.Context, actor *ActorSession, id OrderID) (*Receipt, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("cancel:%s:%d", actor.Address().Hex(), id)
	if err := c.acquire(key); err != nil {
		return nil, err
	}
	defer c.release(key)

	metrics.FlowStarted("cancel")
	c.log.Infow("flow_started", "flow", "cancel", "actor", actor.Address().Hex(), "order_id", uint64(id))

	order, err := c.view.Order(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			metrics.FlowFinished("cancel", string(KindAlreadySettled))
			return nil, err
		}
		metrics.FlowFinished("cancel", string(KindTransport))
		return nil, &FlowError{Flow: "cancel", Kind: KindTransport, Reason: "order read failed", cause: err}
	}
	if !order.IsActive {
		metrics.FlowFinished("cancel", string(KindAlreadySettled))
		return nil, &FlowError{Flow: "cancel", Kind: KindAlreadySettled, Reason: "order is no longer active", cause: ErrOrderAlreadySettled}
	}
	if order.Maker != actor.Address() {
		metrics.FlowFinished("cancel", "validation")
		return nil, &ValidationError{Field: "actor", Reason: "only the maker may cancel an order"}
	}

	sub := newSubmission("cancel",
		newStep(StepAct, "cancel order", func(ctx context.Context) (TxHandle, error) {
			return actor.Ledger.SubmitCancelOrder(ctx, actor, id)
		}),
	)

	receipt, ferr := c.runSteps(ctx, actor, sub)
	if ferr != nil {
		ferr = c.reclassifySettled(ctx, id, sub, ferr)
		metrics.FlowFinished("cancel", string(ferr.Kind))
		return nil, ferr
	}

	metrics.FlowFinished("cancel", "confirmed")
	c.log.Infow("order_cancelled", "order_id", uint64(id), "maker", actor.Address().Hex())
	return receipt, nil
}

// QueryOrder is a pure read, safe to call repeatedly and concurrently.
func (c *Coordinator) QueryOrder(ctx context.Context, id OrderID) (*Order, error) {
	return c.view.Order(ctx, id)
}

// runSteps drives the submission to its terminal outcome: every step
// Confirmed, or the first failure. It returns the final step's receipt.
func (c *Coordinator) runSteps(ctx context.Context, actor *ActorSession, sub *orderSubmission) (*Receipt, *FlowError) {
	var receipt *Receipt
	for _, step := range sub.steps {
		r, ferr := c.runStep(ctx, actor, sub, step)
		if ferr != nil {
			c.log.Warnw("flow_failed",
				"flow", sub.flow,
				"step", step.Name,
				"kind", string(ferr.Kind),
				"reason", ferr.Reason)
			return nil, ferr
		}
		receipt = r
		sub.cursor++
	}
	return receipt, nil
}

func (c *Coordinator) runStep(ctx context.Context, actor *ActorSession, sub *orderSubmission, step *Step) (*Receipt, *FlowError) {
	start := time.Now()
	step.markSubmitted()
	c.log.Infow("step_submitting", "flow", sub.flow, "step", step.Name, "actor", actor.Address().Hex())

	h, err := step.submit(ctx)
	if err != nil {
		step.markFailed(err)
		return nil, sub.fail(KindTransport, fmt.Sprintf("%s: submit failed", step.Name), err)
	}

	conf, err := actor.Ledger.AwaitConfirmation(ctx, h, c.confirmTimeout)
	if err != nil {
		step.markFailed(err)
		return nil, sub.fail(KindTransport, fmt.Sprintf("%s: confirmation wait failed", step.Name), err)
	}

	switch conf.Status {
	case ConfirmOK:
		step.markConfirmed()
		metrics.ObserveStepDuration(sub.flow, step.Kind.String(), time.Since(start).Seconds())
		c.log.Infow("step_confirmed", "flow", sub.flow, "step", step.Name, "tx", string(h))
		receipt := conf.Receipt
		if receipt == nil {
			receipt = &Receipt{Handle: h}
		}
		return receipt, nil

	case ConfirmTimedOut:
		// The operation may still land; resubmitting would risk a
		// double-authorization or a reverted duplicate, so the ambiguity
		// is reported as-is and the caller decides.
		step.markFailed(ErrTimedOut)
		return nil, sub.fail(KindTimedOut,
			fmt.Sprintf("%s: not confirmed within %s", step.Name, c.confirmTimeout), ErrTimedOut)

	default:
		cause := fmt.Errorf("ledger rejected %s: %s", step.Name, conf.Reason)
		step.markFailed(cause)
		kind := KindActionFailed
		if step.Kind == StepApprove {
			kind = KindApprovalFailed
		}
		return nil, sub.fail(kind, conf.Reason, cause)
	}
}

// reclassifySettled upgrades an act-step rejection to ErrOrderAlreadySettled
// when a fresh read shows the order gone or inactive: the caller lost the
// race, the transaction infrastructure did not fail.
func (c *Coordinator) reclassifySettled(ctx context.Context, id OrderID, sub *orderSubmission, ferr *FlowError) *FlowError {
	if ferr.Kind != KindActionFailed {
		return ferr
	}
	cur, err := c.view.Order(ctx, id)
	if errors.Is(err, ErrOrderNotFound) || (err == nil && !cur.IsActive) {
		return sub.fail(KindAlreadySettled, "order settled before the operation landed", ErrOrderAlreadySettled)
	}
	return ferr
}

func (c *Coordinator) acquire(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[key]; ok {
		return ErrFlowInFlight
	}
	c.inflight[key] = struct{}{}
	return nil
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
}

func validateActor(actor *ActorSession) error {
	if actor == nil || actor.Key == nil {
		return &ValidationError{Field: "actor", Reason: "missing signing capability"}
	}
	if actor.Ledger == nil {
		return &ValidationError{Field: "actor", Reason: "no ledger client bound to session"}
	}
	return nil
}

func validateCreate(p CreateParams) error {
	if p.TokenToSell == (common.Address{}) {
		return &ValidationError{Field: "tokenToSell", Reason: "zero address"}
	}
	if p.TokenToBuy == (common.Address{}) {
		return &ValidationError{Field: "tokenToBuy", Reason: "zero address"}
	}
	if p.TokenToSell == p.TokenToBuy {
		return &ValidationError{Field: "tokenToBuy", Reason: "must differ from tokenToSell"}
	}
	if p.AmountToSell == nil || p.AmountToSell.Sign() <= 0 {
		return &ValidationError{Field: "amountToSell", Reason: "must be positive"}
	}
	if p.AmountToBuy == nil || p.AmountToBuy.Sign() <= 0 {
		return &ValidationError{Field: "amountToBuy", Reason: "must be positive"}
	}
	return nil
}
