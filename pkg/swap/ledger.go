package swap

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerClient is the external capability the coordinator is given. Reads
// have no side effects; writes return a TxHandle whose outcome is observed
// separately via AwaitConfirmation.
//
// Approvals always name the swap ledger itself as spender, so the spender
// parameter is implicit: each implementation knows its own contract.
//
// Submit errors mean the ledger could not be reached (transport); semantic
// rejections (reverts) surface as ConfirmFailed from AwaitConfirmation.
type LedgerClient interface {
	// ReadOrder returns the current order state, or ErrOrderNotFound.
	ReadOrder(ctx context.Context, id OrderID) (*Order, error)

	SubmitApprove(ctx context.Context, actor *ActorSession, token common.Address, amount *big.Int) (TxHandle, error)
	SubmitCreateOrder(ctx context.Context, actor *ActorSession, p CreateParams) (TxHandle, error)
	SubmitExecuteOrder(ctx context.Context, actor *ActorSession, id OrderID) (TxHandle, error)
	SubmitCancelOrder(ctx context.Context, actor *ActorSession, id OrderID) (TxHandle, error)

	// AwaitConfirmation blocks until the operation confirms, fails, or the
	// timeout elapses. A TimedOut result leaves the true outcome unknown;
	// callers must not assume the operation was dropped.
	AwaitConfirmation(ctx context.Context, h TxHandle, timeout time.Duration) (Confirmation, error)
}
