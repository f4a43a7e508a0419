// Package sim is an in-process swap ledger with the contract's observable
// semantics: balances, allowances, an order table, and an exactly-once
// isActive flip on execute or cancel. It backs the devnet daemon and lets
// coordinator behavior be exercised without a chain.
package sim

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/p2pswap/swapd/pkg/swap"
	"github.com/p2pswap/swapd/pkg/util"
)

// Ledger implements swap.LedgerClient. Submission and confirmation are
// split like on a real chain: Submit* only enqueues; state changes and
// semantic rejections happen when the operation is confirmed.
type Ledger struct {
	mu      sync.Mutex
	store   Store
	log     *zap.SugaredLogger
	clock   util.Clock
	latency time.Duration
	seq     uint64
	pending map[swap.TxHandle]*pendingTx
}

type pendingTx struct {
	apply  func(h swap.TxHandle) swap.Confirmation
	done   bool
	result swap.Confirmation
}

func NewLedger(store Store, log *zap.SugaredLogger) *Ledger {
	return &Ledger{
		store:   store,
		log:     log,
		clock:   util.RealClock{},
		pending: make(map[swap.TxHandle]*pendingTx),
	}
}

// SetConfirmLatency delays confirmations by d on the given clock; a wait
// whose timeout is at or below d observes TimedOut while the operation
// stays pending, mirroring the ambiguity of a slow chain.
func (l *Ledger) SetConfirmLatency(d time.Duration, clock util.Clock) {
	l.latency = d
	l.clock = clock
}

// Fund credits owner with amount of token. Devnet/test genesis only.
func (l *Ledger) Fund(token, owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.store.Balance(token, owner)
	l.store.SetBalance(token, owner, balance.Add(balance, amount))
}

// BalanceOf reports owner's balance of token.
func (l *Ledger) BalanceOf(token, owner common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Balance(token, owner)
}

func (l *Ledger) ReadOrder(ctx context.Context, id swap.OrderID) (*swap.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.store.Order(id)
	if !ok {
		return nil, swap.ErrOrderNotFound
	}
	cp := o
	cp.AmountToSell = new(big.Int).Set(o.AmountToSell)
	cp.AmountToBuy = new(big.Int).Set(o.AmountToBuy)
	return &cp, nil
}

func (l *Ledger) SubmitApprove(ctx context.Context, actor *swap.ActorSession, token common.Address, amount *big.Int) (swap.TxHandle, error) {
	owner := actor.Address()
	amt := new(big.Int).Set(amount)
	return l.enqueue(func(h swap.TxHandle) swap.Confirmation {
		l.store.SetAllowance(token, owner, amt)
		l.log.Debugw("sim_approved", "token", token.Hex(), "owner", owner.Hex(), "amount", amt.String())
		return confirmed(h, 0)
	}), nil
}

func (l *Ledger) SubmitCreateOrder(ctx context.Context, actor *swap.ActorSession, p swap.CreateParams) (swap.TxHandle, error) {
	maker := actor.Address()
	sellAmt := new(big.Int).Set(p.AmountToSell)
	buyAmt := new(big.Int).Set(p.AmountToBuy)
	return l.enqueue(func(h swap.TxHandle) swap.Confirmation {
		allowance := l.store.Allowance(p.TokenToSell, maker)
		if allowance.Cmp(sellAmt) < 0 {
			return rejected(h, "insufficient allowance for sale escrow")
		}
		balance := l.store.Balance(p.TokenToSell, maker)
		if balance.Cmp(sellAmt) < 0 {
			return rejected(h, "insufficient balance to escrow sale amount")
		}

		// Escrow the sale amount with the ledger.
		l.store.SetBalance(p.TokenToSell, maker, balance.Sub(balance, sellAmt))
		l.store.SetAllowance(p.TokenToSell, maker, allowance.Sub(allowance, sellAmt))

		id := l.store.NextOrderID()
		l.store.PutOrder(swap.Order{
			ID:           id,
			Maker:        maker,
			TokenToSell:  p.TokenToSell,
			TokenToBuy:   p.TokenToBuy,
			AmountToSell: sellAmt,
			AmountToBuy:  buyAmt,
			IsActive:     true,
		})
		l.log.Infow("sim_order_created", "order_id", uint64(id), "maker", maker.Hex())
		return confirmed(h, id)
	}), nil
}

func (l *Ledger) SubmitExecuteOrder(ctx context.Context, actor *swap.ActorSession, id swap.OrderID) (swap.TxHandle, error) {
	taker := actor.Address()
	return l.enqueue(func(h swap.TxHandle) swap.Confirmation {
		o, ok := l.store.Order(id)
		if !ok {
			return rejected(h, "unknown order")
		}
		if !o.IsActive {
			return rejected(h, "order not active")
		}

		allowance := l.store.Allowance(o.TokenToBuy, taker)
		if allowance.Cmp(o.AmountToBuy) < 0 {
			return rejected(h, "insufficient allowance for payment")
		}
		balance := l.store.Balance(o.TokenToBuy, taker)
		if balance.Cmp(o.AmountToBuy) < 0 {
			return rejected(h, "insufficient balance for payment")
		}

		// Payment: taker -> maker.
		l.store.SetBalance(o.TokenToBuy, taker, balance.Sub(balance, o.AmountToBuy))
		l.store.SetAllowance(o.TokenToBuy, taker, allowance.Sub(allowance, o.AmountToBuy))
		makerBal := l.store.Balance(o.TokenToBuy, o.Maker)
		l.store.SetBalance(o.TokenToBuy, o.Maker, makerBal.Add(makerBal, o.AmountToBuy))

		// Escrow release: ledger -> taker.
		takerBal := l.store.Balance(o.TokenToSell, taker)
		l.store.SetBalance(o.TokenToSell, taker, takerBal.Add(takerBal, o.AmountToSell))

		o.IsActive = false
		l.store.PutOrder(o)
		l.log.Infow("sim_order_executed", "order_id", uint64(id), "taker", taker.Hex())
		return confirmed(h, 0)
	}), nil
}

func (l *Ledger) SubmitCancelOrder(ctx context.Context, actor *swap.ActorSession, id swap.OrderID) (swap.TxHandle, error) {
	caller := actor.Address()
	return l.enqueue(func(h swap.TxHandle) swap.Confirmation {
		o, ok := l.store.Order(id)
		if !ok {
			return rejected(h, "unknown order")
		}
		if !o.IsActive {
			return rejected(h, "order not active")
		}
		if o.Maker != caller {
			return rejected(h, "only the maker may cancel")
		}

		// Escrow refund: ledger -> maker.
		makerBal := l.store.Balance(o.TokenToSell, o.Maker)
		l.store.SetBalance(o.TokenToSell, o.Maker, makerBal.Add(makerBal, o.AmountToSell))

		o.IsActive = false
		l.store.PutOrder(o)
		l.log.Infow("sim_order_cancelled", "order_id", uint64(id), "maker", caller.Hex())
		return confirmed(h, 0)
	}), nil
}

func (l *Ledger) AwaitConfirmation(ctx context.Context, h swap.TxHandle, timeout time.Duration) (swap.Confirmation, error) {
	l.mu.Lock()
	p, ok := l.pending[h]
	if !ok {
		l.mu.Unlock()
		return swap.Confirmation{}, fmt.Errorf("sim: unknown tx handle %s", h)
	}
	if p.done {
		defer l.mu.Unlock()
		return p.result, nil
	}
	latency := l.latency
	l.mu.Unlock()

	if latency > 0 {
		if latency >= timeout {
			// Operation stays pending; a later wait may still confirm it.
			return swap.Confirmation{Status: swap.ConfirmTimedOut}, nil
		}
		select {
		case <-ctx.Done():
			return swap.Confirmation{}, ctx.Err()
		case <-l.clock.After(latency):
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !p.done {
		p.result = p.apply(h)
		p.done = true
	}
	return p.result, nil
}

func (l *Ledger) enqueue(apply func(h swap.TxHandle) swap.Confirmation) swap.TxHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	h := swap.TxHandle(fmt.Sprintf("sim-tx-%d", l.seq))
	l.pending[h] = &pendingTx{apply: apply}
	return h
}

func confirmed(h swap.TxHandle, id swap.OrderID) swap.Confirmation {
	return swap.Confirmation{
		Status:  swap.ConfirmOK,
		Receipt: &swap.Receipt{Handle: h, OrderID: id},
	}
}

func rejected(h swap.TxHandle, reason string) swap.Confirmation {
	return swap.Confirmation{Status: swap.ConfirmFailed, Reason: reason}
}
