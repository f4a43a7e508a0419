package sim

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/p2pswap/swapd/pkg/crypto"
	"github.com/p2pswap/swapd/pkg/swap"
)

var (
	tokenX = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenY = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// immediateClock fires every timer at once.
type immediateClock struct{}

func (immediateClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}
func (immediateClock) Now() time.Time { return time.Now() }

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(NewMemoryStore(), zap.NewNop().Sugar())
}

func newActor(t *testing.T, ledger *Ledger) *swap.ActorSession {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return swap.NewActorSession(key, ledger)
}

func await(t *testing.T, l *Ledger, h swap.TxHandle) swap.Confirmation {
	t.Helper()
	conf, err := l.AwaitConfirmation(context.Background(), h, time.Second)
	if err != nil {
		t.Fatalf("await %s: %v", h, err)
	}
	return conf
}

func createOrder(t *testing.T, l *Ledger, maker *swap.ActorSession, sellAmt, buyAmt int64) swap.OrderID {
	t.Helper()
	ctx := context.Background()

	l.Fund(tokenX, maker.Address(), big.NewInt(sellAmt))
	h, err := l.SubmitApprove(ctx, maker, tokenX, big.NewInt(sellAmt))
	if err != nil {
		t.Fatalf("submit approve: %v", err)
	}
	if conf := await(t, l, h); conf.Status != swap.ConfirmOK {
		t.Fatalf("approve status = %s", conf.Status)
	}

	h, err = l.SubmitCreateOrder(ctx, maker, swap.CreateParams{
		TokenToSell:  tokenX,
		TokenToBuy:   tokenY,
		AmountToSell: big.NewInt(sellAmt),
		AmountToBuy:  big.NewInt(buyAmt),
	})
	if err != nil {
		t.Fatalf("submit create: %v", err)
	}
	conf := await(t, l, h)
	if conf.Status != swap.ConfirmOK {
		t.Fatalf("create status = %s, reason %q", conf.Status, conf.Reason)
	}
	return conf.Receipt.OrderID
}

func TestCreateAndReadOrder(t *testing.T) {
	l := newTestLedger(t)
	maker := newActor(t, l)

	id := createOrder(t, l, maker, 100, 50)
	if id == 0 {
		t.Fatal("expected non-zero order id")
	}

	order, err := l.ReadOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("read order: %v", err)
	}
	if order.Maker != maker.Address() {
		t.Errorf("maker = %s, want %s", order.Maker.Hex(), maker.Address().Hex())
	}
	if order.AmountToSell.Int64() != 100 || order.AmountToBuy.Int64() != 50 {
		t.Errorf("amounts = %s/%s, want 100/50", order.AmountToSell, order.AmountToBuy)
	}
	if !order.IsActive {
		t.Error("new order should be active")
	}

	// Sale amount is escrowed with the ledger.
	if bal := l.BalanceOf(tokenX, maker.Address()); bal.Sign() != 0 {
		t.Errorf("maker sell balance = %s, want 0", bal)
	}
}

func TestReadOrderNotFound(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.ReadOrder(context.Background(), 42); err != swap.ErrOrderNotFound {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestCreateWithoutAllowanceRejected(t *testing.T) {
	l := newTestLedger(t)
	maker := newActor(t, l)
	l.Fund(tokenX, maker.Address(), big.NewInt(100))

	h, err := l.SubmitCreateOrder(context.Background(), maker, swap.CreateParams{
		TokenToSell:  tokenX,
		TokenToBuy:   tokenY,
		AmountToSell: big.NewInt(100),
		AmountToBuy:  big.NewInt(50),
	})
	if err != nil {
		t.Fatalf("submit create: %v", err)
	}
	conf := await(t, l, h)
	if conf.Status != swap.ConfirmFailed {
		t.Fatalf("status = %s, want FAILED", conf.Status)
	}
	if conf.Reason != "insufficient allowance for sale escrow" {
		t.Errorf("reason = %q", conf.Reason)
	}
}

func TestExecuteOrderSettlesBalances(t *testing.T) {
	l := newTestLedger(t)
	maker := newActor(t, l)
	taker := newActor(t, l)
	ctx := context.Background()

	id := createOrder(t, l, maker, 100, 50)

	l.Fund(tokenY, taker.Address(), big.NewInt(50))
	h, _ := l.SubmitApprove(ctx, taker, tokenY, big.NewInt(50))
	await(t, l, h)

	h, err := l.SubmitExecuteOrder(ctx, taker, id)
	if err != nil {
		t.Fatalf("submit execute: %v", err)
	}
	if conf := await(t, l, h); conf.Status != swap.ConfirmOK {
		t.Fatalf("execute status = %s, reason %q", conf.Status, conf.Reason)
	}

	order, _ := l.ReadOrder(ctx, id)
	if order.IsActive {
		t.Error("executed order should be inactive")
	}
	if bal := l.BalanceOf(tokenX, taker.Address()); bal.Int64() != 100 {
		t.Errorf("taker received %s of sell token, want 100", bal)
	}
	if bal := l.BalanceOf(tokenY, maker.Address()); bal.Int64() != 50 {
		t.Errorf("maker received %s of buy token, want 50", bal)
	}

	// The flip is exactly-once: a second execute is rejected.
	h, _ = l.SubmitExecuteOrder(ctx, taker, id)
	conf := await(t, l, h)
	if conf.Status != swap.ConfirmFailed || conf.Reason != "order not active" {
		t.Errorf("re-execute: status %s reason %q", conf.Status, conf.Reason)
	}
}

func TestCancelOrder(t *testing.T) {
	l := newTestLedger(t)
	maker := newActor(t, l)
	stranger := newActor(t, l)
	ctx := context.Background()

	id := createOrder(t, l, maker, 100, 50)

	h, _ := l.SubmitCancelOrder(ctx, stranger, id)
	if conf := await(t, l, h); conf.Status != swap.ConfirmFailed || conf.Reason != "only the maker may cancel" {
		t.Errorf("stranger cancel: status %s reason %q", conf.Status, conf.Reason)
	}

	h, _ = l.SubmitCancelOrder(ctx, maker, id)
	if conf := await(t, l, h); conf.Status != swap.ConfirmOK {
		t.Fatalf("maker cancel failed: %s", conf.Reason)
	}

	// Escrow refunded, order inactive.
	if bal := l.BalanceOf(tokenX, maker.Address()); bal.Int64() != 100 {
		t.Errorf("refund = %s, want 100", bal)
	}
	order, _ := l.ReadOrder(ctx, id)
	if order.IsActive {
		t.Error("cancelled order should be inactive")
	}
}

func TestAwaitUnknownHandle(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.AwaitConfirmation(context.Background(), "sim-tx-999", time.Second); err == nil {
		t.Error("expected error for unknown handle")
	}
}

func TestConfirmLatencyTimesOutThenConfirms(t *testing.T) {
	l := newTestLedger(t)
	maker := newActor(t, l)
	l.SetConfirmLatency(10*time.Second, immediateClock{})

	h, err := l.SubmitApprove(context.Background(), maker, tokenX, big.NewInt(1))
	if err != nil {
		t.Fatalf("submit approve: %v", err)
	}

	// Wait shorter than the latency: ambiguous, operation still pending.
	conf, err := l.AwaitConfirmation(context.Background(), h, 5*time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if conf.Status != swap.ConfirmTimedOut {
		t.Fatalf("status = %s, want TIMED_OUT", conf.Status)
	}

	// A later, longer wait still observes the landing.
	conf, err = l.AwaitConfirmation(context.Background(), h, time.Minute)
	if err != nil {
		t.Fatalf("second await: %v", err)
	}
	if conf.Status != swap.ConfirmOK {
		t.Errorf("status = %s, want CONFIRMED", conf.Status)
	}
}
