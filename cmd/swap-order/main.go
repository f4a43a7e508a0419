package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/p2pswap/swapd/pkg/crypto"
	"github.com/p2pswap/swapd/pkg/ledger/sim"
	"github.com/p2pswap/swapd/pkg/swap"
)

// Walks one full order lifecycle against the in-process simulated ledger:
// a maker posts an order, a taker fills it, balances settle. Useful as a
// smoke test and as a worked example of the coordinator API.
func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	ledger := sim.NewLedger(sim.NewMemoryStore(), sugar)
	view := swap.NewOrderView(ledger, sugar)
	coord := swap.NewCoordinator(view, time.Minute, sugar)
	ctx := context.Background()

	tokenSell := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenBuy := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	makerKey, err := crypto.GenerateKey()
	if err != nil {
		fatal("generate maker key: %v", err)
	}
	takerKey, err := crypto.GenerateKey()
	if err != nil {
		fatal("generate taker key: %v", err)
	}
	maker := swap.NewActorSession(makerKey, ledger)
	taker := swap.NewActorSession(takerKey, ledger)

	ledger.Fund(tokenSell, maker.Address(), big.NewInt(1000))
	ledger.Fund(tokenBuy, taker.Address(), big.NewInt(500))

	fmt.Printf("maker: %s\n", maker.Address().Hex())
	fmt.Printf("taker: %s\n\n", taker.Address().Hex())

	// Maker posts: 1000 of tokenSell for 500 of tokenBuy.
	id, err := coord.CreateOrder(ctx, maker, swap.CreateParams{
		TokenToSell:  tokenSell,
		TokenToBuy:   tokenBuy,
		AmountToSell: big.NewInt(1000),
		AmountToBuy:  big.NewInt(500),
	})
	if err != nil {
		fatal("create order: %v", err)
	}
	fmt.Printf("order %d created\n", id)

	order, err := coord.QueryOrder(ctx, id)
	if err != nil {
		fatal("query order: %v", err)
	}
	fmt.Printf("  maker=%s sell=%s buy=%s active=%v\n",
		order.Maker.Hex(), order.AmountToSell, order.AmountToBuy, order.IsActive)

	// Taker fills it.
	receipt, err := coord.ExecuteOrder(ctx, taker, id)
	if err != nil {
		fatal("execute order: %v", err)
	}
	fmt.Printf("order %d executed, tx %s\n\n", id, receipt.Handle)

	fmt.Printf("maker %s balance: %s\n", "tokenBuy", ledger.BalanceOf(tokenBuy, maker.Address()))
	fmt.Printf("taker %s balance: %s\n", "tokenSell", ledger.BalanceOf(tokenSell, taker.Address()))

	order, _ = coord.QueryOrder(ctx, id)
	fmt.Printf("order active: %v\n", order.IsActive)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
