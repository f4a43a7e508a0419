package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/p2pswap/swapd/params"
	"github.com/p2pswap/swapd/pkg/api"
	"github.com/p2pswap/swapd/pkg/crypto"
	"github.com/p2pswap/swapd/pkg/ledger/evm"
	"github.com/p2pswap/swapd/pkg/ledger/sim"
	"github.com/p2pswap/swapd/pkg/metrics"
	"github.com/p2pswap/swapd/pkg/swap"
	"github.com/p2pswap/swapd/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Signing key ----
	var key *crypto.Signer
	if cfg.Node.PrivateKey != "" {
		key, err = crypto.FromPrivateKeyHex(cfg.Node.PrivateKey)
		if err != nil {
			sugar.Fatalw("private_key_invalid", "err", err)
		}
	} else {
		key, err = crypto.GenerateKey()
		if err != nil {
			sugar.Fatalw("key_generation_failed", "err", err)
		}
		sugar.Infow("key_generated", "address", key.Address().Hex())
	}

	// ---- Ledger backend ----
	var ledger swap.LedgerClient
	switch cfg.Ledger.Backend {
	case "sim":
		ledger = buildSimLedger(cfg, key, sugar)
	case "evm":
		if cfg.Ledger.RPCURL == "" || cfg.Ledger.Contract == "" {
			sugar.Fatal("evm backend needs LEDGER_RPC_URL and LEDGER_CONTRACT")
		}
		client, err := evm.Dial(ctx, cfg.Ledger.RPCURL, common.HexToAddress(cfg.Ledger.Contract), sugar)
		if err != nil {
			sugar.Fatalw("evm_dial_failed", "err", err)
		}
		client.SetPollInterval(cfg.Ledger.PollInterval, util.RealClock{})
		ledger = client
	default:
		sugar.Fatalw("unknown_ledger_backend", "backend", cfg.Ledger.Backend)
	}

	actor := swap.NewActorSession(key, ledger)
	view := swap.NewOrderView(ledger, sugar)
	coord := swap.NewCoordinator(view, cfg.Ledger.ConfirmTimeout, sugar)

	metrics.Serve(cfg.API.MetricsAddr, sugar)
	sugar.Infow("metrics_listening", "addr", cfg.API.MetricsAddr)

	server := api.NewServer(coord, actor, sugar)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.API.Addr)
	}()

	sugar.Infow("swapd_started",
		"backend", cfg.Ledger.Backend,
		"actor", actor.Address().Hex(),
		"api_addr", cfg.API.Addr)

	select {
	case <-ctx.Done():
		sugar.Info("shutting down")
	case err := <-errCh:
		sugar.Fatalw("api_server_failed", "err", err)
	}
}

func buildSimLedger(cfg params.Config, key *crypto.Signer, sugar *zap.SugaredLogger) *sim.Ledger {
	var store sim.Store
	if cfg.Ledger.DataDir != "" {
		ps, err := sim.NewPebbleStore(cfg.Ledger.DataDir)
		if err != nil {
			sugar.Fatalw("pebble_open_failed", "dir", cfg.Ledger.DataDir, "err", err)
		}
		store = ps
		sugar.Infow("sim_store_opened", "dir", cfg.Ledger.DataDir)
	} else {
		store = sim.NewMemoryStore()
	}

	ledger := sim.NewLedger(store, sugar)

	// GENESIS_FUNDS="0xToken:1000,0xOther:500" seeds the local actor.
	for _, entry := range cfg.Node.GenesisFunds {
		token, amount, ok := parseGenesisFund(entry)
		if !ok {
			sugar.Warnw("genesis_fund_invalid", "entry", entry)
			continue
		}
		ledger.Fund(token, key.Address(), amount)
		sugar.Infow("genesis_funded", "token", token.Hex(), "amount", amount.String())
	}
	return ledger
}

func parseGenesisFund(entry string) (common.Address, *big.Int, bool) {
	parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) {
		return common.Address{}, nil, false
	}
	amount, ok := new(big.Int).SetString(parts[1], 10)
	if !ok || amount.Sign() <= 0 {
		return common.Address{}, nil, false
	}
	return common.HexToAddress(parts[0]), amount, true
}
