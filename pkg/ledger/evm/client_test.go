package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/p2pswap/swapd/pkg/crypto"
	"github.com/p2pswap/swapd/pkg/swap"
)

func mustParseABIs(t *testing.T) (abi.ABI, abi.ABI) {
	t.Helper()
	swapABI, err := abi.JSON(strings.NewReader(swapABIJSON))
	if err != nil {
		t.Fatalf("parse swap abi: %v", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		t.Fatalf("parse erc20 abi: %v", err)
	}
	return swapABI, erc20ABI
}

func TestABIsParse(t *testing.T) {
	swapABI, erc20ABI := mustParseABIs(t)

	for _, name := range []string{"createOrder", "executeOrder", "cancelOrder", "getOrder"} {
		if _, ok := swapABI.Methods[name]; !ok {
			t.Errorf("swap abi missing method %s", name)
		}
	}
	if _, ok := swapABI.Events["OrderCreated"]; !ok {
		t.Error("swap abi missing OrderCreated event")
	}
	if _, ok := erc20ABI.Methods["approve"]; !ok {
		t.Error("erc20 abi missing approve")
	}
}

func TestPackCreateOrder(t *testing.T) {
	swapABI, _ := mustParseABIs(t)

	sell := common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	buy := common.HexToAddress("0x0000000000000000000000000000000000000bbb")
	data, err := swapABI.Pack("createOrder", sell, buy, big.NewInt(100), big.NewInt(50))
	if err != nil {
		t.Fatalf("pack createOrder: %v", err)
	}
	// 4-byte selector + 4 * 32-byte words
	if len(data) != 4+4*32 {
		t.Errorf("packed length = %d, want %d", len(data), 4+4*32)
	}
}

// revertingRPC answers just enough JSON-RPC to drive sendTx, with
// eth_estimateGas always reporting an execution revert.
func revertingRPC(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_chainId":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0xaa36a7"}`, req.ID)
		case "eth_getTransactionCount":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x0"}`, req.ID)
		case "eth_gasPrice":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x3b9aca00"}`, req.ID)
		case "eth_estimateGas":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":3,"message":"execution reverted: order not active"}}`, req.ID)
		case "eth_sendRawTransaction":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x%s"}`, req.ID, strings.Repeat("00", 32))
		default:
			t.Errorf("unexpected rpc method %s", req.Method)
		}
	}))
}

// A revert during gas estimation is a semantic rejection, not a transport
// failure: the transaction must still be submitted so the rejection lands
// in the receipt and is classified like any other on-chain rejection.
func TestSubmitFallsBackWhenEstimateReverts(t *testing.T) {
	srv := revertingRPC(t)
	defer srv.Close()

	contract := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	client, err := Dial(context.Background(), srv.URL, contract, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	actor := swap.NewActorSession(key, client)

	h, err := client.SubmitExecuteOrder(context.Background(), actor, 7)
	if err != nil {
		t.Fatalf("submit returned error for a reverting call: %v", err)
	}
	if h == "" {
		t.Error("expected a tx handle for the submitted transaction")
	}
}

func TestOrderIDFromLogs(t *testing.T) {
	swapABI, _ := mustParseABIs(t)
	contract := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	maker := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	c := &Client{swapABI: swapABI, contract: contract}

	rcpt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			{
				// Unrelated log from another contract, must be skipped.
				Address: maker,
				Topics:  []common.Hash{swapABI.Events["OrderCreated"].ID},
			},
			{
				Address: contract,
				Topics: []common.Hash{
					swapABI.Events["OrderCreated"].ID,
					common.BigToHash(big.NewInt(7)),
					common.BytesToHash(maker.Bytes()),
				},
			},
		},
	}

	id, ok := c.orderIDFromLogs(rcpt)
	if !ok {
		t.Fatal("expected order id in logs")
	}
	if id != swap.OrderID(7) {
		t.Errorf("order id = %d, want 7", id)
	}

	empty := &types.Receipt{Status: types.ReceiptStatusSuccessful}
	if _, ok := c.orderIDFromLogs(empty); ok {
		t.Error("expected no order id in empty receipt")
	}
}
