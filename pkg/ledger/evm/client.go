// Package evm talks to the swap contract on an EVM chain through a JSON-RPC
// endpoint. It is the production implementation of swap.LedgerClient.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/p2pswap/swapd/pkg/swap"
	"github.com/p2pswap/swapd/pkg/util"
)

// Contract interfaces, JSON-ABI form of what the dApp calls.
const swapABIJSON = `[
  {"type":"function","name":"createOrder","stateMutability":"nonpayable","inputs":[{"name":"_tokenToSell","type":"address"},{"name":"_tokenToBuy","type":"address"},{"name":"_amountToSell","type":"uint256"},{"name":"_amountToBuy","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"executeOrder","stateMutability":"nonpayable","inputs":[{"name":"_orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[{"name":"_orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getOrder","stateMutability":"view","inputs":[{"name":"_orderId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"maker","type":"address"},{"name":"tokenToSell","type":"address"},{"name":"tokenToBuy","type":"address"},{"name":"amountToSell","type":"uint256"},{"name":"amountToBuy","type":"uint256"},{"name":"isActive","type":"bool"}]}]},
  {"type":"event","name":"OrderCreated","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":true},{"name":"maker","type":"address","indexed":true}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const defaultPollInterval = 2 * time.Second

// Gas limit used when estimation fails; generous for any swap contract call.
const fallbackGasLimit = 500_000

type orderTuple struct {
	Maker        common.Address
	TokenToSell  common.Address
	TokenToBuy   common.Address
	AmountToSell *big.Int
	AmountToBuy  *big.Int
	IsActive     bool
}

// Client submits signed transactions to the swap contract and observes
// their receipts. Confirmation is receipt polling bounded by the timeout
// passed to AwaitConfirmation.
type Client struct {
	rpc      *ethclient.Client
	contract common.Address
	swapABI  abi.ABI
	erc20ABI abi.ABI
	chainID  *big.Int
	poll     time.Duration
	clock    util.Clock
	log      *zap.SugaredLogger
}

func Dial(ctx context.Context, rpcURL string, contract common.Address, log *zap.SugaredLogger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	swapABI, err := abi.JSON(strings.NewReader(swapABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse swap abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	log.Infow("evm_client_ready", "contract", contract.Hex(), "chain_id", chainID.String())
	return &Client{
		rpc:      rpc,
		contract: contract,
		swapABI:  swapABI,
		erc20ABI: erc20ABI,
		chainID:  chainID,
		poll:     defaultPollInterval,
		clock:    util.RealClock{},
		log:      log,
	}, nil
}

// SetPollInterval overrides how often receipts are polled.
func (c *Client) SetPollInterval(d time.Duration, clock util.Clock) {
	c.poll = d
	c.clock = clock
}

func (c *Client) ReadOrder(ctx context.Context, id swap.OrderID) (*swap.Order, error) {
	data, err := c.swapABI.Pack("getOrder", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return nil, fmt.Errorf("pack getOrder: %w", err)
	}
	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getOrder: %w", err)
	}
	out, err := c.swapABI.Unpack("getOrder", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack getOrder: %w", err)
	}
	tuple := *abi.ConvertType(out[0], new(orderTuple)).(*orderTuple)

	// The contract returns a zero struct for ids it has never assigned.
	if tuple.Maker == (common.Address{}) {
		return nil, swap.ErrOrderNotFound
	}
	return &swap.Order{
		ID:           id,
		Maker:        tuple.Maker,
		TokenToSell:  tuple.TokenToSell,
		TokenToBuy:   tuple.TokenToBuy,
		AmountToSell: tuple.AmountToSell,
		AmountToBuy:  tuple.AmountToBuy,
		IsActive:     tuple.IsActive,
	}, nil
}

func (c *Client) SubmitApprove(ctx context.Context, actor *swap.ActorSession, token common.Address, amount *big.Int) (swap.TxHandle, error) {
	data, err := c.erc20ABI.Pack("approve", c.contract, amount)
	if err != nil {
		return "", fmt.Errorf("pack approve: %w", err)
	}
	return c.sendTx(ctx, actor, token, data)
}

func (c *Client) SubmitCreateOrder(ctx context.Context, actor *swap.ActorSession, p swap.CreateParams) (swap.TxHandle, error) {
	data, err := c.swapABI.Pack("createOrder", p.TokenToSell, p.TokenToBuy, p.AmountToSell, p.AmountToBuy)
	if err != nil {
		return "", fmt.Errorf("pack createOrder: %w", err)
	}
	return c.sendTx(ctx, actor, c.contract, data)
}

func (c *Client) SubmitExecuteOrder(ctx context.Context, actor *swap.ActorSession, id swap.OrderID) (swap.TxHandle, error) {
	data, err := c.swapABI.Pack("executeOrder", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return "", fmt.Errorf("pack executeOrder: %w", err)
	}
	return c.sendTx(ctx, actor, c.contract, data)
}

func (c *Client) SubmitCancelOrder(ctx context.Context, actor *swap.ActorSession, id swap.OrderID) (swap.TxHandle, error) {
	data, err := c.swapABI.Pack("cancelOrder", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return "", fmt.Errorf("pack cancelOrder: %w", err)
	}
	return c.sendTx(ctx, actor, c.contract, data)
}

func (c *Client) sendTx(ctx context.Context, actor *swap.ActorSession, to common.Address, data []byte) (swap.TxHandle, error) {
	from := actor.Address()

	nonce, err := c.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}
	// A failed estimate is the node simulating a revert (e.g. the order was
	// settled since the last read), not an outage. A submit error must mean
	// the ledger was unreachable, so send with a fixed limit and let the
	// rejection surface through the receipt as ConfirmFailed.
	gasLimit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		c.log.Warnw("gas_estimate_failed", "to", to.Hex(), "err", err)
		gasLimit = fallbackGasLimit
	}

	tx := types.NewTransaction(nonce, to, new(big.Int), gasLimit, gasPrice, data)
	signed, err := actor.Key.SignTx(tx, c.chainID)
	if err != nil {
		return "", err
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	h := swap.TxHandle(signed.Hash().Hex())
	c.log.Infow("tx_submitted", "tx", string(h), "to", to.Hex(), "from", from.Hex())
	return h, nil
}

func (c *Client) AwaitConfirmation(ctx context.Context, h swap.TxHandle, timeout time.Duration) (swap.Confirmation, error) {
	hash := common.HexToHash(string(h))
	deadline := c.clock.After(timeout)

	for {
		rcpt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			if rcpt.Status == types.ReceiptStatusSuccessful {
				receipt := &swap.Receipt{Handle: h}
				if id, ok := c.orderIDFromLogs(rcpt); ok {
					receipt.OrderID = id
				}
				return swap.Confirmation{Status: swap.ConfirmOK, Receipt: receipt}, nil
			}
			// Revert reasons are not in the receipt; callers that need the
			// exact reason can replay the call. "reverted" is enough for
			// the coordinator's classification.
			return swap.Confirmation{Status: swap.ConfirmFailed, Reason: "transaction reverted"}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return swap.Confirmation{}, fmt.Errorf("receipt lookup: %w", err)
		}

		select {
		case <-ctx.Done():
			return swap.Confirmation{}, ctx.Err()
		case <-deadline:
			return swap.Confirmation{Status: swap.ConfirmTimedOut}, nil
		case <-c.clock.After(c.poll):
		}
	}
}

// orderIDFromLogs recovers the new order id from the OrderCreated event.
func (c *Client) orderIDFromLogs(rcpt *types.Receipt) (swap.OrderID, bool) {
	topic := c.swapABI.Events["OrderCreated"].ID
	for _, lg := range rcpt.Logs {
		if lg.Address == c.contract && len(lg.Topics) >= 2 && lg.Topics[0] == topic {
			return swap.OrderID(new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64()), true
		}
	}
	return 0, false
}
