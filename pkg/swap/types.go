package swap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderID identifies an order on the swap ledger.
type OrderID uint64

// Order is a read-only projection of ledger-owned order state. The ledger
// flips IsActive exactly once, on execute or cancel; nothing here mutates it.
type Order struct {
	ID           OrderID
	Maker        common.Address
	TokenToSell  common.Address
	TokenToBuy   common.Address
	AmountToSell *big.Int // base units
	AmountToBuy  *big.Int // base units
	IsActive     bool
}

// CreateParams are the maker's intent for a new order. Amounts are integers
// in token base units; decimal conversion belongs to the display layer.
type CreateParams struct {
	TokenToSell  common.Address
	TokenToBuy   common.Address
	AmountToSell *big.Int
	AmountToBuy  *big.Int
}

// TxHandle identifies one submitted ledger operation. Its format is
// backend-specific (tx hash for EVM, sequence number for the sim ledger).
type TxHandle string

// Receipt is the ledger's durable acceptance of an operation. OrderID is
// set only on create-order confirmations.
type Receipt struct {
	Handle  TxHandle
	OrderID OrderID
}

// ConfirmStatus is the observed outcome of one confirmation wait.
type ConfirmStatus int

const (
	ConfirmOK ConfirmStatus = iota
	ConfirmFailed
	ConfirmTimedOut
)

func (s ConfirmStatus) String() string {
	switch s {
	case ConfirmOK:
		return "CONFIRMED"
	case ConfirmFailed:
		return "FAILED"
	case ConfirmTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Confirmation is the result of AwaitConfirmation. Reason carries the
// ledger's revert reason when Status is ConfirmFailed.
type Confirmation struct {
	Status  ConfirmStatus
	Receipt *Receipt
	Reason  string
}
