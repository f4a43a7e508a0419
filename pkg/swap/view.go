package swap

import (
	"context"

	"go.uber.org/zap"
)

// OrderView is the read path over ledger order state. Every call performs
// a fresh read -- no caching between calls, since order state can change
// between any two reads. Safe for concurrent use.
type OrderView struct {
	ledger LedgerClient
	log    *zap.SugaredLogger
}

func NewOrderView(ledger LedgerClient, log *zap.SugaredLogger) *OrderView {
	return &OrderView{ledger: ledger, log: log}
}

// Order fetches the current state of one order. Returns ErrOrderNotFound
// when the id is unknown to the ledger.
func (v *OrderView) Order(ctx context.Context, id OrderID) (*Order, error) {
	order, err := v.ledger.ReadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	v.log.Debugw("order_read",
		"order_id", uint64(id),
		"maker", order.Maker.Hex(),
		"is_active", order.IsActive)
	return order, nil
}
