package exchange

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/exchangev2/pkg/errs"
	"github.com/uhyunpark/exchangev2/pkg/order"
)

// Cancel permanently disables an order. Only its maker may cancel it, and
// orders without salt cannot be cancelled.
func (e *Exchange) Cancel(ctx context.Context, caller common.Address, o order.Order) error {
	if caller != o.Maker {
		return errs.ErrNotMaker
	}
	if o.IsOnChain() {
		return errs.ErrZeroSalt
	}
	hash, err := e.codec.Hash(o)
	if err != nil {
		return errs.ErrInvalidOrder.Wrap(err)
	}
	return e.cancel(ctx, o.Maker, hash)
}

// CancelBatch is Cancel for batch orders
func (e *Exchange) CancelBatch(ctx context.Context, caller common.Address, b order.OrderBatch) error {
	if caller != b.Maker {
		return errs.ErrNotMaker
	}
	if b.IsOnChain() {
		return errs.ErrZeroSalt
	}
	hash, err := e.codec.HashBatch(b)
	if err != nil {
		return errs.ErrInvalidOrder.Wrap(err)
	}
	return e.cancel(ctx, b.Maker, hash)
}

func (e *Exchange) cancel(ctx context.Context, maker common.Address, hash common.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.backend.Begin(ctx)
	if err != nil {
		return errs.ErrStorage.Wrap(err)
	}
	defer sess.Discard()

	if err := sess.Cancel(hash); err != nil {
		return errs.ErrStorage.Wrap(err)
	}
	if err := sess.Commit(); err != nil {
		return errs.ErrStorage.Wrap(err)
	}

	e.metrics.IncCancels(1)
	e.logger.Infow("order_cancelled", "hash", hash.Hex(), "maker", maker.Hex())
	return nil
}
