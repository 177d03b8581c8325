package exchange

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/storage"
)

// Session stages every mutation of one settlement. Nothing is visible to
// other sessions until Commit succeeds; Discard drops the staged writes.
type Session interface {
	asset.Ledger

	GetFill(hash common.Hash) (*uint256.Int, error)
	RecordFill(hash common.Hash, fill *uint256.Int) error
	Cancel(hash common.Hash) error
	SaveSettlement(at time.Time, id string, receipt []byte) error

	Commit() error
	Discard()
}

// Backend opens sessions over the fill store and asset ledger
type Backend interface {
	Begin(ctx context.Context) (Session, error)
	LoadRecentSettlements(limit int) ([][]byte, error)
}

type storeBackend struct {
	store *storage.PebbleStore
}

// NewStoreBackend serves sessions from a pebble store
func NewStoreBackend(store *storage.PebbleStore) Backend {
	return &storeBackend{store: store}
}

func (b *storeBackend) Begin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.store.Begin(), nil
}

func (b *storeBackend) LoadRecentSettlements(limit int) ([][]byte, error) {
	return b.store.LoadRecentSettlements(limit)
}
