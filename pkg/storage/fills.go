package storage

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// GetFill returns an order's fill record; unseen orders report zero
func (s *Session) GetFill(hash common.Hash) (*uint256.Int, error) {
	return s.getAmount(fillKey(hash))
}

// RecordFill stores a new fill. Fills never decrease.
func (s *Session) RecordFill(hash common.Hash, fill *uint256.Int) error {
	current, err := s.GetFill(hash)
	if err != nil {
		return err
	}
	if fill.Lt(current) {
		return fmt.Errorf("fill of %s would decrease from %s to %s", hash.Hex(), current.Dec(), fill.Dec())
	}
	return s.batch.Set(fillKey(hash), encodeAmount(fill), nil)
}

// Cancel marks an order as cancelled. Repeating it is a no-op.
func (s *Session) Cancel(hash common.Hash) error {
	return s.batch.Set(fillKey(hash), encodeAmount(new(uint256.Int).SetAllOne()), nil)
}

// SaveSettlement stages a settlement receipt
func (s *Session) SaveSettlement(at time.Time, id string, receipt []byte) error {
	return s.batch.Set(settlementKey(at.UnixNano(), id), receipt, nil)
}
