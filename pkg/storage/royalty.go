package storage

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/order"
)

// RoyaltyRegistry stores royalty schedules per token or per token id.
// A per-id entry takes precedence over the token-wide one.
type RoyaltyRegistry struct {
	store *PebbleStore
}

// NewRoyaltyRegistry creates a registry persisted in store
func NewRoyaltyRegistry(store *PebbleStore) *RoyaltyRegistry {
	return &RoyaltyRegistry{store: store}
}

// SetRoyaltiesByToken sets the schedule for every id of token
func (r *RoyaltyRegistry) SetRoyaltiesByToken(token common.Address, parts []order.Part) error {
	return r.set(royaltyKey(token), parts)
}

// SetRoyaltiesByTokenAndTokenID sets the schedule for one id
func (r *RoyaltyRegistry) SetRoyaltiesByTokenAndTokenID(token common.Address, id *uint256.Int, parts []order.Part) error {
	return r.set(royaltyTokenKey(token, id), parts)
}

func (r *RoyaltyRegistry) set(key []byte, parts []order.Part) error {
	var total uint32
	for _, p := range parts {
		if p.Account == (common.Address{}) {
			return fmt.Errorf("royalty recipient must not be the zero address")
		}
		total += uint32(p.BasisPoints)
	}
	if total > order.MaxBasisPoints {
		return fmt.Errorf("royalties total %d bps exceeds %d", total, order.MaxBasisPoints)
	}

	data, err := encodeParts(parts)
	if err != nil {
		return fmt.Errorf("failed to marshal royalties: %w", err)
	}
	if err := r.store.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save royalties: %w", err)
	}
	return nil
}

// Royalties returns the schedule for token id, falling back to the
// token-wide schedule. Unknown tokens have none.
func (r *RoyaltyRegistry) Royalties(_ context.Context, token common.Address, id *uint256.Int) ([]order.Part, error) {
	if id != nil {
		parts, found, err := r.get(royaltyTokenKey(token, id))
		if err != nil || found {
			return parts, err
		}
	}
	parts, _, err := r.get(royaltyKey(token))
	return parts, err
}

func (r *RoyaltyRegistry) get(key []byte) ([]order.Part, bool, error) {
	data, closer, err := r.store.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get royalties: %w", err)
	}
	defer closer.Close()

	parts, err := decodeParts(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal royalties: %w", err)
	}
	return parts, true, nil
}
