// Package storage is a Pebble-backed reference implementation of the
// settlement collaborators: an asset ledger, the order fill store and a
// royalty registry, all in one database so a settlement commits atomically.
package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a store at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// NewMemStore opens a store backed by an in-memory filesystem
func NewMemStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Begin starts a session. Nothing it writes is visible to other readers until
// Commit.
func (s *PebbleStore) Begin() *Session {
	return &Session{batch: s.db.NewIndexedBatch()}
}

// update runs fn in a session and commits it
func (s *PebbleStore) update(fn func(*Session) error) error {
	sess := s.Begin()
	defer sess.Discard()
	if err := fn(sess); err != nil {
		return err
	}
	return sess.Commit()
}

// getAmount reads an amount straight from the database; missing is zero
func (s *PebbleStore) getAmount(key []byte) (*uint256.Int, error) {
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	return decodeAmount(val)
}

// ============================================================================
// Admin operations
// ============================================================================

// MintNative credits native currency to addr
func (s *PebbleStore) MintNative(addr common.Address, amount *uint256.Int) error {
	return s.update(func(sess *Session) error { return sess.credit(nativeKey(addr), amount) })
}

// MintFungible credits fungible tokens to addr
func (s *PebbleStore) MintFungible(token, addr common.Address, amount *uint256.Int) error {
	return s.update(func(sess *Session) error { return sess.credit(fungibleKey(token, addr), amount) })
}

// MintNonFungible creates token id owned by owner
func (s *PebbleStore) MintNonFungible(token common.Address, id *uint256.Int, owner common.Address) error {
	return s.update(func(sess *Session) error {
		current, err := sess.ownerOf(token, id)
		if err != nil {
			return err
		}
		if current != (common.Address{}) {
			return fmt.Errorf("token %s #%s already minted", token.Hex(), id.Dec())
		}
		return sess.setOwner(token, id, owner)
	})
}

// MintSemiFungible credits units of token id to addr
func (s *PebbleStore) MintSemiFungible(token common.Address, id *uint256.Int, addr common.Address, amount *uint256.Int) error {
	return s.update(func(sess *Session) error { return sess.credit(semiFungibleKey(token, id, addr), amount) })
}

// Approve sets the fungible allowance spender may pull from owner
func (s *PebbleStore) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	return s.update(func(sess *Session) error {
		return sess.batch.Set(allowanceKey(token, owner, spender), encodeAmount(amount), nil)
	})
}

// SetApprovalForAll lets operator move every non-fungible and semi-fungible
// token of owner in token
func (s *PebbleStore) SetApprovalForAll(token, owner, operator common.Address, approved bool) error {
	return s.update(func(sess *Session) error {
		key := approvalKey(token, owner, operator)
		if !approved {
			return sess.batch.Delete(key, nil)
		}
		return sess.batch.Set(key, []byte{1}, nil)
	})
}

// ============================================================================
// Queries
// ============================================================================

// NativeBalance returns addr's native balance
func (s *PebbleStore) NativeBalance(addr common.Address) (*uint256.Int, error) {
	return s.getAmount(nativeKey(addr))
}

// FungibleBalance returns addr's balance of token
func (s *PebbleStore) FungibleBalance(token, addr common.Address) (*uint256.Int, error) {
	return s.getAmount(fungibleKey(token, addr))
}

// Allowance returns what spender may still pull from owner
func (s *PebbleStore) Allowance(token, owner, spender common.Address) (*uint256.Int, error) {
	return s.getAmount(allowanceKey(token, owner, spender))
}

// OwnerOf returns the owner of a non-fungible token, zero if unminted
func (s *PebbleStore) OwnerOf(token common.Address, id *uint256.Int) (common.Address, error) {
	val, closer, err := s.db.Get(ownerKey(token, id))
	if err == pebble.ErrNotFound {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get owner: %w", err)
	}
	defer closer.Close()
	return common.BytesToAddress(val), nil
}

// NonFungibleCount returns how many tokens of token owner holds
func (s *PebbleStore) NonFungibleCount(token, owner common.Address) (*uint256.Int, error) {
	return s.getAmount(ownerCountKey(token, owner))
}

// SemiFungibleBalance returns addr's units of token id
func (s *PebbleStore) SemiFungibleBalance(token common.Address, id *uint256.Int, addr common.Address) (*uint256.Int, error) {
	return s.getAmount(semiFungibleKey(token, id, addr))
}

// GetFill returns the committed fill record of an order
func (s *PebbleStore) GetFill(hash common.Hash) (*uint256.Int, error) {
	return s.getAmount(fillKey(hash))
}

// ============================================================================
// Settlement receipts
// ============================================================================

// LoadRecentSettlements loads the most recent N settlement receipts, newest first
func (s *PebbleStore) LoadRecentSettlements(limit int) ([][]byte, error) {
	prefix := []byte(prefixSettlement)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var receipts [][]byte
	for iter.Last(); iter.Valid() && len(receipts) < limit; iter.Prev() {
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		receipts = append(receipts, val)
	}
	return receipts, nil
}
