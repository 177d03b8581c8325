package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Session stages ledger movements and fill updates in an indexed batch.
// Reads see the session's own writes. Not safe for concurrent use.
type Session struct {
	batch  *pebble.Batch
	closed bool
}

// Commit makes every staged write durable
func (s *Session) Commit() error {
	if s.closed {
		return fmt.Errorf("session already closed")
	}
	s.closed = true
	defer s.batch.Close()
	if err := s.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// Discard drops every staged write. Safe to call after Commit.
func (s *Session) Discard() {
	if s.closed {
		return
	}
	s.closed = true
	s.batch.Close()
}

func (s *Session) getAmount(key []byte) (*uint256.Int, error) {
	val, closer, err := s.batch.Get(key)
	if err == pebble.ErrNotFound {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	return decodeAmount(val)
}

func (s *Session) setAmount(key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return s.batch.Delete(key, nil)
	}
	return s.batch.Set(key, encodeAmount(v), nil)
}

func (s *Session) credit(key []byte, amount *uint256.Int) error {
	bal, err := s.getAmount(key)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("balance overflow")
	}
	return s.setAmount(key, sum)
}

func (s *Session) debit(key []byte, amount *uint256.Int, what string) error {
	bal, err := s.getAmount(key)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("insufficient %s balance: have %s, need %s", what, bal.Dec(), amount.Dec())
	}
	return s.setAmount(key, new(uint256.Int).Sub(bal, amount))
}

func (s *Session) move(from, to []byte, amount *uint256.Int, what string) error {
	if err := s.debit(from, amount, what); err != nil {
		return err
	}
	return s.credit(to, amount)
}

// ============================================================================
// Ledger
// ============================================================================

// TransferNative moves native currency
func (s *Session) TransferNative(from, to common.Address, amount *uint256.Int) error {
	return s.move(nativeKey(from), nativeKey(to), amount, "native")
}

// TransferFungible pulls tokens from `from`. Unless operator is the owner it
// spends operator's allowance; an allowance of 2^256-1 is never decremented.
func (s *Session) TransferFungible(token, operator, from, to common.Address, amount *uint256.Int) error {
	if operator != from {
		key := allowanceKey(token, from, operator)
		allowance, err := s.getAmount(key)
		if err != nil {
			return err
		}
		if allowance.Lt(amount) {
			return fmt.Errorf("insufficient allowance: have %s, need %s", allowance.Dec(), amount.Dec())
		}
		if !allowance.Eq(new(uint256.Int).SetAllOne()) {
			if err := s.setAmount(key, new(uint256.Int).Sub(allowance, amount)); err != nil {
				return err
			}
		}
	}
	return s.move(fungibleKey(token, from), fungibleKey(token, to), amount, "fungible")
}

// TransferNonFungible moves a unique token
func (s *Session) TransferNonFungible(token, operator, from, to common.Address, tokenID *uint256.Int) error {
	owner, err := s.ownerOf(token, tokenID)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("token %s #%s is not owned by %s", token.Hex(), tokenID.Dec(), from.Hex())
	}
	if err := s.checkOperator(token, from, operator); err != nil {
		return err
	}
	if err := s.debit(ownerCountKey(token, from), uint256.NewInt(1), "non-fungible"); err != nil {
		return err
	}
	return s.setOwner(token, tokenID, to)
}

// TransferSemiFungibleBatch moves units of several ids of one token
func (s *Session) TransferSemiFungibleBatch(token, operator, from, to common.Address, ids, amounts []*uint256.Int) error {
	if len(ids) != len(amounts) {
		return fmt.Errorf("ids and amounts length mismatch: %d vs %d", len(ids), len(amounts))
	}
	if err := s.checkOperator(token, from, operator); err != nil {
		return err
	}
	for i, id := range ids {
		if err := s.move(semiFungibleKey(token, id, from), semiFungibleKey(token, id, to), amounts[i], "semi-fungible"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) checkOperator(token, owner, operator common.Address) error {
	if operator == owner {
		return nil
	}
	_, closer, err := s.batch.Get(approvalKey(token, owner, operator))
	if err == pebble.ErrNotFound {
		return fmt.Errorf("%s is not approved to move %s tokens of %s", operator.Hex(), token.Hex(), owner.Hex())
	}
	if err != nil {
		return fmt.Errorf("failed to get approval: %w", err)
	}
	return closer.Close()
}

func (s *Session) ownerOf(token common.Address, id *uint256.Int) (common.Address, error) {
	val, closer, err := s.batch.Get(ownerKey(token, id))
	if err == pebble.ErrNotFound {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get owner: %w", err)
	}
	defer closer.Close()
	return common.BytesToAddress(val), nil
}

// setOwner records to as owner and bumps its count. The previous owner's
// count is the caller's business.
func (s *Session) setOwner(token common.Address, id *uint256.Int, to common.Address) error {
	if err := s.batch.Set(ownerKey(token, id), to.Bytes(), nil); err != nil {
		return err
	}
	return s.credit(ownerCountKey(token, to), uint256.NewInt(1))
}
