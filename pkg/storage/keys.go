package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Key schema for Pebble storage
//
// Ledger keys:
//   nat:<address>                     → native balance
//   ft:<token>:<address>              → fungible balance
//   fta:<token>:<owner>:<spender>     → fungible allowance
//   nft:<token>:<id>                  → non-fungible owner
//   nfc:<token>:<owner>               → non-fungible count per owner
//   nfa:<token>:<owner>:<operator>    → operator approval (all tokens)
//   sft:<token>:<id>:<address>        → semi-fungible balance
//
// Settlement keys:
//   fill:<orderHash>                  → fill record (or cancellation marker)
//   roy:<token>                       → token-wide royalties
//   roy:<token>:<id>                  → per-token royalties
//   stl:<timestamp>:<settlementID>    → settlement receipt

// Key prefixes
const (
	prefixNative       = "nat:"
	prefixFungible     = "ft:"
	prefixAllowance    = "fta:"
	prefixOwner        = "nft:"
	prefixOwnerCount   = "nfc:"
	prefixApproval     = "nfa:"
	prefixSemiFungible = "sft:"
	prefixFill         = "fill:"
	prefixRoyalty      = "roy:"
	prefixSettlement   = "stl:"
)

// nativeKey returns the key for a native balance
// Format: "nat:{address}"
func nativeKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixNative, addr.Hex()))
}

// fungibleKey returns the key for a fungible balance
// Format: "ft:{token}:{address}"
func fungibleKey(token, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixFungible, token.Hex(), addr.Hex()))
}

// allowanceKey returns the key for a fungible allowance
// Format: "fta:{token}:{owner}:{spender}"
func allowanceKey(token, owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAllowance, token.Hex(), owner.Hex(), spender.Hex()))
}

// ownerKey returns the key holding a non-fungible token's owner
// Format: "nft:{token}:{id}"
func ownerKey(token common.Address, id *uint256.Int) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOwner, token.Hex(), id.Dec()))
}

// ownerCountKey returns the key for the number of tokens an owner holds
// Format: "nfc:{token}:{owner}"
func ownerCountKey(token, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOwnerCount, token.Hex(), owner.Hex()))
}

// approvalKey returns the key for an operator approval
// Format: "nfa:{token}:{owner}:{operator}"
func approvalKey(token, owner, operator common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixApproval, token.Hex(), owner.Hex(), operator.Hex()))
}

// semiFungibleKey returns the key for a semi-fungible balance
// Format: "sft:{token}:{id}:{address}"
func semiFungibleKey(token common.Address, id *uint256.Int, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixSemiFungible, token.Hex(), id.Dec(), addr.Hex()))
}

// fillKey returns the key for an order's fill record
// Format: "fill:{orderHash}"
func fillKey(hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixFill, hash.Hex()))
}

// royaltyKey returns the key for token-wide royalties
// Format: "roy:{token}"
func royaltyKey(token common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixRoyalty, token.Hex()))
}

// royaltyTokenKey returns the key for one token id's royalties
// Format: "roy:{token}:{id}"
func royaltyTokenKey(token common.Address, id *uint256.Int) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixRoyalty, token.Hex(), id.Dec()))
}

// settlementKey returns the key for a settlement receipt
// Format: "stl:{timestamp}:{settlementID}"
// Timestamp is zero-padded (20 digits) for lexicographic sorting
func settlementKey(timestamp int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixSettlement, timestamp, id))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
