package storage

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/order"
)

// Amounts are stored as 32-byte big-endian words so a raw value can be read
// back without any schema.
func encodeAmount(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func decodeAmount(b []byte) (*uint256.Int, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("amount must be 32 bytes, got %d", len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

// royaltyEntry is the JSON form of a royalty part
type royaltyEntry struct {
	Account common.Address `json:"account"`
	Value   uint16         `json:"value"`
}

func encodeParts(parts []order.Part) ([]byte, error) {
	entries := make([]royaltyEntry, len(parts))
	for i, p := range parts {
		entries[i] = royaltyEntry{Account: p.Account, Value: p.BasisPoints}
	}
	return json.Marshal(entries)
}

func decodeParts(b []byte) ([]order.Part, error) {
	var entries []royaltyEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	parts := make([]order.Part, len(entries))
	for i, e := range entries {
		parts[i] = order.Part{Account: e.Account, BasisPoints: e.Value}
	}
	return parts, nil
}
