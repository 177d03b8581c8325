package exchange

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/transfer"
)

// Call is the account submitting an operation and the native value it attaches
type Call struct {
	Caller common.Address
	Value  *uint256.Int
}

func (c Call) attached() *uint256.Int {
	if c.Value == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(c.Value)
}

// Settlement describes one committed match
type Settlement struct {
	ID          string
	Mode        string
	Time        time.Time
	LeftHash    common.Hash
	RightHash   common.Hash
	LeftFill    *uint256.Int   // left's fill record after the match
	RightFill   *uint256.Int   // right's fill record after the match
	LeftValues  []*uint256.Int // left's make assets sent to right, per position
	RightValues []*uint256.Int // right's make assets sent to left, per position
	FeeSide     string
	Transfers   []transfer.Record
	NativeSpent *uint256.Int
	Refund      *uint256.Int
}

// MatchResult is the outcome of one pair of a multi-match call
type MatchResult struct {
	Index      int
	Settlement *Settlement
	Err        error
}

// TransferReceipt is the JSON form of a transfer record
type TransferReceipt struct {
	Reason transfer.Reason `json:"reason"`
	Class  string          `json:"class"`
	Asset  string          `json:"asset"`
	From   common.Address  `json:"from"`
	To     common.Address  `json:"to"`
	Value  string          `json:"value"`
}

// Receipt is the JSON form of a settlement, as persisted and printed
type Receipt struct {
	ID          string            `json:"id"`
	Mode        string            `json:"mode"`
	Time        time.Time         `json:"time"`
	LeftHash    common.Hash       `json:"leftHash"`
	RightHash   common.Hash       `json:"rightHash"`
	LeftFill    string            `json:"leftFill"`
	RightFill   string            `json:"rightFill"`
	LeftValues  []string          `json:"leftValues"`
	RightValues []string          `json:"rightValues"`
	FeeSide     string            `json:"feeSide"`
	Transfers   []TransferReceipt `json:"transfers"`
	NativeSpent string            `json:"nativeSpent"`
	Refund      string            `json:"refund"`
}

// Receipt converts s to its JSON form
func (s *Settlement) Receipt() Receipt {
	r := Receipt{
		ID:          s.ID,
		Mode:        s.Mode,
		Time:        s.Time,
		LeftHash:    s.LeftHash,
		RightHash:   s.RightHash,
		LeftFill:    dec(s.LeftFill),
		RightFill:   dec(s.RightFill),
		LeftValues:  decs(s.LeftValues),
		RightValues: decs(s.RightValues),
		FeeSide:     s.FeeSide,
		NativeSpent: dec(s.NativeSpent),
		Refund:      dec(s.Refund),
	}
	for _, t := range s.Transfers {
		r.Transfers = append(r.Transfers, TransferReceipt{
			Reason: t.Reason,
			Class:  t.Kind.String(),
			Asset:  t.Type.String(),
			From:   t.From,
			To:     t.To,
			Value:  dec(t.Value),
		})
	}
	return r
}

func encodeReceipt(s *Settlement) ([]byte, error) {
	data, err := json.Marshal(s.Receipt())
	if err != nil {
		return nil, fmt.Errorf("failed to encode settlement %s: %w", s.ID, err)
	}
	return data, nil
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func decs(vs []*uint256.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = dec(v)
	}
	return out
}
