// Package order defines signed trade intents and their EIP-712 encoding.
package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/errs"
)

// MaxBasisPoints is 100%
const MaxBasisPoints = 10000

// Order data types
var (
	DataTypeDefault = [4]byte{0xff, 0xff, 0xff, 0xff} // no order data, zero fees
	DataTypeV1      = asset.ID("V1")                  // Data carries origin fees
)

// Part is a fee beneficiary and its share in basis points
type Part struct {
	Account     common.Address
	BasisPoints uint16
}

// Order is a maker's signed intent to exchange MakeAsset for TakeAsset.
// Taker == zero address lets anyone fill it. Start/End of 0 are unbounded.
type Order struct {
	Maker     common.Address
	MakeAsset asset.Asset
	Taker     common.Address
	TakeAsset asset.Asset
	Salt      *uint256.Int
	Start     uint64
	End       uint64
	DataType  [4]byte
	Data      []byte
}

// New returns an order with no order data, valid at any time
func New(maker common.Address, makeAsset asset.Asset, taker common.Address, takeAsset asset.Asset, salt uint64) Order {
	return Order{
		Maker:     maker,
		MakeAsset: makeAsset,
		Taker:     taker,
		TakeAsset: takeAsset,
		Salt:      uint256.NewInt(salt),
		DataType:  DataTypeDefault,
		Data:      []byte{},
	}
}

// NewBatch returns a batch order with no order data, valid at any time
func NewBatch(maker common.Address, makeAssets []asset.Asset, taker common.Address, takeAssets []asset.Asset, salt uint64) OrderBatch {
	return OrderBatch{
		Maker:      maker,
		MakeAssets: makeAssets,
		Taker:      taker,
		TakeAssets: takeAssets,
		Salt:       uint256.NewInt(salt),
		DataType:   DataTypeDefault,
		Data:       []byte{},
	}
}

// OrderBatch is an order over lists of assets settled all-or-nothing
type OrderBatch struct {
	Maker      common.Address
	MakeAssets []asset.Asset
	Taker      common.Address
	TakeAssets []asset.Asset
	Salt       *uint256.Int
	Start      uint64
	End        uint64
	DataType   [4]byte
	Data       []byte
}

// saltOrZero treats a nil salt as zero
func saltOrZero(s *uint256.Int) *uint256.Int {
	if s == nil {
		return new(uint256.Int)
	}
	return s
}

// IsOnChain reports whether the order has zero salt and so must be submitted
// by its maker
func (o Order) IsOnChain() bool { return saltOrZero(o.Salt).IsZero() }

// Fees returns the origin fees carried in the order data
func (o Order) Fees() ([]Part, error) { return decodeFees(o.DataType, o.Data) }

// WithFees returns a copy of o carrying parts as V1 order data
func (o Order) WithFees(parts []Part) Order {
	o.DataType = DataTypeV1
	o.Data = EncodeFees(parts)
	return o
}

// Validate checks the order's shape. It does not look at signatures or state.
func (o Order) Validate() error {
	if err := validateMakeValue(o.MakeAsset.Amount()); err != nil {
		return err
	}
	_, err := o.Fees()
	return err
}

// IsOnChain reports whether the batch has zero salt
func (b OrderBatch) IsOnChain() bool { return saltOrZero(b.Salt).IsZero() }

// Fees returns the origin fees carried in the batch data
func (b OrderBatch) Fees() ([]Part, error) { return decodeFees(b.DataType, b.Data) }

// WithFees returns a copy of b carrying parts as V1 order data
func (b OrderBatch) WithFees(parts []Part) OrderBatch {
	b.DataType = DataTypeV1
	b.Data = EncodeFees(parts)
	return b
}

// Validate checks the batch's shape
func (b OrderBatch) Validate() error {
	if len(b.MakeAssets) == 0 || len(b.TakeAssets) == 0 {
		return errs.ErrInvalidOrder.Wrap(fmt.Errorf("batch needs at least one make and one take asset"))
	}
	for i, a := range b.MakeAssets {
		if a.Amount().IsZero() {
			return errs.ErrInvalidOrder.Wrap(fmt.Errorf("make asset %d has zero value", i))
		}
	}
	_, err := b.Fees()
	return err
}

func validateMakeValue(v *uint256.Int) error {
	if v.IsZero() {
		return errs.ErrInvalidOrder.Wrap(fmt.Errorf("make value must be positive"))
	}
	if v.Eq(new(uint256.Int).SetAllOne()) {
		return errs.ErrInvalidOrder.Wrap(fmt.Errorf("make value collides with the cancellation marker"))
	}
	return nil
}

// abiPart mirrors tuple(address account,uint96 value)
type abiPart struct {
	Account common.Address `json:"account"`
	Value   *big.Int       `json:"value"`
}

var feesArgs = func() abi.Arguments {
	ty, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "account", Type: "address"},
		{Name: "value", Type: "uint96"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: ty}}
}()

// EncodeFees ABI-encodes parts as V1 order data
func EncodeFees(parts []Part) []byte {
	in := make([]abiPart, len(parts))
	for i, p := range parts {
		in[i] = abiPart{Account: p.Account, Value: big.NewInt(int64(p.BasisPoints))}
	}
	data, err := feesArgs.Pack(in)
	if err != nil {
		panic(fmt.Errorf("encode fees: %w", err))
	}
	return data
}

func decodeFees(dataType [4]byte, data []byte) ([]Part, error) {
	switch dataType {
	case DataTypeDefault:
		return nil, nil
	case DataTypeV1:
	default:
		return nil, errs.ErrUnknownDataType.Wrap(fmt.Errorf("%x", dataType))
	}

	out, err := feesArgs.Unpack(data)
	if err != nil {
		return nil, errs.ErrInvalidOrder.Wrap(fmt.Errorf("decode V1 data: %w", err))
	}
	raw := *abi.ConvertType(out[0], new([]abiPart)).(*[]abiPart)

	parts := make([]Part, len(raw))
	for i, p := range raw {
		if p.Value.Cmp(big.NewInt(MaxBasisPoints)) > 0 {
			return nil, errs.ErrInvalidOrder.Wrap(fmt.Errorf("fee %d exceeds %d bps", i, MaxBasisPoints))
		}
		parts[i] = Part{Account: p.Account, BasisPoints: uint16(p.Value.Uint64())}
	}
	return parts, nil
}
