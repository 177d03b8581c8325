package asset

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/errs"
)

// Ledger executes value movements. Implementations decide what "operator"
// authorisation means (allowance, approval-for-all).
type Ledger interface {
	TransferNative(from, to common.Address, amount *uint256.Int) error
	TransferFungible(token, operator, from, to common.Address, amount *uint256.Int) error
	TransferNonFungible(token, operator, from, to common.Address, tokenID *uint256.Int) error
	TransferSemiFungibleBatch(token, operator, from, to common.Address, ids, amounts []*uint256.Int) error
}

// Kind is the decoded asset class
type Kind uint8

const (
	KindNative Kind = iota + 1
	KindFungible
	KindNonFungible
	KindSemiFungible
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindFungible:
		return "fungible"
	case KindNonFungible:
		return "non_fungible"
	case KindSemiFungible:
		return "semi_fungible"
	default:
		return "unknown"
	}
}

// Movement is one value transfer request
type Movement struct {
	Operator common.Address
	From     common.Address
	To       common.Address
	Value    *uint256.Int
}

// Class is a decoded asset type. Each variant carries only the fields it needs
// and maps to exactly one Ledger primitive.
type Class interface {
	Kind() Kind
	// Token returns the token contract and id, zero values where not applicable
	Token() (common.Address, *uint256.Int)
	Transfer(l Ledger, m Movement) error
}

// NativeClass is the chain's native currency
type NativeClass struct{}

func (NativeClass) Kind() Kind { return KindNative }

func (NativeClass) Token() (common.Address, *uint256.Int) { return common.Address{}, nil }

func (NativeClass) Transfer(l Ledger, m Movement) error {
	return l.TransferNative(m.From, m.To, m.Value)
}

// FungibleClass is an allowance-based token
type FungibleClass struct {
	Contract common.Address
}

func (FungibleClass) Kind() Kind { return KindFungible }

func (c FungibleClass) Token() (common.Address, *uint256.Int) { return c.Contract, nil }

func (c FungibleClass) Transfer(l Ledger, m Movement) error {
	return l.TransferFungible(c.Contract, m.Operator, m.From, m.To, m.Value)
}

// NonFungibleClass is a single unique token
type NonFungibleClass struct {
	Contract common.Address
	TokenID  *uint256.Int
}

func (NonFungibleClass) Kind() Kind { return KindNonFungible }

func (c NonFungibleClass) Token() (common.Address, *uint256.Int) { return c.Contract, c.TokenID }

func (c NonFungibleClass) Transfer(l Ledger, m Movement) error {
	if !m.Value.Eq(uint256.NewInt(1)) {
		return fmt.Errorf("non-fungible value must be 1, got %s", m.Value.Dec())
	}
	return l.TransferNonFungible(c.Contract, m.Operator, m.From, m.To, c.TokenID)
}

// SemiFungibleClass is a unit-counted token id within a multi-token contract
type SemiFungibleClass struct {
	Contract common.Address
	TokenID  *uint256.Int
}

func (SemiFungibleClass) Kind() Kind { return KindSemiFungible }

func (c SemiFungibleClass) Token() (common.Address, *uint256.Int) { return c.Contract, c.TokenID }

func (c SemiFungibleClass) Transfer(l Ledger, m Movement) error {
	return l.TransferSemiFungibleBatch(c.Contract, m.Operator, m.From, m.To,
		[]*uint256.Int{c.TokenID}, []*uint256.Int{m.Value})
}

// Decode interprets t.Data according to t.Class
func Decode(t AssetType) (Class, error) {
	switch t.Class {
	case ClassNative:
		return NativeClass{}, nil
	case ClassFungible:
		out, err := tokenArgs.Unpack(t.Data)
		if err != nil || len(out) != 1 {
			return nil, errs.ErrMalformedAsset.Wrap(fmt.Errorf("fungible data %x: %v", t.Data, err))
		}
		return FungibleClass{Contract: out[0].(common.Address)}, nil
	case ClassNonFungible, ClassSemiFungible:
		token, id, err := unpackTokenID(t.Data)
		if err != nil {
			return nil, errs.ErrMalformedAsset.Wrap(err)
		}
		if t.Class == ClassNonFungible {
			return NonFungibleClass{Contract: token, TokenID: id}, nil
		}
		return SemiFungibleClass{Contract: token, TokenID: id}, nil
	default:
		return nil, errs.ErrUnsupportedAsset.Wrap(fmt.Errorf("class %s", t.Class))
	}
}

func unpackTokenID(data []byte) (common.Address, *uint256.Int, error) {
	out, err := tokenIDArgs.Unpack(data)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("token id data %x: %w", data, err)
	}
	if len(out) != 2 {
		return common.Address{}, nil, fmt.Errorf("token id data %x: want 2 fields, got %d", data, len(out))
	}
	id, overflow := uint256.FromBig(out[1].(*big.Int))
	if overflow {
		return common.Address{}, nil, fmt.Errorf("token id overflows 256 bits")
	}
	return out[0].(common.Address), id, nil
}
