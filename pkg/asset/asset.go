// Package asset models tradable assets: the wire-level AssetType/Asset pair
// that orders are signed over, and the decoded per-class variants that know
// how to move themselves through a Ledger.
package asset

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// ClassID is a 4-byte tag selecting how AssetType.Data is interpreted
type ClassID [4]byte

// ID derives a 4-byte tag from a name: the first four bytes of keccak256(name).
// Used for asset classes and order data types alike.
func ID(name string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	var id [4]byte
	copy(id[:], h.Sum(nil))
	return id
}

func (c ClassID) String() string { return hexutil.Encode(c[:]) }

// Known asset classes
var (
	ClassNative       = ClassID(ID("ETH"))
	ClassFungible     = ClassID(ID("ERC20"))
	ClassNonFungible  = ClassID(ID("ERC721"))
	ClassSemiFungible = ClassID(ID("ERC1155"))
)

// AssetType identifies what is traded, without an amount
type AssetType struct {
	Class ClassID
	Data  []byte
}

// Equal reports whether both types name the same asset
func (t AssetType) Equal(o AssetType) bool {
	return t.Class == o.Class && bytes.Equal(t.Data, o.Data)
}

func (t AssetType) String() string {
	return fmt.Sprintf("%s:%s", t.Class, hexutil.Encode(t.Data))
}

// Asset is an AssetType with a face amount in its native unit
type Asset struct {
	Type  AssetType
	Value *uint256.Int
}

// Amount returns the value, treating nil as zero
func (a Asset) Amount() *uint256.Int {
	if a.Value == nil {
		return new(uint256.Int)
	}
	return a.Value
}

// WithValue returns a copy of a carrying value
func (a Asset) WithValue(value *uint256.Int) Asset {
	return Asset{Type: a.Type, Value: new(uint256.Int).Set(value)}
}

var (
	addressTy, _ = abi.NewType("address", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)

	tokenArgs   = abi.Arguments{{Type: addressTy}}
	tokenIDArgs = abi.Arguments{{Type: addressTy}, {Type: uint256Ty}}
)

// NativeType returns the native currency asset type
func NativeType() AssetType {
	return AssetType{Class: ClassNative, Data: []byte{}}
}

// FungibleType returns the asset type of a fungible token contract
func FungibleType(token common.Address) AssetType {
	data, err := tokenArgs.Pack(token)
	if err != nil {
		panic(fmt.Errorf("encode fungible asset: %w", err))
	}
	return AssetType{Class: ClassFungible, Data: data}
}

// NonFungibleType returns the asset type of a single non-fungible token
func NonFungibleType(token common.Address, tokenID *uint256.Int) AssetType {
	return AssetType{Class: ClassNonFungible, Data: packTokenID(token, tokenID)}
}

// SemiFungibleType returns the asset type of one semi-fungible token id
func SemiFungibleType(token common.Address, tokenID *uint256.Int) AssetType {
	return AssetType{Class: ClassSemiFungible, Data: packTokenID(token, tokenID)}
}

func packTokenID(token common.Address, tokenID *uint256.Int) []byte {
	data, err := tokenIDArgs.Pack(token, tokenID.ToBig())
	if err != nil {
		panic(fmt.Errorf("encode token id asset: %w", err))
	}
	return data
}

// Native is shorthand for an amount of native currency
func Native(value uint64) Asset {
	return Asset{Type: NativeType(), Value: uint256.NewInt(value)}
}

// Fungible is shorthand for an amount of a fungible token
func Fungible(token common.Address, value uint64) Asset {
	return Asset{Type: FungibleType(token), Value: uint256.NewInt(value)}
}

// NonFungible is shorthand for one non-fungible token
func NonFungible(token common.Address, tokenID uint64) Asset {
	return Asset{Type: NonFungibleType(token, uint256.NewInt(tokenID)), Value: uint256.NewInt(1)}
}

// SemiFungible is shorthand for units of a semi-fungible token id
func SemiFungible(token common.Address, tokenID, value uint64) Asset {
	return Asset{Type: SemiFungibleType(token, uint256.NewInt(tokenID)), Value: uint256.NewInt(value)}
}
