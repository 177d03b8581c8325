package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// Changing any field invalidates every signature issued under the old domain
type EIP712Domain struct {
	Name              string         // Protocol name ("Exchange")
	Version           string         // Protocol version ("2")
	ChainID           *big.Int       // Chain the settlement runs on
	VerifyingContract common.Address // Address of the settlement entry point
}

// DefaultDomain returns the default settlement domain for a local dev chain
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "Exchange",
		Version:           "2",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

// domainType is shared by every typed-data payload
var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// TypedData builds an apitypes.TypedData for the domain with the given types
// and message. The EIP712Domain type is added automatically.
func (d EIP712Domain) TypedData(types apitypes.Types, primaryType string, message apitypes.TypedDataMessage) apitypes.TypedData {
	all := apitypes.Types{"EIP712Domain": domainType}
	for name, fields := range types {
		all[name] = fields
	}
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return apitypes.TypedData{
		Types:       all,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: message,
	}
}

// Separator returns hashStruct(EIP712Domain)
func (d EIP712Domain) Separator() (common.Hash, error) {
	typedData := d.TypedData(nil, "EIP712Domain", nil)
	sep, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(sep), nil
}

// StructHash hashes the primary type of typedData (without the domain)
func StructHash(typedData apitypes.TypedData) (common.Hash, error) {
	h, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash message: %w", err)
	}
	return common.BytesToHash(h), nil
}

// Digest returns the value that gets signed:
// keccak256("\x19\x01" || domainSeparator || structHash)
func Digest(domainSeparator, structHash common.Hash) common.Hash {
	raw := make([]byte, 0, 2+common.HashLength*2)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator.Bytes()...)
	raw = append(raw, structHash.Bytes()...)
	return crypto.Keccak256Hash(raw)
}
