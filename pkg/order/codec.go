package order

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/crypto"
)

// Typed-data layout shared with wallet-side signing code. Field names and
// order are part of the hash and must not change.
var (
	assetTypeFields = []apitypes.Type{
		{Name: "assetClass", Type: "bytes4"},
		{Name: "data", Type: "bytes"},
	}
	assetFields = []apitypes.Type{
		{Name: "assetType", Type: "AssetType"},
		{Name: "value", Type: "uint256"},
	}

	orderTypes = apitypes.Types{
		"AssetType": assetTypeFields,
		"Asset":     assetFields,
		"Order": {
			{Name: "maker", Type: "address"},
			{Name: "makeAsset", Type: "Asset"},
			{Name: "taker", Type: "address"},
			{Name: "takeAsset", Type: "Asset"},
			{Name: "salt", Type: "uint256"},
			{Name: "start", Type: "uint256"},
			{Name: "end", Type: "uint256"},
			{Name: "dataType", Type: "bytes4"},
			{Name: "data", Type: "bytes"},
		},
	}

	batchTypes = apitypes.Types{
		"AssetType": assetTypeFields,
		"Asset":     assetFields,
		"OrderBatch": {
			{Name: "maker", Type: "address"},
			{Name: "makeAssets", Type: "Asset[]"},
			{Name: "taker", Type: "address"},
			{Name: "takeAssets", Type: "Asset[]"},
			{Name: "salt", Type: "uint256"},
			{Name: "start", Type: "uint256"},
			{Name: "end", Type: "uint256"},
			{Name: "dataType", Type: "bytes4"},
			{Name: "data", Type: "bytes"},
		},
	}
)

// Codec hashes orders under one signing domain
type Codec struct {
	domain    crypto.EIP712Domain
	separator common.Hash
}

// NewCodec creates a codec for domain
func NewCodec(domain crypto.EIP712Domain) (*Codec, error) {
	sep, err := domain.Separator()
	if err != nil {
		return nil, err
	}
	return &Codec{domain: domain, separator: sep}, nil
}

// Domain returns the signing domain
func (c *Codec) Domain() crypto.EIP712Domain { return c.domain }

// DomainSeparator returns hashStruct(EIP712Domain)
func (c *Codec) DomainSeparator() common.Hash { return c.separator }

// TypedData returns the full EIP-712 payload for o, as handed to a wallet
func (c *Codec) TypedData(o Order) apitypes.TypedData {
	return c.domain.TypedData(orderTypes, "Order", orderMessage(o))
}

// TypedDataBatch returns the full EIP-712 payload for b
func (c *Codec) TypedDataBatch(b OrderBatch) apitypes.TypedData {
	return c.domain.TypedData(batchTypes, "OrderBatch", batchMessage(b))
}

// Hash returns the order's struct hash. It identifies the order in the fill
// store and does not depend on the domain.
func (c *Codec) Hash(o Order) (common.Hash, error) {
	h, err := crypto.StructHash(c.TypedData(o))
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash order: %w", err)
	}
	return h, nil
}

// Digest returns the value the maker signs
func (c *Codec) Digest(o Order) (common.Hash, error) {
	h, err := c.Hash(o)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Digest(c.separator, h), nil
}

// HashBatch returns the batch's struct hash
func (c *Codec) HashBatch(b OrderBatch) (common.Hash, error) {
	h, err := crypto.StructHash(c.TypedDataBatch(b))
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash order batch: %w", err)
	}
	return h, nil
}

// DigestBatch returns the value the batch maker signs
func (c *Codec) DigestBatch(b OrderBatch) (common.Hash, error) {
	h, err := c.HashBatch(b)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Digest(c.separator, h), nil
}

// Sign signs o with s
func (c *Codec) Sign(s *crypto.Signer, o Order) ([]byte, error) {
	digest, err := c.Digest(o)
	if err != nil {
		return nil, err
	}
	return s.Sign(digest.Bytes())
}

// SignBatch signs b with s
func (c *Codec) SignBatch(s *crypto.Signer, b OrderBatch) ([]byte, error) {
	digest, err := c.DigestBatch(b)
	if err != nil {
		return nil, err
	}
	return s.Sign(digest.Bytes())
}

// Nested structs must be plain map[string]interface{} for apitypes to
// recurse into them.
func assetMessage(a asset.Asset) map[string]interface{} {
	return map[string]interface{}{
		"assetType": map[string]interface{}{
			"assetClass": hexutil.Encode(a.Type.Class[:]),
			"data":       hexutil.Encode(a.Type.Data),
		},
		"value": a.Amount().Dec(),
	}
}

func assetsMessage(assets []asset.Asset) []interface{} {
	out := make([]interface{}, len(assets))
	for i, a := range assets {
		out[i] = assetMessage(a)
	}
	return out
}

func orderMessage(o Order) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"maker":     o.Maker.Hex(),
		"makeAsset": assetMessage(o.MakeAsset),
		"taker":     o.Taker.Hex(),
		"takeAsset": assetMessage(o.TakeAsset),
		"salt":      saltOrZero(o.Salt).Dec(),
		"start":     uint256.NewInt(o.Start).Dec(),
		"end":       uint256.NewInt(o.End).Dec(),
		"dataType":  hexutil.Encode(o.DataType[:]),
		"data":      hexutil.Encode(o.Data),
	}
}

func batchMessage(b OrderBatch) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"maker":      b.Maker.Hex(),
		"makeAssets": assetsMessage(b.MakeAssets),
		"taker":      b.Taker.Hex(),
		"takeAssets": assetsMessage(b.TakeAssets),
		"salt":       saltOrZero(b.Salt).Dec(),
		"start":      uint256.NewInt(b.Start).Dec(),
		"end":        uint256.NewInt(b.End).Dec(),
		"dataType":   hexutil.Encode(b.DataType[:]),
		"data":       hexutil.Encode(b.Data),
	}
}
