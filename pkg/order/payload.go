package order

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
)

// AssetPayload is the JSON form of an asset
type AssetPayload struct {
	AssetClass string `json:"assetClass"`        // "ETH", "ERC20", "ERC721", "ERC1155" or 0x-prefixed bytes4
	Data       string `json:"data,omitempty"`    // raw ABI data (0x...), wins over token/tokenId
	Token      string `json:"token,omitempty"`   // token contract
	TokenID    string `json:"tokenId,omitempty"` // BigInt as string
	Value      string `json:"value"`             // BigInt as string
}

// PartPayload is the JSON form of a fee part
type PartPayload struct {
	Account string `json:"account"`
	Value   uint16 `json:"value"` // basis points
}

// OrderPayload is the JSON form of an order
type OrderPayload struct {
	Maker      string        `json:"maker"`
	MakeAsset  AssetPayload  `json:"makeAsset"`
	Taker      string        `json:"taker,omitempty"`
	TakeAsset  AssetPayload  `json:"takeAsset"`
	Salt       string        `json:"salt"`
	Start      uint64        `json:"start,omitempty"`
	End        uint64        `json:"end,omitempty"`
	DataType   string        `json:"dataType,omitempty"`   // "V1", 0x-prefixed bytes4, empty for none
	Data       string        `json:"data,omitempty"`       // raw order data (0x...)
	OriginFees []PartPayload `json:"originFees,omitempty"` // encoded as V1 data when set
}

// BatchPayload is the JSON form of a batch order
type BatchPayload struct {
	Maker      string         `json:"maker"`
	MakeAssets []AssetPayload `json:"makeAssets"`
	Taker      string         `json:"taker,omitempty"`
	TakeAssets []AssetPayload `json:"takeAssets"`
	Salt       string         `json:"salt"`
	Start      uint64         `json:"start,omitempty"`
	End        uint64         `json:"end,omitempty"`
	DataType   string         `json:"dataType,omitempty"`
	Data       string         `json:"data,omitempty"`
	OriginFees []PartPayload  `json:"originFees,omitempty"`
}

// SignedOrder pairs an order with its signature
type SignedOrder struct {
	Order     OrderPayload `json:"order"`
	Signature string       `json:"signature,omitempty"` // hex (0x...), may be empty for maker-submitted orders
}

// SignedBatch pairs a batch order with its signature
type SignedBatch struct {
	Order     BatchPayload `json:"order"`
	Signature string       `json:"signature,omitempty"`
}

// MatchMode selects the settlement operation of a MatchRequest
type MatchMode string

const (
	MatchSingle MatchMode = "single"
	MatchBatch  MatchMode = "batch"
	MatchMulti  MatchMode = "multi"
)

// MatchRequest is a settlement call as submitted by a caller
type MatchRequest struct {
	Mode   MatchMode `json:"mode"`
	Caller string    `json:"caller"`
	Value  string    `json:"value,omitempty"` // attached native value, BigInt as string

	Left  *SignedOrder `json:"left,omitempty"`
	Right *SignedOrder `json:"right,omitempty"`

	LeftBatch  *SignedBatch `json:"leftBatch,omitempty"`
	RightBatch *SignedBatch `json:"rightBatch,omitempty"`

	Lefts  []SignedOrder `json:"lefts,omitempty"`
	Rights []SignedOrder `json:"rights,omitempty"`
}

// CancelRequest cancels a single order or a batch
type CancelRequest struct {
	Caller string        `json:"caller"`
	Order  *OrderPayload `json:"order,omitempty"`
	Batch  *BatchPayload `json:"batch,omitempty"`
}

// Validate performs basic validation on the request structure
func (r *MatchRequest) Validate() error {
	if r.Caller == "" {
		return fmt.Errorf("missing caller")
	}
	switch r.Mode {
	case MatchSingle:
		if r.Left == nil || r.Right == nil {
			return fmt.Errorf("single match requires left and right")
		}
	case MatchBatch:
		if r.LeftBatch == nil || r.RightBatch == nil {
			return fmt.Errorf("batch match requires leftBatch and rightBatch")
		}
	case MatchMulti:
		if len(r.Lefts) == 0 {
			return fmt.Errorf("multi match requires at least one pair")
		}
	default:
		return fmt.Errorf("unknown match mode: %q", r.Mode)
	}
	if _, err := ParseUint256(r.Value); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	return nil
}

// ParseMatchRequest decodes and validates a match request
func ParseMatchRequest(data []byte) (*MatchRequest, error) {
	var r MatchRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match request: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid match request: %w", err)
	}
	return &r, nil
}

// ParseCancelRequest decodes a cancel request
func ParseCancelRequest(data []byte) (*CancelRequest, error) {
	var r CancelRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cancel request: %w", err)
	}
	if r.Caller == "" {
		return nil, fmt.Errorf("invalid cancel request: missing caller")
	}
	if (r.Order == nil) == (r.Batch == nil) {
		return nil, fmt.Errorf("invalid cancel request: exactly one of order or batch is required")
	}
	return &r, nil
}

var classNames = map[string]asset.ClassID{
	"ETH":     asset.ClassNative,
	"ERC20":   asset.ClassFungible,
	"ERC721":  asset.ClassNonFungible,
	"ERC1155": asset.ClassSemiFungible,
}

// ClassName returns the symbolic name of a known class, or its hex form
func ClassName(id asset.ClassID) string {
	for name, known := range classNames {
		if known == id {
			return name
		}
	}
	return id.String()
}

func parseClass(s string) (asset.ClassID, error) {
	if id, ok := classNames[strings.ToUpper(s)]; ok {
		return id, nil
	}
	raw, err := hexutil.Decode(s)
	if err != nil || len(raw) != 4 {
		return asset.ClassID{}, fmt.Errorf("invalid asset class: %s", s)
	}
	var id asset.ClassID
	copy(id[:], raw)
	return id, nil
}

// ParseUint256 parses a decimal or 0x-prefixed string; empty is zero.
// Negative values are rejected.
func ParseUint256(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	b, ok := math.ParseBig256(s)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid 256-bit integer: %s", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("invalid 256-bit integer: %s", s)
	}
	return v, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", field, s)
	}
	return common.HexToAddress(s), nil
}

// ToAsset converts the payload to an asset
func (p AssetPayload) ToAsset() (asset.Asset, error) {
	class, err := parseClass(p.AssetClass)
	if err != nil {
		return asset.Asset{}, err
	}
	value, err := ParseUint256(p.Value)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("invalid value: %s", p.Value)
	}

	if p.Data != "" {
		data, err := hexutil.Decode(p.Data)
		if err != nil {
			return asset.Asset{}, fmt.Errorf("invalid asset data: %w", err)
		}
		return asset.Asset{Type: asset.AssetType{Class: class, Data: data}, Value: value}, nil
	}

	token, err := parseAddress("token", p.Token)
	if err != nil {
		return asset.Asset{}, err
	}
	tokenID, err := ParseUint256(p.TokenID)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("invalid tokenId: %s", p.TokenID)
	}

	var typ asset.AssetType
	switch class {
	case asset.ClassNative:
		typ = asset.NativeType()
	case asset.ClassFungible:
		typ = asset.FungibleType(token)
	case asset.ClassNonFungible:
		typ = asset.NonFungibleType(token, tokenID)
	case asset.ClassSemiFungible:
		typ = asset.SemiFungibleType(token, tokenID)
	default:
		return asset.Asset{}, fmt.Errorf("asset class %s requires raw data", class)
	}
	return asset.Asset{Type: typ, Value: value}, nil
}

// FromAsset converts an asset to its payload
func FromAsset(a asset.Asset) AssetPayload {
	p := AssetPayload{
		AssetClass: ClassName(a.Type.Class),
		Data:       hexutil.Encode(a.Type.Data),
		Value:      a.Amount().Dec(),
	}
	if class, err := asset.Decode(a.Type); err == nil {
		token, id := class.Token()
		if token != (common.Address{}) {
			p.Token = token.Hex()
		}
		if id != nil {
			p.TokenID = id.Dec()
		}
	}
	return p
}

func toAssets(ps []AssetPayload) ([]asset.Asset, error) {
	out := make([]asset.Asset, len(ps))
	for i, p := range ps {
		a, err := p.ToAsset()
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}

func fromAssets(as []asset.Asset) []AssetPayload {
	out := make([]AssetPayload, len(as))
	for i, a := range as {
		out[i] = FromAsset(a)
	}
	return out
}

func parseOrderData(dataType, data string, fees []PartPayload) ([4]byte, []byte, error) {
	if len(fees) > 0 {
		if dataType != "" && !strings.EqualFold(dataType, "V1") {
			return [4]byte{}, nil, fmt.Errorf("originFees require data type V1, got %s", dataType)
		}
		parts := make([]Part, len(fees))
		for i, f := range fees {
			account, err := parseAddress("fee", f.Account)
			if err != nil {
				return [4]byte{}, nil, err
			}
			parts[i] = Part{Account: account, BasisPoints: f.Value}
		}
		return DataTypeV1, EncodeFees(parts), nil
	}

	var dt [4]byte
	switch {
	case dataType == "":
		dt = DataTypeDefault
	case strings.EqualFold(dataType, "V1"):
		dt = DataTypeV1
	default:
		raw, err := hexutil.Decode(dataType)
		if err != nil || len(raw) != 4 {
			return [4]byte{}, nil, fmt.Errorf("invalid data type: %s", dataType)
		}
		copy(dt[:], raw)
	}

	raw := []byte{}
	if data != "" {
		var err error
		if raw, err = hexutil.Decode(data); err != nil {
			return [4]byte{}, nil, fmt.Errorf("invalid order data: %w", err)
		}
	}
	return dt, raw, nil
}

// ToOrder converts the payload to an order
func (p *OrderPayload) ToOrder() (Order, error) {
	maker, err := parseAddress("maker", p.Maker)
	if err != nil {
		return Order{}, err
	}
	taker, err := parseAddress("taker", p.Taker)
	if err != nil {
		return Order{}, err
	}
	makeAsset, err := p.MakeAsset.ToAsset()
	if err != nil {
		return Order{}, fmt.Errorf("makeAsset: %w", err)
	}
	takeAsset, err := p.TakeAsset.ToAsset()
	if err != nil {
		return Order{}, fmt.Errorf("takeAsset: %w", err)
	}
	salt, err := ParseUint256(p.Salt)
	if err != nil {
		return Order{}, fmt.Errorf("invalid salt: %s", p.Salt)
	}
	dataType, data, err := parseOrderData(p.DataType, p.Data, p.OriginFees)
	if err != nil {
		return Order{}, err
	}

	return Order{
		Maker:     maker,
		MakeAsset: makeAsset,
		Taker:     taker,
		TakeAsset: takeAsset,
		Salt:      salt,
		Start:     p.Start,
		End:       p.End,
		DataType:  dataType,
		Data:      data,
	}, nil
}

// FromOrder converts an order to its payload
func FromOrder(o Order) *OrderPayload {
	p := &OrderPayload{
		Maker:     o.Maker.Hex(),
		MakeAsset: FromAsset(o.MakeAsset),
		TakeAsset: FromAsset(o.TakeAsset),
		Salt:      saltOrZero(o.Salt).Dec(),
		Start:     o.Start,
		End:       o.End,
		DataType:  hexutil.Encode(o.DataType[:]),
		Data:      hexutil.Encode(o.Data),
	}
	if o.Taker != (common.Address{}) {
		p.Taker = o.Taker.Hex()
	}
	return p
}

// ToBatch converts the payload to a batch order
func (p *BatchPayload) ToBatch() (OrderBatch, error) {
	maker, err := parseAddress("maker", p.Maker)
	if err != nil {
		return OrderBatch{}, err
	}
	taker, err := parseAddress("taker", p.Taker)
	if err != nil {
		return OrderBatch{}, err
	}
	makeAssets, err := toAssets(p.MakeAssets)
	if err != nil {
		return OrderBatch{}, fmt.Errorf("makeAssets: %w", err)
	}
	takeAssets, err := toAssets(p.TakeAssets)
	if err != nil {
		return OrderBatch{}, fmt.Errorf("takeAssets: %w", err)
	}
	salt, err := ParseUint256(p.Salt)
	if err != nil {
		return OrderBatch{}, fmt.Errorf("invalid salt: %s", p.Salt)
	}
	dataType, data, err := parseOrderData(p.DataType, p.Data, p.OriginFees)
	if err != nil {
		return OrderBatch{}, err
	}

	return OrderBatch{
		Maker:      maker,
		MakeAssets: makeAssets,
		Taker:      taker,
		TakeAssets: takeAssets,
		Salt:       salt,
		Start:      p.Start,
		End:        p.End,
		DataType:   dataType,
		Data:       data,
	}, nil
}

// FromBatch converts a batch order to its payload
func FromBatch(b OrderBatch) *BatchPayload {
	p := &BatchPayload{
		Maker:      b.Maker.Hex(),
		MakeAssets: fromAssets(b.MakeAssets),
		TakeAssets: fromAssets(b.TakeAssets),
		Salt:       saltOrZero(b.Salt).Dec(),
		Start:      b.Start,
		End:        b.End,
		DataType:   hexutil.Encode(b.DataType[:]),
		Data:       hexutil.Encode(b.Data),
	}
	if b.Taker != (common.Address{}) {
		p.Taker = b.Taker.Hex()
	}
	return p
}

// DecodeSignature parses a hex signature; empty yields nil
func DecodeSignature(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	return sig, nil
}
