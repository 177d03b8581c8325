// Package fees splits a trade's payment among the protocol, royalty
// beneficiaries, origin fee recipients and the seller.
package fees

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/errs"
	"github.com/uhyunpark/exchangev2/pkg/order"
)

// MaxRoyaltyBps caps the total royalty of one asset
const MaxRoyaltyBps = 5000

// Side tells which order's make asset is the payment
type Side uint8

const (
	SideNone  Side = iota // no fees, e.g. NFT for NFT
	SideLeft              // left order pays
	SideRight             // right order pays
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "none"
	}
}

// paymentPriority ranks classes that can act as currency
var paymentPriority = []asset.Kind{asset.KindNative, asset.KindFungible, asset.KindSemiFungible}

// FeeSide picks the payment side from the classes each order makes.
// Native beats fungible beats semi-fungible; left wins ties.
func FeeSide(leftMake, rightMake asset.Kind) Side {
	for _, k := range paymentPriority {
		if leftMake == k {
			return SideLeft
		}
		if rightMake == k {
			return SideRight
		}
	}
	return SideNone
}

// RoyaltyDirectory maps a token to its royalty beneficiaries
type RoyaltyDirectory interface {
	Royalties(ctx context.Context, token common.Address, tokenID *uint256.Int) ([]order.Part, error)
}

// LookupRoyalties returns the royalties owed on an asset sale. Only unique and
// semi-fungible tokens carry royalties; a nil directory means none.
func LookupRoyalties(ctx context.Context, dir RoyaltyDirectory, class asset.Class) ([]order.Part, error) {
	if dir == nil {
		return nil, nil
	}
	switch class.Kind() {
	case asset.KindNonFungible, asset.KindSemiFungible:
	default:
		return nil, nil
	}
	token, id := class.Token()
	parts, err := dir.Royalties(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("royalties for %s: %w", token.Hex(), err)
	}
	return parts, nil
}

// Kind labels a payout
type Kind string

const (
	KindProtocolFee Kind = "protocol_fee"
	KindRoyalty     Kind = "royalty"
	KindOriginFee   Kind = "origin_fee"
)

// Share is a royalty schedule applied to a base amount
type Share struct {
	Base  *uint256.Int
	Parts []order.Part
}

// Input describes one payment to split
type Input struct {
	Amount         *uint256.Int // price agreed by the orders
	ProtocolFeeBps uint16
	FeeReceiver    common.Address
	Royalties      []Share
	OriginFees     [][]order.Part // one list per order
}

// Payout is one fee transfer out of the payment
type Payout struct {
	Kind    Kind
	Account common.Address
	Amount  *uint256.Int
}

// Distribution is the full split of a payment
type Distribution struct {
	Total    *uint256.Int // what the payer sends
	Payouts  []Payout     // non-zero fee transfers, in execution order
	Residual *uint256.Int // what the seller receives
}

// Sum returns the payouts plus the residual, always equal to Total
func (d Distribution) Sum() *uint256.Int {
	sum := new(uint256.Int).Set(d.Residual)
	for _, p := range d.Payouts {
		sum.Add(sum, p.Amount)
	}
	return sum
}

// PartOf returns floor(amount * bps / 10000)
func PartOf(amount *uint256.Int, bps uint16) *uint256.Int {
	out, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(uint64(bps)), uint256.NewInt(order.MaxBasisPoints))
	return out
}

// Plan splits in.Amount. The payer adds the protocol fee on top; the seller
// side pays the protocol fee again, royalties and every order's origin fees.
// Whatever is left goes to the seller.
func Plan(in Input) (Distribution, error) {
	if in.ProtocolFeeBps > order.MaxBasisPoints {
		return Distribution{}, errs.ErrFeesExceedAmount.Wrap(fmt.Errorf("protocol fee %d bps", in.ProtocolFeeBps))
	}
	amount := in.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}

	protocolFee := PartOf(amount, in.ProtocolFeeBps)
	total, overflow := new(uint256.Int).AddOverflow(amount, protocolFee)
	if overflow {
		return Distribution{}, errs.ErrInvalidOrder.Wrap(fmt.Errorf("amount overflow"))
	}

	d := Distribution{Total: total}
	rest := new(uint256.Int).Set(amount)
	deduct := func(kind Kind, account common.Address, v *uint256.Int) error {
		if v.IsZero() {
			return nil
		}
		if v.Gt(rest) {
			return errs.ErrFeesExceedAmount
		}
		rest.Sub(rest, v)
		d.Payouts = append(d.Payouts, Payout{Kind: kind, Account: account, Amount: v})
		return nil
	}

	if !protocolFee.IsZero() {
		// buyer surcharge plus the seller-side fee, in one transfer
		fee := new(uint256.Int).Add(protocolFee, protocolFee)
		rest.Add(rest, protocolFee)
		if err := deduct(KindProtocolFee, in.FeeReceiver, fee); err != nil {
			return Distribution{}, err
		}
	}

	for _, share := range in.Royalties {
		var bps uint32
		for _, p := range share.Parts {
			bps += uint32(p.BasisPoints)
		}
		if bps > MaxRoyaltyBps {
			return Distribution{}, errs.ErrRoyaltiesTooHigh
		}
		for _, p := range share.Parts {
			if err := deduct(KindRoyalty, p.Account, PartOf(share.Base, p.BasisPoints)); err != nil {
				return Distribution{}, err
			}
		}
	}

	for _, parts := range in.OriginFees {
		for _, p := range parts {
			if err := deduct(KindOriginFee, p.Account, PartOf(amount, p.BasisPoints)); err != nil {
				return Distribution{}, err
			}
		}
	}

	d.Residual = rest
	return d, nil
}

// Apportion splits amount into n equal bases, the remainder going to the last
func Apportion(amount *uint256.Int, n int) []*uint256.Int {
	if n <= 0 {
		return nil
	}
	count := uint256.NewInt(uint64(n))
	each := new(uint256.Int).Div(amount, count)
	out := make([]*uint256.Int, n)
	for i := 0; i < n-1; i++ {
		out[i] = new(uint256.Int).Set(each)
	}
	last := new(uint256.Int).Mul(each, uint256.NewInt(uint64(n-1)))
	out[n-1] = last.Sub(amount, last)
	return out
}
