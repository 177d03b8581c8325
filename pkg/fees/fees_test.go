package fees

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/errs"
	"github.com/uhyunpark/exchangev2/pkg/order"
)

var (
	feeReceiver = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	artist      = common.HexToAddress("0x00000000000000000000000000000000000000a7")
	gallery     = common.HexToAddress("0x0000000000000000000000000000000000000091")
	referrer    = common.HexToAddress("0x00000000000000000000000000000000000000e4")
)

func TestFeeSide(t *testing.T) {
	tests := []struct {
		name        string
		left, right asset.Kind
		want        Side
	}{
		{"native beats nft", asset.KindNonFungible, asset.KindNative, SideRight},
		{"left native", asset.KindNative, asset.KindNonFungible, SideLeft},
		{"native beats fungible", asset.KindFungible, asset.KindNative, SideRight},
		{"fungible beats semi-fungible", asset.KindSemiFungible, asset.KindFungible, SideRight},
		{"semi-fungible beats nft", asset.KindNonFungible, asset.KindSemiFungible, SideRight},
		{"left wins tie", asset.KindFungible, asset.KindFungible, SideLeft},
		{"nft for nft", asset.KindNonFungible, asset.KindNonFungible, SideNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FeeSide(tt.left, tt.right); got != tt.want {
				t.Errorf("FeeSide = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlanProtocolFee(t *testing.T) {
	d, err := Plan(Input{Amount: uint256.NewInt(10000), ProtocolFeeBps: 200, FeeReceiver: feeReceiver})
	if err != nil {
		t.Fatalf("failed to plan: %v", err)
	}
	if d.Total.Uint64() != 10200 {
		t.Errorf("total = %d, want 10200", d.Total.Uint64())
	}
	if len(d.Payouts) != 1 || d.Payouts[0].Account != feeReceiver || d.Payouts[0].Amount.Uint64() != 400 {
		t.Fatalf("payouts = %+v, want 400 to fee receiver", d.Payouts)
	}
	if d.Residual.Uint64() != 9800 {
		t.Errorf("residual = %d, want 9800", d.Residual.Uint64())
	}
}

func TestPlanConservation(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"no fees", Input{Amount: uint256.NewInt(1)}},
		{"odd amount", Input{
			Amount:         uint256.NewInt(9999),
			ProtocolFeeBps: 333,
			FeeReceiver:    feeReceiver,
			Royalties:      []Share{{Base: uint256.NewInt(9999), Parts: []order.Part{{Account: artist, BasisPoints: 1234}}}},
			OriginFees:     [][]order.Part{{{Account: gallery, BasisPoints: 77}}, {{Account: referrer, BasisPoints: 5}}},
		}},
		{"split royalties", Input{
			Amount:         uint256.NewInt(1001),
			ProtocolFeeBps: 250,
			FeeReceiver:    feeReceiver,
			Royalties: []Share{
				{Base: uint256.NewInt(500), Parts: []order.Part{{Account: artist, BasisPoints: 1000}}},
				{Base: uint256.NewInt(501), Parts: []order.Part{{Account: gallery, BasisPoints: 2500}, {Account: artist, BasisPoints: 2500}}},
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Plan(tt.in)
			if err != nil {
				t.Fatalf("failed to plan: %v", err)
			}
			if !d.Sum().Eq(d.Total) {
				t.Errorf("payouts + residual = %d, total = %d", d.Sum().Uint64(), d.Total.Uint64())
			}
			for _, p := range d.Payouts {
				if p.Amount.IsZero() {
					t.Errorf("zero payout recorded: %+v", p)
				}
			}
		})
	}
}

func TestPlanRejects(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want error
	}{
		{
			"royalties over half",
			Input{Amount: uint256.NewInt(100), Royalties: []Share{{
				Base:  uint256.NewInt(100),
				Parts: []order.Part{{Account: artist, BasisPoints: 3000}, {Account: gallery, BasisPoints: 2001}},
			}}},
			errs.ErrRoyaltiesTooHigh,
		},
		{
			"origin fees exceed amount",
			Input{Amount: uint256.NewInt(100), OriginFees: [][]order.Part{
				{{Account: gallery, BasisPoints: 6000}},
				{{Account: referrer, BasisPoints: 6000}},
			}},
			errs.ErrFeesExceedAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Plan(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApportion(t *testing.T) {
	got := Apportion(uint256.NewInt(10), 3)
	want := []uint64{3, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %d bases, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Uint64() != want[i] {
			t.Errorf("base %d = %d, want %d", i, got[i].Uint64(), want[i])
		}
	}
}

type staticDirectory map[common.Address][]order.Part

func (d staticDirectory) Royalties(_ context.Context, token common.Address, _ *uint256.Int) ([]order.Part, error) {
	return d[token], nil
}

func TestLookupRoyalties(t *testing.T) {
	nft := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	dir := staticDirectory{nft: {{Account: artist, BasisPoints: 1000}}}
	ctx := context.Background()

	parts, err := LookupRoyalties(ctx, dir, asset.NonFungibleClass{Contract: nft, TokenID: uint256.NewInt(1)})
	if err != nil {
		t.Fatalf("failed to look up royalties: %v", err)
	}
	if len(parts) != 1 || parts[0].Account != artist {
		t.Errorf("parts = %+v", parts)
	}

	parts, _ = LookupRoyalties(ctx, dir, asset.FungibleClass{Contract: nft})
	if len(parts) != 0 {
		t.Errorf("fungible tokens carry no royalties, got %+v", parts)
	}

	parts, _ = LookupRoyalties(ctx, nil, asset.NonFungibleClass{Contract: nft, TokenID: uint256.NewInt(1)})
	if len(parts) != 0 {
		t.Errorf("nil directory should yield no royalties, got %+v", parts)
	}
}
