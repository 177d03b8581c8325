package transfer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/errs"
)

var (
	exchange = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	caller   = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	token    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	other    = common.HexToAddress("0x00000000000000000000000000000000000000f2")
)

// fakeLedger logs each primitive call and can be told to refuse one
type fakeLedger struct {
	calls  []string
	refuse string
}

func (l *fakeLedger) do(call string) error {
	l.calls = append(l.calls, call)
	if call == l.refuse {
		return fmt.Errorf("refused %s", call)
	}
	return nil
}

func (l *fakeLedger) TransferNative(from, to common.Address, amount *uint256.Int) error {
	return l.do(fmt.Sprintf("native %s->%s %s", short(from), short(to), amount.Dec()))
}

func (l *fakeLedger) TransferFungible(tok, operator, from, to common.Address, amount *uint256.Int) error {
	return l.do(fmt.Sprintf("fungible %s->%s %s", short(from), short(to), amount.Dec()))
}

func (l *fakeLedger) TransferNonFungible(tok, operator, from, to common.Address, tokenID *uint256.Int) error {
	return l.do(fmt.Sprintf("nft %s #%s", short(tok), tokenID.Dec()))
}

func (l *fakeLedger) TransferSemiFungibleBatch(tok, operator, from, to common.Address, ids, amounts []*uint256.Int) error {
	return l.do(fmt.Sprintf("semi %s x%d", short(tok), len(ids)))
}

func short(a common.Address) string { return fmt.Sprintf("%x", a.Bytes()[19:]) }

func TestNativeComesFromCaller(t *testing.T) {
	ledger := &fakeLedger{}
	d := NewDispatcher(ledger, exchange, caller, uint256.NewInt(10200))

	if err := d.Transfer(asset.Native(10000), bob, alice, ReasonProceeds); err != nil {
		t.Fatalf("failed to transfer: %v", err)
	}
	if ledger.calls[0] != "native c0->a1 10000" {
		t.Errorf("call = %q, want native debited from caller", ledger.calls[0])
	}
	if d.Spent().Uint64() != 10000 || d.Refund().Uint64() != 200 {
		t.Errorf("spent/refund = %d/%d, want 10000/200", d.Spent().Uint64(), d.Refund().Uint64())
	}

	err := d.Transfer(asset.Native(201), bob, alice, ReasonProtocolFee)
	if !errors.Is(err, errs.ErrNativeValueTooLow) {
		t.Errorf("err = %v, want %v", err, errs.ErrNativeValueTooLow)
	}
	if d.Spent().Uint64() != 10000 {
		t.Errorf("failed spend should not count, spent = %d", d.Spent().Uint64())
	}
}

func TestTransferBatchGroupsSemiFungible(t *testing.T) {
	ledger := &fakeLedger{}
	d := NewDispatcher(ledger, exchange, caller, nil)

	assets := []asset.Asset{
		asset.SemiFungible(token, 1, 5),
		asset.NonFungible(token, 9),
		asset.SemiFungible(other, 1, 1),
		asset.SemiFungible(token, 2, 3),
		asset.Fungible(other, 0),
	}
	if err := d.TransferBatch(assets, alice, bob, ReasonDelivery); err != nil {
		t.Fatalf("failed to transfer batch: %v", err)
	}

	want := []string{"nft f1 #9", "semi f1 x2", "semi f2 x1"}
	if len(ledger.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", ledger.calls, want)
	}
	for i := range want {
		if ledger.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, ledger.calls[i], want[i])
		}
	}
	if len(d.Records()) != 4 {
		t.Errorf("records = %d, want one per non-zero asset", len(d.Records()))
	}
}

func TestLedgerRefusalIsTransferError(t *testing.T) {
	ledger := &fakeLedger{refuse: "fungible a1->b2 7"}
	d := NewDispatcher(ledger, exchange, caller, nil)

	err := d.Transfer(asset.Fungible(token, 7), alice, bob, ReasonPayment)
	if !errors.Is(err, errs.ErrTransferFailed) {
		t.Fatalf("err = %v, want %v", err, errs.ErrTransferFailed)
	}
	if errs.KindOf(err) != errs.KindTransfer {
		t.Errorf("kind = %s, want transfer", errs.KindOf(err))
	}
	if len(d.Records()) != 0 {
		t.Error("refused transfer should not be recorded")
	}
}

func TestUnsupportedClass(t *testing.T) {
	d := NewDispatcher(&fakeLedger{}, exchange, caller, nil)
	bogus := asset.Asset{Type: asset.AssetType{Class: asset.ClassID(asset.ID("LAZY")), Data: nil}, Value: uint256.NewInt(1)}

	if err := d.Transfer(bogus, alice, bob, ReasonDelivery); !errors.Is(err, errs.ErrUnsupportedAsset) {
		t.Errorf("err = %v, want %v", err, errs.ErrUnsupportedAsset)
	}
}
