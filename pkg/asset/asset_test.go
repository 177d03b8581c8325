package asset

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/errs"
)

var token = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestClassIDs(t *testing.T) {
	tests := []struct {
		name string
		got  ClassID
		want string
	}{
		{"ETH", ClassNative, "0xaaaebeba"},
		{"ERC20", ClassFungible, "0x8ae85d84"},
		{"ERC721", ClassNonFungible, "0x73ad2146"},
		{"ERC1155", ClassSemiFungible, "0x973bb640"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.String() != tt.want {
				t.Errorf("id(%s) = %s, want %s", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDecodeVariants(t *testing.T) {
	id := uint256.NewInt(42)

	tests := []struct {
		name      string
		typ       AssetType
		kind      Kind
		wantToken common.Address
		wantID    *uint256.Int
	}{
		{"native", NativeType(), KindNative, common.Address{}, nil},
		{"fungible", FungibleType(token), KindFungible, token, nil},
		{"non-fungible", NonFungibleType(token, id), KindNonFungible, token, id},
		{"semi-fungible", SemiFungibleType(token, id), KindSemiFungible, token, id},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, err := Decode(tt.typ)
			if err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if class.Kind() != tt.kind {
				t.Errorf("kind = %s, want %s", class.Kind(), tt.kind)
			}
			gotToken, gotID := class.Token()
			if gotToken != tt.wantToken {
				t.Errorf("token = %s, want %s", gotToken.Hex(), tt.wantToken.Hex())
			}
			if (gotID == nil) != (tt.wantID == nil) || (gotID != nil && !gotID.Eq(tt.wantID)) {
				t.Errorf("token id = %v, want %v", gotID, tt.wantID)
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		typ  AssetType
		want error
	}{
		{"unknown class", AssetType{Class: ClassID(ID("CRYPTO_PUNKS")), Data: nil}, errs.ErrUnsupportedAsset},
		{"short fungible data", AssetType{Class: ClassFungible, Data: []byte{1, 2, 3}}, errs.ErrUnsupportedAsset},
		{"truncated token id", AssetType{Class: ClassNonFungible, Data: FungibleType(token).Data}, errs.ErrUnsupportedAsset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.typ)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAssetTypeEqual(t *testing.T) {
	a := NonFungibleType(token, uint256.NewInt(1))
	b := NonFungibleType(token, uint256.NewInt(1))
	c := NonFungibleType(token, uint256.NewInt(2))
	d := SemiFungibleType(token, uint256.NewInt(1))

	if !a.Equal(b) {
		t.Error("identical types should be equal")
	}
	if a.Equal(c) {
		t.Error("different token ids should not be equal")
	}
	if a.Equal(d) {
		t.Error("same data under a different class should not be equal")
	}
}

// recordingLedger captures which primitive each variant reaches
type recordingLedger struct {
	calls []string
	ids   []*uint256.Int
}

func (l *recordingLedger) TransferNative(from, to common.Address, amount *uint256.Int) error {
	l.calls = append(l.calls, "native")
	return nil
}

func (l *recordingLedger) TransferFungible(tok, operator, from, to common.Address, amount *uint256.Int) error {
	l.calls = append(l.calls, "fungible")
	return nil
}

func (l *recordingLedger) TransferNonFungible(tok, operator, from, to common.Address, tokenID *uint256.Int) error {
	l.calls = append(l.calls, "non_fungible")
	return nil
}

func (l *recordingLedger) TransferSemiFungibleBatch(tok, operator, from, to common.Address, ids, amounts []*uint256.Int) error {
	l.calls = append(l.calls, "semi_fungible")
	l.ids = append(l.ids, ids...)
	return nil
}

func TestTransferRoutesToPrimitive(t *testing.T) {
	ledger := &recordingLedger{}
	m := Movement{
		From:  common.HexToAddress("0x01"),
		To:    common.HexToAddress("0x02"),
		Value: uint256.NewInt(1),
	}

	for _, typ := range []AssetType{
		NativeType(),
		FungibleType(token),
		NonFungibleType(token, uint256.NewInt(7)),
		SemiFungibleType(token, uint256.NewInt(7)),
	} {
		class, err := Decode(typ)
		if err != nil {
			t.Fatalf("failed to decode %s: %v", typ, err)
		}
		if err := class.Transfer(ledger, m); err != nil {
			t.Fatalf("failed to transfer %s: %v", class.Kind(), err)
		}
	}

	want := []string{"native", "fungible", "non_fungible", "semi_fungible"}
	if len(ledger.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", ledger.calls, want)
	}
	for i := range want {
		if ledger.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, ledger.calls[i], want[i])
		}
	}
	if len(ledger.ids) != 1 || ledger.ids[0].Uint64() != 7 {
		t.Errorf("semi-fungible ids = %v, want [7]", ledger.ids)
	}
}

func TestNonFungibleValueMustBeOne(t *testing.T) {
	class := NonFungibleClass{Contract: token, TokenID: uint256.NewInt(1)}
	err := class.Transfer(&recordingLedger{}, Movement{Value: uint256.NewInt(2)})
	if err == nil {
		t.Fatal("expected error moving 2 units of a non-fungible token")
	}
}
