package storage

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/order"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	exchange = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	nft      = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	erc20    = common.HexToAddress("0x00000000000000000000000000000000000000e2")
)

func newStore(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := NewMemStore()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestSessionCommitAndDiscard(t *testing.T) {
	store := newStore(t)
	if err := store.MintNative(alice, u(100)); err != nil {
		t.Fatalf("failed to mint: %v", err)
	}

	sess := store.Begin()
	if err := sess.TransferNative(alice, bob, u(40)); err != nil {
		t.Fatalf("failed to transfer: %v", err)
	}
	// the session sees its own write, the store does not
	staged, _ := sess.getAmount(nativeKey(bob))
	if staged.Uint64() != 40 {
		t.Errorf("staged bob balance = %d, want 40", staged.Uint64())
	}
	committed, _ := store.NativeBalance(bob)
	if !committed.IsZero() {
		t.Errorf("bob balance visible before commit: %d", committed.Uint64())
	}
	sess.Discard()

	committed, _ = store.NativeBalance(alice)
	if committed.Uint64() != 100 {
		t.Errorf("alice balance after discard = %d, want 100", committed.Uint64())
	}

	sess = store.Begin()
	if err := sess.TransferNative(alice, bob, u(40)); err != nil {
		t.Fatalf("failed to transfer: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	sess.Discard()

	a, _ := store.NativeBalance(alice)
	b, _ := store.NativeBalance(bob)
	if a.Uint64() != 60 || b.Uint64() != 40 {
		t.Errorf("balances = %d/%d, want 60/40", a.Uint64(), b.Uint64())
	}
}

func TestFillRecords(t *testing.T) {
	store := newStore(t)
	hash := common.HexToHash("0x1234")

	sess := store.Begin()
	defer sess.Discard()

	fill, err := sess.GetFill(hash)
	if err != nil || !fill.IsZero() {
		t.Fatalf("unseen fill = %v, %v; want 0", fill, err)
	}
	if err := sess.RecordFill(hash, u(5)); err != nil {
		t.Fatalf("failed to record fill: %v", err)
	}
	if err := sess.RecordFill(hash, u(4)); err == nil {
		t.Error("fill should not decrease")
	}
	if err := sess.Cancel(hash); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}
	if err := sess.Cancel(hash); err != nil {
		t.Fatalf("repeated cancel failed: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	fill, _ = store.GetFill(hash)
	if !fill.Eq(new(uint256.Int).SetAllOne()) {
		t.Errorf("fill after cancel = %s, want the cancellation marker", fill.Hex())
	}
}

func TestFungibleAllowance(t *testing.T) {
	store := newStore(t)
	store.MintFungible(erc20, alice, u(100))
	store.Approve(erc20, alice, exchange, u(30))

	sess := store.Begin()
	if err := sess.TransferFungible(erc20, exchange, alice, bob, u(31)); err == nil {
		t.Error("transfer beyond allowance should fail")
	}
	sess.Discard()

	sess = store.Begin()
	if err := sess.TransferFungible(erc20, exchange, alice, bob, u(30)); err != nil {
		t.Fatalf("failed to transfer: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	allowance, _ := store.Allowance(erc20, alice, exchange)
	if !allowance.IsZero() {
		t.Errorf("allowance = %d, want 0", allowance.Uint64())
	}
	balance, _ := store.FungibleBalance(erc20, bob)
	if balance.Uint64() != 30 {
		t.Errorf("bob balance = %d, want 30", balance.Uint64())
	}

	store.Approve(erc20, alice, exchange, new(uint256.Int).SetAllOne())
	sess = store.Begin()
	if err := sess.TransferFungible(erc20, exchange, alice, bob, u(10)); err != nil {
		t.Fatalf("failed to transfer: %v", err)
	}
	sess.Commit()
	allowance, _ = store.Allowance(erc20, alice, exchange)
	if !allowance.Eq(new(uint256.Int).SetAllOne()) {
		t.Error("unlimited allowance should not be decremented")
	}
}

func TestNonFungibleTransfer(t *testing.T) {
	store := newStore(t)
	id := u(1)
	if err := store.MintNonFungible(nft, id, alice); err != nil {
		t.Fatalf("failed to mint: %v", err)
	}
	if err := store.MintNonFungible(nft, id, bob); err == nil {
		t.Error("minting an existing token should fail")
	}

	sess := store.Begin()
	if err := sess.TransferNonFungible(nft, exchange, alice, bob, id); err == nil {
		t.Error("transfer without operator approval should fail")
	}
	sess.Discard()

	store.SetApprovalForAll(nft, alice, exchange, true)
	sess = store.Begin()
	if err := sess.TransferNonFungible(nft, exchange, bob, alice, id); err == nil {
		t.Error("transfer from a non-owner should fail")
	}
	if err := sess.TransferNonFungible(nft, exchange, alice, bob, id); err != nil {
		t.Fatalf("failed to transfer: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	owner, _ := store.OwnerOf(nft, id)
	if owner != bob {
		t.Errorf("owner = %s, want bob", owner.Hex())
	}
	aliceCount, _ := store.NonFungibleCount(nft, alice)
	bobCount, _ := store.NonFungibleCount(nft, bob)
	if !aliceCount.IsZero() || bobCount.Uint64() != 1 {
		t.Errorf("counts = %d/%d, want 0/1", aliceCount.Uint64(), bobCount.Uint64())
	}
}

func TestSemiFungibleBatch(t *testing.T) {
	store := newStore(t)
	store.MintSemiFungible(nft, u(1), alice, u(10))
	store.MintSemiFungible(nft, u(2), alice, u(3))

	sess := store.Begin()
	err := sess.TransferSemiFungibleBatch(nft, alice, alice, bob, []*uint256.Int{u(1), u(2)}, []*uint256.Int{u(4), u(4)})
	if err == nil {
		t.Fatal("batch with an overdrawn id should fail")
	}
	sess.Discard()

	// nothing moved, including the id that had enough balance
	b1, _ := store.SemiFungibleBalance(nft, u(1), bob)
	if !b1.IsZero() {
		t.Errorf("bob id 1 = %d, want 0", b1.Uint64())
	}

	sess = store.Begin()
	if err := sess.TransferSemiFungibleBatch(nft, alice, alice, bob, []*uint256.Int{u(1), u(2)}, []*uint256.Int{u(4), u(3)}); err != nil {
		t.Fatalf("failed to transfer batch: %v", err)
	}
	sess.Commit()
	b1, _ = store.SemiFungibleBalance(nft, u(1), bob)
	b2, _ := store.SemiFungibleBalance(nft, u(2), bob)
	if b1.Uint64() != 4 || b2.Uint64() != 3 {
		t.Errorf("bob balances = %d/%d, want 4/3", b1.Uint64(), b2.Uint64())
	}
}

func TestRoyaltyRegistry(t *testing.T) {
	store := newStore(t)
	reg := NewRoyaltyRegistry(store)
	ctx := context.Background()

	if err := reg.SetRoyaltiesByToken(nft, []order.Part{{Account: alice, BasisPoints: 500}}); err != nil {
		t.Fatalf("failed to set token royalties: %v", err)
	}
	if err := reg.SetRoyaltiesByTokenAndTokenID(nft, u(7), []order.Part{{Account: bob, BasisPoints: 1000}}); err != nil {
		t.Fatalf("failed to set token id royalties: %v", err)
	}

	tests := []struct {
		name    string
		token   common.Address
		id      uint64
		want    common.Address
		wantBps uint16
		empty   bool
	}{
		{"token-wide", nft, 1, alice, 500, false},
		{"per-id wins", nft, 7, bob, 1000, false},
		{"unknown token", erc20, 1, common.Address{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := reg.Royalties(ctx, tt.token, u(tt.id))
			if err != nil {
				t.Fatalf("failed to get royalties: %v", err)
			}
			if tt.empty {
				if len(parts) != 0 {
					t.Errorf("parts = %+v, want none", parts)
				}
				return
			}
			if len(parts) != 1 || parts[0].Account != tt.want || parts[0].BasisPoints != tt.wantBps {
				t.Errorf("parts = %+v, want %s/%d", parts, tt.want.Hex(), tt.wantBps)
			}
		})
	}

	if err := reg.SetRoyaltiesByToken(nft, []order.Part{{Account: common.Address{}, BasisPoints: 1}}); err == nil {
		t.Error("zero recipient should be rejected")
	}
}

func TestLoadRecentSettlements(t *testing.T) {
	store := newStore(t)
	base := time.Unix(1700000000, 0)

	for i, id := range []string{"first", "second", "third"} {
		sess := store.Begin()
		if err := sess.SaveSettlement(base.Add(time.Duration(i)*time.Second), id, []byte(id)); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		sess.Commit()
	}

	got, err := store.LoadRecentSettlements(2)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if len(got) != 2 || string(got[0]) != "third" || string(got[1]) != "second" {
		t.Errorf("recent = %q, want [third second]", got)
	}
}
