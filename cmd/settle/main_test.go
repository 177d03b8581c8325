package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/exchangev2/params"
	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/crypto"
	"github.com/uhyunpark/exchangev2/pkg/exchange"
	"github.com/uhyunpark/exchangev2/pkg/metrics"
	"github.com/uhyunpark/exchangev2/pkg/order"
	"github.com/uhyunpark/exchangev2/pkg/storage"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	nftToken = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	artist   = common.HexToAddress("0x00000000000000000000000000000000000000a7")
)

func TestGenesisAndMatch(t *testing.T) {
	store, err := storage.NewMemStore()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	registry := storage.NewRoyaltyRegistry(store)

	seller, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	buyer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	genesis := fmt.Sprintf(`{
		"native": [{"account": %q, "value": "5000"}],
		"nonFungible": [{"token": %q, "tokenId": "3", "owner": %q}],
		"approvals": [{"token": %q, "owner": %q, "operator": %q}],
		"royalties": [{"token": %q, "parts": [{"account": %q, "value": 500}]}]
	}`, buyer.Address().Hex(),
		nftToken.Hex(), seller.Address().Hex(),
		nftToken.Hex(), seller.Address().Hex(), operator.Hex(),
		nftToken.Hex(), artist.Hex())
	g, err := parseGenesis([]byte(genesis))
	if err != nil {
		t.Fatalf("failed to parse genesis: %v", err)
	}
	if err := g.Apply(store, registry); err != nil {
		t.Fatalf("failed to apply genesis: %v", err)
	}

	cfg := params.Default()
	cfg.Domain.VerifyingContract = operator
	ex, err := newExchange(cfg, store, registry, metrics.New(nil), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("failed to create exchange: %v", err)
	}

	left := order.New(seller.Address(), asset.NonFungible(nftToken, 3), common.Address{}, asset.Native(2000), 7)
	right := order.New(buyer.Address(), asset.Native(2000), common.Address{}, asset.NonFungible(nftToken, 3), 8)
	sig, err := ex.Codec().Sign(seller, left)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	req := &order.MatchRequest{
		Mode:   order.MatchSingle,
		Caller: buyer.Address().Hex(),
		Value:  "2000",
		Left:   &order.SignedOrder{Order: *order.FromOrder(left), Signature: fmt.Sprintf("0x%x", sig)},
		Right:  &order.SignedOrder{Order: *order.FromOrder(right)},
	}
	out, err := executeMatch(context.Background(), ex, req)
	if err != nil {
		t.Fatalf("failed to execute match: %v", err)
	}
	receipt, ok := out.(exchange.Receipt)
	if !ok {
		t.Fatalf("unexpected output type %T", out)
	}
	if receipt.NativeSpent != "2000" {
		t.Errorf("native spent = %s, want 2000", receipt.NativeSpent)
	}

	owner, err := store.OwnerOf(nftToken, uint256.NewInt(3))
	if err != nil {
		t.Fatalf("failed to read owner: %v", err)
	}
	if owner != buyer.Address() {
		t.Errorf("owner = %s, want buyer", owner.Hex())
	}
	// 5% royalty on 2000
	royalty, err := store.NativeBalance(artist)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if royalty.Uint64() != 100 {
		t.Errorf("artist balance = %d, want 100", royalty.Uint64())
	}

	cancel := &order.CancelRequest{Caller: buyer.Address().Hex(), Order: order.FromOrder(left)}
	if err := executeCancel(context.Background(), ex, cancel); err == nil {
		t.Errorf("expected cancel by non-maker to fail")
	}
}

func TestGenesisRejectsBadAddress(t *testing.T) {
	store, err := storage.NewMemStore()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	g, err := parseGenesis([]byte(`{"native": [{"account": "nobody", "value": "1"}]}`))
	if err != nil {
		t.Fatalf("failed to parse genesis: %v", err)
	}
	if err := g.Apply(store, storage.NewRoyaltyRegistry(store)); err == nil {
		t.Fatal("expected error for invalid account")
	}
}
