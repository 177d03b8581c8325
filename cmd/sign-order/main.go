package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/exchangev2/params"
	"github.com/uhyunpark/exchangev2/pkg/crypto"
	"github.com/uhyunpark/exchangev2/pkg/order"
)

func main() {
	keyHex := flag.String("key", "", "maker private key (hex); a new key is generated when empty")
	orderPath := flag.String("order", "", "order JSON file; a sample NFT listing is signed when empty")
	batch := flag.Bool("batch", false, "treat -order as a batch order")
	envPath := flag.String("env", "", ".env file with the signing domain")
	flag.Parse()

	cfg := params.LoadFromEnv(*envPath)

	// Step 1: Generate or load key
	signer, err := loadSigner(*keyHex)
	if err != nil {
		fail("Error: %v", err)
	}
	fmt.Printf("Address: %s\n", signer.Address().Hex())
	if *keyHex == "" {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Println()

	codec, err := order.NewCodec(crypto.EIP712Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           cfg.Domain.ChainID,
		VerifyingContract: cfg.Domain.VerifyingContract,
	})
	if err != nil {
		fail("Error creating codec: %v", err)
	}
	fmt.Printf("Domain: %s v%s (chain %s, contract %s)\n",
		cfg.Domain.Name, cfg.Domain.Version, cfg.Domain.ChainID, cfg.Domain.VerifyingContract.Hex())
	fmt.Printf("Domain separator: %s\n\n", codec.DomainSeparator().Hex())
	verifier := order.NewVerifier(codec)

	// Step 2-4: Build, sign and verify
	var signed interface{}
	if *batch {
		signed, err = signBatch(codec, verifier, signer, *orderPath)
	} else {
		signed, err = signOrder(codec, verifier, signer, *orderPath)
	}
	if err != nil {
		fail("Error: %v", err)
	}

	// Step 5: Serialize to JSON
	out, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		fail("Error marshaling JSON: %v", err)
	}
	fmt.Println("Signed Order (JSON):")
	fmt.Println(string(out))
	fmt.Println()

	fmt.Println("To settle, place it as \"left\" or \"right\" of a match request:")
	fmt.Println("  settle match request.json")
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex == "" {
		fmt.Println("Generating new keypair...")
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(strings.TrimPrefix(keyHex, "0x"))
}

func readPayload(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// sampleListing offers ERC721 token #1 for 10000 wei
func sampleListing(maker common.Address) *order.OrderPayload {
	return &order.OrderPayload{
		Maker:     maker.Hex(),
		MakeAsset: order.AssetPayload{AssetClass: "ERC721", Token: "0x00000000000000000000000000000000000000f1", TokenID: "1", Value: "1"},
		TakeAsset: order.AssetPayload{AssetClass: "ETH", Value: "10000"},
		Salt:      "1",
	}
}

func checkMaker(payloadMaker *string, signer common.Address) error {
	if *payloadMaker == "" {
		*payloadMaker = signer.Hex()
		return nil
	}
	if !common.IsHexAddress(*payloadMaker) || common.HexToAddress(*payloadMaker) != signer {
		return fmt.Errorf("order maker %s does not match key %s", *payloadMaker, signer.Hex())
	}
	return nil
}

func signOrder(codec *order.Codec, verifier *order.Verifier, signer *crypto.Signer, path string) (*order.SignedOrder, error) {
	payload := sampleListing(signer.Address())
	if path != "" {
		payload = &order.OrderPayload{}
		if err := readPayload(path, payload); err != nil {
			return nil, err
		}
	}
	if err := checkMaker(&payload.Maker, signer.Address()); err != nil {
		return nil, err
	}
	o, err := payload.ToOrder()
	if err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	hash, err := codec.Hash(o)
	if err != nil {
		return nil, err
	}
	fmt.Println("Order Details:")
	fmt.Printf("  Maker: %s\n", o.Maker.Hex())
	fmt.Printf("  Make: %s %s\n", order.ClassName(o.MakeAsset.Type.Class), o.MakeAsset.Amount().Dec())
	fmt.Printf("  Take: %s %s\n", order.ClassName(o.TakeAsset.Type.Class), o.TakeAsset.Amount().Dec())
	fmt.Printf("  Salt: %s\n", payload.Salt)
	fmt.Printf("  Hash: %s\n\n", hash.Hex())

	sig, err := codec.Sign(signer, o)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	fmt.Printf("Signature: 0x%x\n\n", sig)

	fmt.Println("Verifying signature...")
	if err := verifier.Verify(o, sig, common.Address{}); err != nil {
		return nil, fmt.Errorf("signature INVALID: %w", err)
	}
	fmt.Println("Signature VALID")
	fmt.Println()

	return &order.SignedOrder{Order: *order.FromOrder(o), Signature: fmt.Sprintf("0x%x", sig)}, nil
}

func signBatch(codec *order.Codec, verifier *order.Verifier, signer *crypto.Signer, path string) (*order.SignedBatch, error) {
	if path == "" {
		return nil, fmt.Errorf("-batch requires -order")
	}
	payload := &order.BatchPayload{}
	if err := readPayload(path, payload); err != nil {
		return nil, err
	}
	if err := checkMaker(&payload.Maker, signer.Address()); err != nil {
		return nil, err
	}
	b, err := payload.ToBatch()
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	hash, err := codec.HashBatch(b)
	if err != nil {
		return nil, err
	}
	fmt.Println("Batch Details:")
	fmt.Printf("  Maker: %s\n", b.Maker.Hex())
	fmt.Printf("  Make assets: %d\n", len(b.MakeAssets))
	fmt.Printf("  Take assets: %d\n", len(b.TakeAssets))
	fmt.Printf("  Hash: %s\n\n", hash.Hex())

	sig, err := codec.SignBatch(signer, b)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	fmt.Printf("Signature: 0x%x\n\n", sig)

	if err := verifier.VerifyBatch(b, sig, common.Address{}); err != nil {
		return nil, fmt.Errorf("signature INVALID: %w", err)
	}
	fmt.Println("Signature VALID")
	fmt.Println()

	return &order.SignedBatch{Order: *order.FromBatch(b), Signature: fmt.Sprintf("0x%x", sig)}, nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
