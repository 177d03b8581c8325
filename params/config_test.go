package params

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Domain.Name != "Exchange" || cfg.Domain.Version != "2" {
		t.Errorf("domain = %s/%s, want Exchange/2", cfg.Domain.Name, cfg.Domain.Version)
	}
	if cfg.Domain.ChainID.Int64() != 1337 {
		t.Errorf("chain id = %d, want 1337", cfg.Domain.ChainID.Int64())
	}
	if cfg.Exchange.MultiMatchPolicy != PolicyIndependent {
		t.Errorf("policy = %s, want %s", cfg.Exchange.MultiMatchPolicy, PolicyIndependent)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "CHAIN_ID=5\n" +
		"VERIFYING_CONTRACT=0x00000000000000000000000000000000000000ee\n" +
		"PROTOCOL_FEE_BPS=250\n" +
		"FEE_RECEIVER=0x00000000000000000000000000000000000000fe\n" +
		"MULTI_MATCH_POLICY=atomic\n" +
		"DB_PATH=/tmp/exchange-db\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	// godotenv.Load sets process variables; make sure they are restored
	for _, key := range []string{"CHAIN_ID", "VERIFYING_CONTRACT", "PROTOCOL_FEE_BPS", "FEE_RECEIVER", "MULTI_MATCH_POLICY", "DB_PATH"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := LoadFromEnv(path)

	if cfg.Domain.ChainID.Int64() != 5 {
		t.Errorf("chain id = %d, want 5", cfg.Domain.ChainID.Int64())
	}
	if cfg.Domain.VerifyingContract != common.HexToAddress("0xee") {
		t.Errorf("verifying contract = %s", cfg.Domain.VerifyingContract.Hex())
	}
	if cfg.Fees.ProtocolFeeBps != 250 {
		t.Errorf("protocol fee = %d, want 250", cfg.Fees.ProtocolFeeBps)
	}
	if cfg.Fees.FeeReceiver != common.HexToAddress("0xfe") {
		t.Errorf("fee receiver = %s", cfg.Fees.FeeReceiver.Hex())
	}
	if cfg.Exchange.MultiMatchPolicy != PolicyAtomic {
		t.Errorf("policy = %s, want %s", cfg.Exchange.MultiMatchPolicy, PolicyAtomic)
	}
	if cfg.Storage.DBPath != "/tmp/exchange-db" {
		t.Errorf("db path = %s", cfg.Storage.DBPath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PROTOCOL_FEE_BPS=250\n"), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("PROTOCOL_FEE_BPS", "100")

	if cfg := LoadFromEnv(path); cfg.Fees.ProtocolFeeBps != 100 {
		t.Errorf("protocol fee = %d, want 100", cfg.Fees.ProtocolFeeBps)
	}
}

func TestInvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("PROTOCOL_FEE_BPS", "20000")
	t.Setenv("MULTI_MATCH_POLICY", "sometimes")
	t.Setenv("FEE_RECEIVER", "not-an-address")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.Fees.ProtocolFeeBps != 0 {
		t.Errorf("protocol fee = %d, want 0", cfg.Fees.ProtocolFeeBps)
	}
	if cfg.Exchange.MultiMatchPolicy != PolicyIndependent {
		t.Errorf("policy = %s, want %s", cfg.Exchange.MultiMatchPolicy, PolicyIndependent)
	}
	if cfg.Fees.FeeReceiver != (common.Address{}) {
		t.Errorf("fee receiver = %s, want zero", cfg.Fees.FeeReceiver.Hex())
	}
}

func TestTracingFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("OTEL_SERVICE_NAME", "")
	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Tracing.Endpoint != "http://localhost:4318" {
		t.Errorf("endpoint = %q, want http://localhost:4318", cfg.Tracing.Endpoint)
	}
	if cfg.Tracing.ServiceName != "exchange-settle" {
		t.Errorf("service name = %q, want exchange-settle", cfg.Tracing.ServiceName)
	}
}
