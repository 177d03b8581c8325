package params

import (
	"math/big"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// MultiMatchPolicy decides how a multi-match call handles a failing pair
type MultiMatchPolicy string

const (
	// PolicyIndependent settles each pair on its own; failures are reported per pair
	PolicyIndependent MultiMatchPolicy = "independent"
	// PolicyAtomic settles all pairs or none
	PolicyAtomic MultiMatchPolicy = "atomic"
)

type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // settlement entry point, also the transfer operator
}

type Fees struct {
	ProtocolFeeBps uint16 // charged on both sides of a priced trade
	FeeReceiver    common.Address
}

type Exchange struct {
	MultiMatchPolicy MultiMatchPolicy
}

type Storage struct {
	DBPath string
}

type Log struct {
	Level string
	File  string // optional; logs are always written to stdout
}

// Tracing exports spans over OTLP/HTTP when Endpoint is set
type Tracing struct {
	Endpoint    string
	ServiceName string
}

type Config struct {
	Domain   Domain
	Fees     Fees
	Exchange Exchange
	Storage  Storage
	Log      Log
	Tracing  Tracing
}

func Default() Config {
	return Config{
		Domain: Domain{
			Name:    "Exchange",
			Version: "2",
			ChainID: big.NewInt(1337), // local dev chain
		},
		Fees: Fees{
			ProtocolFeeBps: 0,
		},
		Exchange: Exchange{
			MultiMatchPolicy: PolicyIndependent,
		},
		Storage: Storage{
			DBPath: "data/exchange",
		},
		Log: Log{
			Level: "info",
		},
		Tracing: Tracing{
			ServiceName: "exchange-settle",
		},
	}
}

// envConfig holds the raw environment values. Empty means "keep the default".
type envConfig struct {
	Name              string `env:"EXCHANGE_NAME"`
	Version           string `env:"EXCHANGE_VERSION"`
	ChainID           string `env:"CHAIN_ID"`
	VerifyingContract string `env:"VERIFYING_CONTRACT"`
	ProtocolFeeBps    string `env:"PROTOCOL_FEE_BPS"`
	FeeReceiver       string `env:"FEE_RECEIVER"`
	MultiMatchPolicy  string `env:"MULTI_MATCH_POLICY"`
	DBPath            string `env:"DB_PATH"`
	LogLevel          string `env:"LOG_LEVEL"`
	LogFile           string `env:"LOG_FILE"`
	OtelEndpoint      string `env:"OTEL_ENDPOINT"`
	OtelServiceName   string `env:"OTEL_SERVICE_NAME"`
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults. Malformed values are ignored.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return cfg
	}

	cfg.Domain.Name = orDefault(raw.Name, cfg.Domain.Name)
	cfg.Domain.Version = orDefault(raw.Version, cfg.Domain.Version)
	if id, ok := new(big.Int).SetString(raw.ChainID, 10); ok && id.Sign() > 0 {
		cfg.Domain.ChainID = id
	}
	if common.IsHexAddress(raw.VerifyingContract) {
		cfg.Domain.VerifyingContract = common.HexToAddress(raw.VerifyingContract)
	}

	if bps, err := strconv.ParseUint(raw.ProtocolFeeBps, 10, 16); err == nil && bps <= 10000 {
		cfg.Fees.ProtocolFeeBps = uint16(bps)
	}
	if common.IsHexAddress(raw.FeeReceiver) {
		cfg.Fees.FeeReceiver = common.HexToAddress(raw.FeeReceiver)
	}

	switch policy := MultiMatchPolicy(raw.MultiMatchPolicy); policy {
	case PolicyAtomic, PolicyIndependent:
		cfg.Exchange.MultiMatchPolicy = policy
	}

	cfg.Storage.DBPath = orDefault(raw.DBPath, cfg.Storage.DBPath)
	cfg.Log.Level = orDefault(raw.LogLevel, cfg.Log.Level)
	cfg.Log.File = orDefault(raw.LogFile, cfg.Log.File)
	cfg.Tracing.Endpoint = orDefault(raw.OtelEndpoint, cfg.Tracing.Endpoint)
	cfg.Tracing.ServiceName = orDefault(raw.OtelServiceName, cfg.Tracing.ServiceName)

	return cfg
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}
