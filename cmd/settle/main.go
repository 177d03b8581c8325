package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/uhyunpark/exchangev2/params"
	"github.com/uhyunpark/exchangev2/pkg/crypto"
	"github.com/uhyunpark/exchangev2/pkg/exchange"
	"github.com/uhyunpark/exchangev2/pkg/metrics"
	"github.com/uhyunpark/exchangev2/pkg/order"
	"github.com/uhyunpark/exchangev2/pkg/storage"
	"github.com/uhyunpark/exchangev2/pkg/util"
)

const usage = `usage: settle [flags] <command> [args]

commands:
  genesis <file>   seed balances, approvals and royalties
  match <file>     execute a match request (single, batch or multi)
  cancel <file>    cancel an order or batch
  history [n]      print the n most recent settlements (default 10)

flags:
`

func main() {
	envPath := flag.String("env", "", ".env file (default: .env in the working directory)")
	metricsPath := flag.String("metrics", "", "write metrics to this textfile after the command")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv(*envPath)

	logger, err := util.NewLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := util.SetupTracing(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		sugar.Warnw("tracing_setup_failed", "endpoint", cfg.Tracing.Endpoint, "err", err)
	}
	defer shutdownTracing(context.Background())

	store, err := storage.NewPebbleStore(cfg.Storage.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Storage.DBPath, "err", err)
	}
	defer store.Close()
	registry := storage.NewRoyaltyRegistry(store)

	m := metrics.New(prometheus.NewRegistry())
	ex, err := newExchange(cfg, store, registry, m, sugar)
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := run(ctx, cmd, args, ex, store, registry, sugar); err != nil {
		sugar.Errorw("command_failed", "command", cmd, "err", err)
		_ = shutdownTracing(context.Background())
		store.Close()
		os.Exit(1)
	}

	if *metricsPath != "" {
		if err := m.WriteTextfile(*metricsPath); err != nil {
			sugar.Warnw("metrics_write_failed", "path", *metricsPath, "err", err)
		}
	}
}

func newExchange(cfg params.Config, store *storage.PebbleStore, registry *storage.RoyaltyRegistry, m *metrics.Metrics, sugar *zap.SugaredLogger) (*exchange.Exchange, error) {
	codec, err := order.NewCodec(crypto.EIP712Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           cfg.Domain.ChainID,
		VerifyingContract: cfg.Domain.VerifyingContract,
	})
	if err != nil {
		return nil, err
	}
	sugar.Infow("exchange_config",
		"domain", cfg.Domain.Name,
		"version", cfg.Domain.Version,
		"chain_id", cfg.Domain.ChainID.String(),
		"verifying_contract", cfg.Domain.VerifyingContract.Hex(),
		"protocol_fee_bps", cfg.Fees.ProtocolFeeBps,
		"multi_match_policy", cfg.Exchange.MultiMatchPolicy,
	)
	return exchange.New(exchange.ConfigFromParams(cfg), codec, exchange.NewStoreBackend(store),
		exchange.WithRoyalties(registry),
		exchange.WithMetrics(m),
		exchange.WithLogger(sugar),
	)
}

func run(ctx context.Context, cmd string, args []string, ex *exchange.Exchange, store *storage.PebbleStore, registry *storage.RoyaltyRegistry, sugar *zap.SugaredLogger) error {
	switch cmd {
	case "genesis":
		data, err := readArg(args)
		if err != nil {
			return err
		}
		g, err := parseGenesis(data)
		if err != nil {
			return err
		}
		if err := g.Apply(store, registry); err != nil {
			return err
		}
		sugar.Infow("genesis_applied",
			"native", len(g.Native),
			"fungible", len(g.Fungible),
			"non_fungible", len(g.NonFungible),
			"semi_fungible", len(g.SemiFungible),
			"royalties", len(g.Royalties),
		)
		return nil

	case "match":
		data, err := readArg(args)
		if err != nil {
			return err
		}
		req, err := order.ParseMatchRequest(data)
		if err != nil {
			return err
		}
		out, err := executeMatch(ctx, ex, req)
		if err != nil {
			return err
		}
		return printJSON(out)

	case "cancel":
		data, err := readArg(args)
		if err != nil {
			return err
		}
		req, err := order.ParseCancelRequest(data)
		if err != nil {
			return err
		}
		return executeCancel(ctx, ex, req)

	case "history":
		limit := 10
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid history size: %q", args[0])
			}
			limit = n
		}
		receipts, err := ex.RecentSettlements(limit)
		if err != nil {
			return err
		}
		return printJSON(receipts)

	default:
		return fmt.Errorf("unknown command: %q", cmd)
	}
}

func readArg(args []string) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one file argument")
	}
	return os.ReadFile(args[0])
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// pairResult is the printed outcome of one multi-match pair
type pairResult struct {
	Index   int               `json:"index"`
	Receipt *exchange.Receipt `json:"receipt,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func executeMatch(ctx context.Context, ex *exchange.Exchange, req *order.MatchRequest) (interface{}, error) {
	call, err := toCall(req)
	if err != nil {
		return nil, err
	}

	switch req.Mode {
	case order.MatchSingle:
		left, sigLeft, err := toSigned(req.Left)
		if err != nil {
			return nil, fmt.Errorf("left: %w", err)
		}
		right, sigRight, err := toSigned(req.Right)
		if err != nil {
			return nil, fmt.Errorf("right: %w", err)
		}
		s, err := ex.MatchOrders(ctx, call, left, sigLeft, right, sigRight)
		if err != nil {
			return nil, err
		}
		return s.Receipt(), nil

	case order.MatchBatch:
		left, sigLeft, err := toSignedBatch(req.LeftBatch)
		if err != nil {
			return nil, fmt.Errorf("leftBatch: %w", err)
		}
		right, sigRight, err := toSignedBatch(req.RightBatch)
		if err != nil {
			return nil, fmt.Errorf("rightBatch: %w", err)
		}
		s, err := ex.MatchOrdersBatch(ctx, call, left, sigLeft, right, sigRight)
		if err != nil {
			return nil, err
		}
		return s.Receipt(), nil

	default:
		lefts, sigLefts, err := toSignedList(req.Lefts)
		if err != nil {
			return nil, fmt.Errorf("lefts: %w", err)
		}
		rights, sigRights, err := toSignedList(req.Rights)
		if err != nil {
			return nil, fmt.Errorf("rights: %w", err)
		}
		results, err := ex.MultiMatchOrders(ctx, call, lefts, sigLefts, rights, sigRights)
		if err != nil {
			return nil, err
		}
		out := make([]pairResult, len(results))
		for i, r := range results {
			out[i].Index = r.Index
			if r.Err != nil {
				out[i].Error = r.Err.Error()
				continue
			}
			receipt := r.Settlement.Receipt()
			out[i].Receipt = &receipt
		}
		return out, nil
	}
}

func executeCancel(ctx context.Context, ex *exchange.Exchange, req *order.CancelRequest) error {
	if !common.IsHexAddress(req.Caller) {
		return fmt.Errorf("invalid caller address: %q", req.Caller)
	}
	caller := common.HexToAddress(req.Caller)
	if req.Batch != nil {
		b, err := req.Batch.ToBatch()
		if err != nil {
			return err
		}
		return ex.CancelBatch(ctx, caller, b)
	}
	o, err := req.Order.ToOrder()
	if err != nil {
		return err
	}
	return ex.Cancel(ctx, caller, o)
}

func toCall(req *order.MatchRequest) (exchange.Call, error) {
	if !common.IsHexAddress(req.Caller) {
		return exchange.Call{}, fmt.Errorf("invalid caller address: %q", req.Caller)
	}
	value, err := order.ParseUint256(req.Value)
	if err != nil {
		return exchange.Call{}, fmt.Errorf("invalid value: %q", req.Value)
	}
	return exchange.Call{Caller: common.HexToAddress(req.Caller), Value: value}, nil
}

func toSigned(s *order.SignedOrder) (order.Order, []byte, error) {
	o, err := s.Order.ToOrder()
	if err != nil {
		return order.Order{}, nil, err
	}
	sig, err := order.DecodeSignature(s.Signature)
	if err != nil {
		return order.Order{}, nil, err
	}
	return o, sig, nil
}

func toSignedBatch(s *order.SignedBatch) (order.OrderBatch, []byte, error) {
	b, err := s.Order.ToBatch()
	if err != nil {
		return order.OrderBatch{}, nil, err
	}
	sig, err := order.DecodeSignature(s.Signature)
	if err != nil {
		return order.OrderBatch{}, nil, err
	}
	return b, sig, nil
}

func toSignedList(list []order.SignedOrder) ([]order.Order, [][]byte, error) {
	orders := make([]order.Order, len(list))
	sigs := make([][]byte, len(list))
	for i := range list {
		o, sig, err := toSigned(&list[i])
		if err != nil {
			return nil, nil, fmt.Errorf("[%d]: %w", i, err)
		}
		orders[i], sigs[i] = o, sig
	}
	return orders, sigs, nil
}
