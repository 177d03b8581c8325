// Package exchange matches pairs of signed orders and settles them against
// the ledger. Every operation runs under one lock, inside one session, and
// either commits entirely or leaves no trace.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/uhyunpark/exchangev2/params"
	"github.com/uhyunpark/exchangev2/pkg/errs"
	"github.com/uhyunpark/exchangev2/pkg/fees"
	"github.com/uhyunpark/exchangev2/pkg/metrics"
	"github.com/uhyunpark/exchangev2/pkg/order"
	"github.com/uhyunpark/exchangev2/pkg/util"
)

// Config holds the settlement parameters of an exchange
type Config struct {
	ProtocolFeeBps   uint16
	FeeReceiver      common.Address
	Operator         common.Address // spender of allowances and holder of operator approvals
	MultiMatchPolicy params.MultiMatchPolicy
}

// ConfigFromParams derives a Config from node parameters. The verifying
// contract of the signing domain acts as the transfer operator.
func ConfigFromParams(p params.Config) Config {
	return Config{
		ProtocolFeeBps:   p.Fees.ProtocolFeeBps,
		FeeReceiver:      p.Fees.FeeReceiver,
		Operator:         p.Domain.VerifyingContract,
		MultiMatchPolicy: p.Exchange.MultiMatchPolicy,
	}
}

type Exchange struct {
	mu sync.Mutex

	cfg       Config
	codec     *order.Codec
	verifier  *order.Verifier
	backend   Backend
	royalties fees.RoyaltyDirectory
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	tracer    trace.Tracer
	clock     util.Clock
}

const tracerName = "github.com/uhyunpark/exchangev2/pkg/exchange"

type Option func(*Exchange)

// WithRoyalties sets the royalty directory consulted for unique and
// semi-fungible assets
func WithRoyalties(dir fees.RoyaltyDirectory) Option {
	return func(e *Exchange) { e.royalties = dir }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exchange) { e.metrics = m }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Exchange) { e.logger = logger }
}

// WithTracer sets the tracer for match spans; the global provider is used otherwise
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Exchange) { e.tracer = tracer }
}

func WithClock(clock util.Clock) Option {
	return func(e *Exchange) { e.clock = clock }
}

// New creates an exchange. Without options it logs nowhere, records metrics
// in a private registry, reads the system clock and charges no royalties.
func New(cfg Config, codec *order.Codec, backend Backend, opts ...Option) (*Exchange, error) {
	if codec == nil || backend == nil {
		return nil, fmt.Errorf("codec and backend are required")
	}
	if cfg.ProtocolFeeBps > order.MaxBasisPoints {
		return nil, fmt.Errorf("protocol fee %d bps exceeds %d", cfg.ProtocolFeeBps, order.MaxBasisPoints)
	}
	switch cfg.MultiMatchPolicy {
	case "":
		cfg.MultiMatchPolicy = params.PolicyIndependent
	case params.PolicyIndependent, params.PolicyAtomic:
	default:
		return nil, fmt.Errorf("unknown multi-match policy %q", cfg.MultiMatchPolicy)
	}

	e := &Exchange{
		cfg:      cfg,
		codec:    codec,
		verifier: order.NewVerifier(codec),
		backend:  backend,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	if e.logger == nil {
		e.logger = zap.NewNop().Sugar()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.clock == nil {
		e.clock = util.RealClock{}
	}
	return e, nil
}

// Codec returns the order codec used for hashing
func (e *Exchange) Codec() *order.Codec { return e.codec }

// GetFill returns the fill record of an order hash
func (e *Exchange) GetFill(ctx context.Context, hash common.Hash) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.backend.Begin(ctx)
	if err != nil {
		return nil, errs.ErrStorage.Wrap(err)
	}
	defer sess.Discard()

	fill, err := sess.GetFill(hash)
	if err != nil {
		return nil, errs.ErrStorage.Wrap(err)
	}
	return fill, nil
}

// RecentSettlements returns up to limit receipts, newest first
func (e *Exchange) RecentSettlements(limit int) ([]Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, err := e.backend.LoadRecentSettlements(limit)
	if err != nil {
		return nil, errs.ErrStorage.Wrap(err)
	}
	out := make([]Receipt, 0, len(raw))
	for _, data := range raw {
		var r Receipt
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to decode settlement: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ============================================================================
// Match lifecycle
// ============================================================================

// State is a step of a match
type State string

const (
	StateReceived  State = "received"
	StateValidated State = "validated"
	StateComputed  State = "computed"
	StateSettled   State = "settled"
	StateRejected  State = "rejected"
	StateReverted  State = "reverted"
)

// run tracks one match through its states
type run struct {
	e     *Exchange
	mode  string
	id    string
	start time.Time
	state State
	span  trace.Span
}

func (e *Exchange) newRun(ctx context.Context, mode, id string) (context.Context, *run) {
	ctx, span := e.tracer.Start(ctx, "exchange.match", trace.WithAttributes(
		attribute.String("settlement.id", id),
		attribute.String("match.mode", mode),
	))
	r := &run{e: e, mode: mode, id: id, start: time.Now(), span: span}
	r.advance(StateReceived)
	return ctx, r
}

func (r *run) advance(next State, keysAndValues ...interface{}) {
	r.state = next
	r.span.AddEvent(string(next))
	r.e.metrics.IncStateTransition(string(next))
	r.e.logger.Debugw("match_state",
		append([]interface{}{"id", r.id, "mode", r.mode, "state", next}, keysAndValues...)...)
}

func (r *run) countMatch(result string) {
	if err := r.e.metrics.IncMatch(r.mode, result); err != nil {
		r.e.logger.Warnw("metrics_inc_failed", "id", r.id, "mode", r.mode, "result", result, "err", err)
	}
}

// settled closes a successful run
func (r *run) settled(s *Settlement) {
	r.advance(StateSettled)
	r.countMatch(metrics.ResultSettled)
	r.e.metrics.ObserveSettlementLatency(time.Since(r.start))
	for _, t := range s.Transfers {
		r.e.metrics.IncTransfer(t.Kind.String())
	}
	r.span.SetAttributes(
		attribute.String("order.left", s.LeftHash.Hex()),
		attribute.String("order.right", s.RightHash.Hex()),
		attribute.Int("transfers", len(s.Transfers)),
	)
	r.span.End()
	r.e.logger.Infow("match_settled",
		"id", s.ID,
		"mode", s.Mode,
		"left", s.LeftHash.Hex(),
		"right", s.RightHash.Hex(),
		"fee_side", s.FeeSide,
		"transfers", len(s.Transfers),
		"native_spent", s.NativeSpent.Dec(),
	)
}

// failed closes a run that did not commit. Failures before transfers started
// are rejections; anything later is a revert of staged work.
func (r *run) failed(err error) {
	next, result := StateRejected, metrics.ResultRejected
	if r.state == StateComputed {
		next, result = StateReverted, metrics.ResultReverted
	}
	r.advance(next, "reason", errs.Reason(err))
	r.countMatch(result)
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, errs.Reason(err))
	r.span.End()
	r.e.logger.Warnw("match_"+string(next),
		"id", r.id,
		"mode", r.mode,
		"reason", errs.Reason(err),
		"error", err,
	)
}
