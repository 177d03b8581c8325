package exchange

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/params"
	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/errs"
	"github.com/uhyunpark/exchangev2/pkg/fees"
	"github.com/uhyunpark/exchangev2/pkg/matching"
	"github.com/uhyunpark/exchangev2/pkg/metrics"
	"github.com/uhyunpark/exchangev2/pkg/order"
	"github.com/uhyunpark/exchangev2/pkg/transfer"
)

// MatchOrders settles left against right at left's price. A signature may be
// empty when the caller is the order's maker.
func (e *Exchange) MatchOrders(ctx context.Context, call Call, left order.Order, sigLeft []byte, right order.Order, sigRight []byte) (*Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, r := e.newRun(ctx, metrics.ModeSingle, uuid.NewString())
	return e.settle(ctx, r, call.Caller, call.attached(), func(sess Session, d *transfer.Dispatcher) (*Settlement, error) {
		return e.matchPair(ctx, r, sess, d, call.Caller, left, sigLeft, right, sigRight)
	})
}

// MatchOrdersBatch settles two batch orders all-or-nothing
func (e *Exchange) MatchOrdersBatch(ctx context.Context, call Call, left order.OrderBatch, sigLeft []byte, right order.OrderBatch, sigRight []byte) (*Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, r := e.newRun(ctx, metrics.ModeBatch, uuid.NewString())
	return e.settle(ctx, r, call.Caller, call.attached(), func(sess Session, d *transfer.Dispatcher) (*Settlement, error) {
		return e.matchBatchPair(ctx, r, sess, d, call.Caller, left, sigLeft, right, sigRight)
	})
}

// MultiMatchOrders settles lefts[i] against rights[i] for every i. Under the
// independent policy each pair commits on its own and failures are reported in
// its MatchResult; under the atomic policy one failure rejects the whole call.
// The attached native value is shared by all pairs.
func (e *Exchange) MultiMatchOrders(ctx context.Context, call Call, lefts []order.Order, sigLefts [][]byte, rights []order.Order, sigRights [][]byte) ([]MatchResult, error) {
	n := len(lefts)
	if len(rights) != n || len(sigLefts) != n || len(sigRights) != n {
		return nil, errs.ErrLengthMismatch.Wrap(fmt.Errorf("%d lefts, %d rights, %d left signatures, %d right signatures",
			n, len(rights), len(sigLefts), len(sigRights)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.MultiMatchPolicy == params.PolicyAtomic {
		return e.multiMatchAtomic(ctx, call, lefts, sigLefts, rights, sigRights)
	}

	budget := call.attached()
	results := make([]MatchResult, n)
	for i := range lefts {
		results[i].Index = i
		pctx, r := e.newRun(ctx, metrics.ModeMulti, uuid.NewString())
		s, err := e.settle(pctx, r, call.Caller, budget, func(sess Session, d *transfer.Dispatcher) (*Settlement, error) {
			return e.matchPair(pctx, r, sess, d, call.Caller, lefts[i], sigLefts[i], rights[i], sigRights[i])
		})
		if err != nil {
			results[i].Err = err
			continue
		}
		budget.Sub(budget, s.NativeSpent)
		results[i].Settlement = s
	}
	return results, nil
}

func (e *Exchange) multiMatchAtomic(ctx context.Context, call Call, lefts []order.Order, sigLefts [][]byte, rights []order.Order, sigRights [][]byte) ([]MatchResult, error) {
	sess, err := e.backend.Begin(ctx)
	if err != nil {
		return nil, errs.ErrStorage.Wrap(err)
	}
	defer sess.Discard()

	d := transfer.NewDispatcher(sess, e.cfg.Operator, call.Caller, call.attached())
	runs := make([]*run, 0, len(lefts))
	results := make([]MatchResult, len(lefts))
	settlements := make([]*Settlement, 0, len(lefts))

	abort := func(err error) {
		for _, r := range runs {
			r.failed(err)
		}
	}

	for i := range lefts {
		pctx, r := e.newRun(ctx, metrics.ModeMulti, uuid.NewString())
		runs = append(runs, r)
		s, err := e.matchPair(pctx, r, sess, d, call.Caller, lefts[i], sigLefts[i], rights[i], sigRights[i])
		if err != nil {
			abort(err)
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		results[i] = MatchResult{Index: i, Settlement: s}
		settlements = append(settlements, s)
	}

	if err := e.commit(sess, settlements...); err != nil {
		abort(err)
		return nil, err
	}
	for i, r := range runs {
		r.settled(settlements[i])
	}
	return results, nil
}

type pairFunc func(sess Session, d *transfer.Dispatcher) (*Settlement, error)

// settle runs match in a fresh session and commits it
func (e *Exchange) settle(ctx context.Context, r *run, caller common.Address, budget *uint256.Int, match pairFunc) (*Settlement, error) {
	sess, err := e.backend.Begin(ctx)
	if err != nil {
		err = errs.ErrStorage.Wrap(err)
		r.failed(err)
		return nil, err
	}
	defer sess.Discard()

	d := transfer.NewDispatcher(sess, e.cfg.Operator, caller, budget)
	s, err := match(sess, d)
	if err == nil {
		err = e.commit(sess, s)
	}
	if err != nil {
		r.failed(err)
		return nil, err
	}
	r.settled(s)
	return s, nil
}

func (e *Exchange) commit(sess Session, settlements ...*Settlement) error {
	for _, s := range settlements {
		receipt, err := encodeReceipt(s)
		if err != nil {
			return err
		}
		if err := sess.SaveSettlement(s.Time, s.ID, receipt); err != nil {
			return errs.ErrStorage.Wrap(err)
		}
	}
	if err := sess.Commit(); err != nil {
		return errs.ErrStorage.Wrap(err)
	}
	return nil
}

// ============================================================================
// Pairs
// ============================================================================

func (e *Exchange) matchPair(ctx context.Context, r *run, sess Session, d *transfer.Dispatcher, caller common.Address,
	left order.Order, sigLeft []byte, right order.Order, sigRight []byte) (*Settlement, error) {
	leftHash, err := e.codec.Hash(left)
	if err != nil {
		return nil, errs.ErrInvalidOrder.Wrap(err)
	}
	rightHash, err := e.codec.Hash(right)
	if err != nil {
		return nil, errs.ErrInvalidOrder.Wrap(err)
	}
	if err := e.verifier.Verify(left, sigLeft, caller); err != nil {
		return nil, err
	}
	if err := e.verifier.Verify(right, sigRight, caller); err != nil {
		return nil, err
	}

	leftFill, rightFill, err := loadFills(sess, leftHash, rightHash)
	if err != nil {
		return nil, err
	}
	now := uint64(e.clock.Now().Unix())
	if err := matching.ValidateOrder(left, leftFill, now); err != nil {
		return nil, err
	}
	if err := matching.ValidateOrder(right, rightFill, now); err != nil {
		return nil, err
	}
	if err := matching.MatchAssets(left, right); err != nil {
		return nil, err
	}
	leftFees, rightFees, err := orderFees(left, right)
	if err != nil {
		return nil, err
	}
	leftKind, err := kindOf(left.MakeAsset)
	if err != nil {
		return nil, err
	}
	rightKind, err := kindOf(right.MakeAsset)
	if err != nil {
		return nil, err
	}
	r.advance(StateValidated, "left", leftHash.Hex(), "right", rightHash.Hex())

	res, err := matching.Fill(
		matching.Side{Make: left.MakeAsset.Amount(), Take: left.TakeAsset.Amount()},
		matching.Side{Make: right.MakeAsset.Amount(), Take: right.TakeAsset.Amount()},
		leftFill, rightFill,
	)
	if err != nil {
		return nil, err
	}
	newLeftFill, err := matching.Advance(leftFill, res.LeftValue)
	if err != nil {
		return nil, err
	}
	newRightFill, err := matching.Advance(rightFill, res.RightValue)
	if err != nil {
		return nil, err
	}

	leftMake := left.MakeAsset.WithValue(res.LeftValue)
	rightMake := right.MakeAsset.WithValue(res.RightValue)
	side := fees.FeeSide(leftKind, rightKind)
	var p *payment
	switch side {
	case fees.SideLeft:
		p, err = e.planPayment(ctx, leftMake, left.Maker, right.Maker, []asset.Asset{rightMake}, leftFees, rightFees)
	case fees.SideRight:
		p, err = e.planPayment(ctx, rightMake, right.Maker, left.Maker, []asset.Asset{leftMake}, leftFees, rightFees)
	}
	if err != nil {
		return nil, err
	}
	r.advance(StateComputed,
		"left_value", res.LeftValue.Dec(),
		"right_value", res.RightValue.Dec(),
		"fee_side", side.String(),
	)

	mark, spent := len(d.Records()), d.Spent()
	if p != nil {
		err = p.execute(d)
	} else {
		err = swap(d, []asset.Asset{leftMake}, left.Maker, []asset.Asset{rightMake}, right.Maker)
	}
	if err != nil {
		return nil, err
	}
	if err := recordFills(sess, leftHash, newLeftFill, rightHash, newRightFill); err != nil {
		return nil, err
	}

	return e.newSettlement(r, d, mark, spent, &Settlement{
		LeftHash:    leftHash,
		RightHash:   rightHash,
		LeftFill:    newLeftFill,
		RightFill:   newRightFill,
		LeftValues:  []*uint256.Int{res.LeftValue},
		RightValues: []*uint256.Int{res.RightValue},
		FeeSide:     side.String(),
	}), nil
}

func (e *Exchange) matchBatchPair(ctx context.Context, r *run, sess Session, d *transfer.Dispatcher, caller common.Address,
	left order.OrderBatch, sigLeft []byte, right order.OrderBatch, sigRight []byte) (*Settlement, error) {
	leftHash, err := e.codec.HashBatch(left)
	if err != nil {
		return nil, errs.ErrInvalidOrder.Wrap(err)
	}
	rightHash, err := e.codec.HashBatch(right)
	if err != nil {
		return nil, errs.ErrInvalidOrder.Wrap(err)
	}
	if err := e.verifier.VerifyBatch(left, sigLeft, caller); err != nil {
		return nil, err
	}
	if err := e.verifier.VerifyBatch(right, sigRight, caller); err != nil {
		return nil, err
	}

	leftFill, rightFill, err := loadFills(sess, leftHash, rightHash)
	if err != nil {
		return nil, err
	}
	now := uint64(e.clock.Now().Unix())
	if err := matching.ValidateBatch(left, leftFill, now); err != nil {
		return nil, err
	}
	if err := matching.ValidateBatch(right, rightFill, now); err != nil {
		return nil, err
	}
	leftFees, err := left.Fees()
	if err != nil {
		return nil, err
	}
	rightFees, err := right.Fees()
	if err != nil {
		return nil, err
	}
	leftKind, err := batchKind(left.MakeAssets)
	if err != nil {
		return nil, err
	}
	rightKind, err := batchKind(right.MakeAssets)
	if err != nil {
		return nil, err
	}
	res, err := matching.FillBatch(left, right)
	if err != nil {
		return nil, err
	}
	r.advance(StateValidated, "left", leftHash.Hex(), "right", rightHash.Hex())

	leftMakes := withValues(left.MakeAssets, res.LeftValues)
	rightMakes := withValues(right.MakeAssets, res.RightValues)
	side := fees.FeeSide(leftKind, rightKind)
	var p *payment
	switch side {
	case fees.SideLeft:
		p, err = e.planPayment(ctx, leftMakes[0], left.Maker, right.Maker, rightMakes, leftFees, rightFees)
	case fees.SideRight:
		p, err = e.planPayment(ctx, rightMakes[0], right.Maker, left.Maker, leftMakes, leftFees, rightFees)
	}
	if err != nil {
		return nil, err
	}
	r.advance(StateComputed, "assets", len(leftMakes)+len(rightMakes), "fee_side", side.String())

	mark, spent := len(d.Records()), d.Spent()
	if p != nil {
		err = p.execute(d)
	} else {
		err = swap(d, leftMakes, left.Maker, rightMakes, right.Maker)
	}
	if err != nil {
		return nil, err
	}
	settledFill := new(uint256.Int).Set(matching.BatchUnit)
	if err := recordFills(sess, leftHash, settledFill, rightHash, settledFill); err != nil {
		return nil, err
	}

	return e.newSettlement(r, d, mark, spent, &Settlement{
		LeftHash:    leftHash,
		RightHash:   rightHash,
		LeftFill:    settledFill,
		RightFill:   settledFill,
		LeftValues:  res.LeftValues,
		RightValues: res.RightValues,
		FeeSide:     side.String(),
	}), nil
}

// newSettlement completes s with the run identity and the transfers executed
// since mark
func (e *Exchange) newSettlement(r *run, d *transfer.Dispatcher, mark int, spentBefore *uint256.Int, s *Settlement) *Settlement {
	s.ID = r.id
	s.Mode = r.mode
	s.Time = e.clock.Now()
	s.Transfers = append([]transfer.Record(nil), d.Records()[mark:]...)
	s.NativeSpent = new(uint256.Int).Sub(d.Spent(), spentBefore)
	s.Refund = d.Refund()
	return s
}

// ============================================================================
// Payment
// ============================================================================

// payment is a priced trade: payer sends the payment asset, split by fees,
// and receives goods from seller
type payment struct {
	asset  asset.Asset
	payer  common.Address
	seller common.Address
	goods  []asset.Asset
	split  fees.Distribution
}

func (e *Exchange) planPayment(ctx context.Context, pay asset.Asset, payer, seller common.Address, goods []asset.Asset, originFees ...[]order.Part) (*payment, error) {
	bases := fees.Apportion(pay.Amount(), len(goods))
	var shares []fees.Share
	for i, g := range goods {
		class, err := asset.Decode(g.Type)
		if err != nil {
			return nil, err
		}
		parts, err := fees.LookupRoyalties(ctx, e.royalties, class)
		if err != nil {
			return nil, errs.ErrStorage.Wrap(err)
		}
		if len(parts) > 0 {
			shares = append(shares, fees.Share{Base: bases[i], Parts: parts})
		}
	}

	split, err := fees.Plan(fees.Input{
		Amount:         pay.Amount(),
		ProtocolFeeBps: e.cfg.ProtocolFeeBps,
		FeeReceiver:    e.cfg.FeeReceiver,
		Royalties:      shares,
		OriginFees:     originFees,
	})
	if err != nil {
		return nil, err
	}
	return &payment{asset: pay, payer: payer, seller: seller, goods: goods, split: split}, nil
}

var payoutReasons = map[fees.Kind]transfer.Reason{
	fees.KindProtocolFee: transfer.ReasonProtocolFee,
	fees.KindRoyalty:     transfer.ReasonRoyalty,
	fees.KindOriginFee:   transfer.ReasonOriginFee,
}

func (p *payment) execute(d *transfer.Dispatcher) error {
	for _, po := range p.split.Payouts {
		if err := d.Transfer(p.asset.WithValue(po.Amount), p.payer, po.Account, payoutReasons[po.Kind]); err != nil {
			return err
		}
	}
	if err := d.Transfer(p.asset.WithValue(p.split.Residual), p.payer, p.seller, transfer.ReasonProceeds); err != nil {
		return err
	}
	return d.TransferBatch(p.goods, p.seller, p.payer, transfer.ReasonDelivery)
}

// swap exchanges assets with no payment side, so no fees apply
func swap(d *transfer.Dispatcher, leftAssets []asset.Asset, leftMaker common.Address, rightAssets []asset.Asset, rightMaker common.Address) error {
	if err := d.TransferBatch(leftAssets, leftMaker, rightMaker, transfer.ReasonPayment); err != nil {
		return err
	}
	return d.TransferBatch(rightAssets, rightMaker, leftMaker, transfer.ReasonPayment)
}

// ============================================================================
// Helpers
// ============================================================================

func loadFills(sess Session, leftHash, rightHash common.Hash) (*uint256.Int, *uint256.Int, error) {
	leftFill, err := sess.GetFill(leftHash)
	if err != nil {
		return nil, nil, errs.ErrStorage.Wrap(err)
	}
	rightFill, err := sess.GetFill(rightHash)
	if err != nil {
		return nil, nil, errs.ErrStorage.Wrap(err)
	}
	return leftFill, rightFill, nil
}

func recordFills(sess Session, leftHash common.Hash, leftFill *uint256.Int, rightHash common.Hash, rightFill *uint256.Int) error {
	if err := sess.RecordFill(leftHash, leftFill); err != nil {
		return errs.ErrFillRollback.Wrap(err)
	}
	if err := sess.RecordFill(rightHash, rightFill); err != nil {
		return errs.ErrFillRollback.Wrap(err)
	}
	return nil
}

func orderFees(left, right order.Order) ([]order.Part, []order.Part, error) {
	leftFees, err := left.Fees()
	if err != nil {
		return nil, nil, err
	}
	rightFees, err := right.Fees()
	if err != nil {
		return nil, nil, err
	}
	return leftFees, rightFees, nil
}

func kindOf(a asset.Asset) (asset.Kind, error) {
	class, err := asset.Decode(a.Type)
	if err != nil {
		return 0, err
	}
	return class.Kind(), nil
}

// batchKind classifies a batch's make side. Only a single asset can be a
// payment; a bundle of several is always goods.
func batchKind(assets []asset.Asset) (asset.Kind, error) {
	kind := asset.KindNonFungible
	for i, a := range assets {
		k, err := kindOf(a)
		if err != nil {
			return 0, fmt.Errorf("asset %d: %w", i, err)
		}
		if len(assets) == 1 {
			kind = k
		}
	}
	return kind, nil
}

func withValues(assets []asset.Asset, values []*uint256.Int) []asset.Asset {
	out := make([]asset.Asset, len(assets))
	for i, a := range assets {
		out[i] = a.WithValue(values[i])
	}
	return out
}
