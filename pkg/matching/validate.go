package matching

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/errs"
	"github.com/uhyunpark/exchangev2/pkg/order"
)

// BatchUnit is the make value of a batch order: its fill record is 0 until
// it settles, then 1
var BatchUnit = uint256.NewInt(1)

// ValidateWindow checks start < now < end, with 0 meaning unbounded
func ValidateWindow(start, end, now uint64) error {
	if start != 0 && start >= now {
		return errs.ErrOrderNotStarted
	}
	if end != 0 && end <= now {
		return errs.ErrOrderExpired
	}
	return nil
}

// ValidateFill rejects orders that are cancelled or already fully filled
func ValidateFill(makeValue, fill *uint256.Int) error {
	if fill == nil {
		return nil
	}
	if IsCancelled(fill) {
		return errs.ErrOrderCancelled
	}
	if !fill.Lt(makeValue) {
		return errs.ErrOrderFilled
	}
	return nil
}

// ValidateOrder checks o's shape, its time window and its prior fill
func ValidateOrder(o order.Order, fill *uint256.Int, now uint64) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if err := ValidateWindow(o.Start, o.End, now); err != nil {
		return err
	}
	return ValidateFill(o.MakeAsset.Amount(), fill)
}

// ValidateBatch is ValidateOrder for batch orders
func ValidateBatch(b order.OrderBatch, fill *uint256.Int, now uint64) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := ValidateWindow(b.Start, b.End, now); err != nil {
		return err
	}
	return ValidateFill(BatchUnit, fill)
}

// MatchAssets checks that left and right trade the same pair of assets in
// opposite directions and that each honours the other's taker restriction
func MatchAssets(left, right order.Order) error {
	if !left.TakeAsset.Type.Equal(right.MakeAsset.Type) || !left.MakeAsset.Type.Equal(right.TakeAsset.Type) {
		return errs.ErrAssetMismatch
	}
	return checkTakers(left.Maker, left.Taker, right.Maker, right.Taker)
}

// MatchBatchAssets is MatchAssets for batches: asset lists must line up
// element by element
func MatchBatchAssets(left, right order.OrderBatch) error {
	if !typesEqual(left.MakeAssets, right.TakeAssets) || !typesEqual(left.TakeAssets, right.MakeAssets) {
		return errs.ErrAssetMismatch
	}
	return checkTakers(left.Maker, left.Taker, right.Maker, right.Taker)
}

func typesEqual(a, b []asset.Asset) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Type.Equal(b[i].Type) {
			return false
		}
	}
	return true
}

func checkTakers(leftMaker, leftTaker, rightMaker, rightTaker common.Address) error {
	if leftTaker != (common.Address{}) && leftTaker != rightMaker {
		return errs.ErrLeftTaker
	}
	if rightTaker != (common.Address{}) && rightTaker != leftMaker {
		return errs.ErrRightTaker
	}
	return nil
}

// BatchResult lists the values moved per asset position
type BatchResult struct {
	LeftValues  []*uint256.Int // left's make assets sent to right
	RightValues []*uint256.Int // right's make assets sent to left
}

// FillBatch settles two matched batches all-or-nothing at the left batch's
// declared amounts. Right must accept no less than it asked for and must be
// able to pay what left asks.
func FillBatch(left, right order.OrderBatch) (BatchResult, error) {
	if err := MatchBatchAssets(left, right); err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{
		LeftValues:  make([]*uint256.Int, len(left.MakeAssets)),
		RightValues: make([]*uint256.Int, len(left.TakeAssets)),
	}
	for i, a := range left.MakeAssets {
		if right.TakeAssets[i].Amount().Gt(a.Amount()) {
			return BatchResult{}, errs.ErrFillLeft.Wrap(fmt.Errorf("asset %d", i))
		}
		res.LeftValues[i] = new(uint256.Int).Set(a.Amount())
	}
	for i, a := range left.TakeAssets {
		if a.Amount().Gt(right.MakeAssets[i].Amount()) {
			return BatchResult{}, errs.ErrFillRight.Wrap(fmt.Errorf("asset %d", i))
		}
		res.RightValues[i] = new(uint256.Int).Set(a.Amount())
	}
	return res, nil
}
