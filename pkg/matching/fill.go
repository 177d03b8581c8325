// Package matching decides whether two orders cross and how much of each
// asset changes hands. Fill records count units of an order's make asset.
package matching

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/errs"
)

// Side is an order's declared (full) make and take values
type Side struct {
	Make *uint256.Int
	Take *uint256.Int
}

// Result is what one match moves
type Result struct {
	LeftValue  *uint256.Int // units of left's make asset sent to right
	RightValue *uint256.Int // units of right's make asset sent to left
}

// Cancelled is the fill value marking an order as cancelled
func Cancelled() *uint256.Int { return new(uint256.Int).SetAllOne() }

// IsCancelled reports whether fill is the cancellation marker
func IsCancelled(fill *uint256.Int) bool {
	return fill != nil && fill.Eq(Cancelled())
}

// Fill computes the amounts exchanged between left and right given their
// prior fills. The left order's price governs; amounts owed to a maker are
// rounded up so no maker trades below its own rate.
func Fill(left, right Side, leftFill, rightFill *uint256.Int) (Result, error) {
	leftMake, leftTake, err := remaining(left, leftFill)
	if err != nil {
		return Result{}, err
	}
	rightMake, rightTake, err := remaining(right, rightFill)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if rightTake.Gt(leftMake) {
		res, err = fillLeft(leftMake, leftTake, right, rightMake)
	} else {
		res, err = fillRight(left, rightMake, rightTake)
	}
	if err != nil {
		return Result{}, err
	}

	if res.LeftValue.IsZero() || res.RightValue.IsZero() {
		return Result{}, errs.ErrZeroFill
	}
	return res, nil
}

// fillLeft consumes the rest of the left order
func fillLeft(leftMake, leftTake *uint256.Int, right Side, rightMakeRem *uint256.Int) (Result, error) {
	rightTake, err := mulDivCeil(leftTake, right.Take, right.Make)
	if err != nil {
		return Result{}, err
	}
	if rightTake.Gt(leftMake) || leftTake.Gt(rightMakeRem) {
		return Result{}, errs.ErrFillLeft
	}
	return Result{LeftValue: leftMake, RightValue: leftTake}, nil
}

// fillRight consumes the rest of the right order at the left order's price
func fillRight(left Side, rightMake, rightTake *uint256.Int) (Result, error) {
	makerValue, err := mulDivCeil(rightTake, left.Take, left.Make)
	if err != nil {
		return Result{}, err
	}
	if makerValue.Gt(rightMake) {
		return Result{}, errs.ErrFillRight
	}
	return Result{LeftValue: new(uint256.Int).Set(rightTake), RightValue: makerValue}, nil
}

// remaining returns what is left of an order after fill units of its make
// asset have been traded
func remaining(s Side, fill *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if s.Make == nil || s.Make.IsZero() {
		return nil, nil, errs.ErrInvalidOrder.Wrap(fmt.Errorf("make value must be positive"))
	}
	take := s.Take
	if take == nil {
		take = new(uint256.Int)
	}
	if fill == nil {
		fill = new(uint256.Int)
	}

	makeRem := new(uint256.Int)
	if fill.Lt(s.Make) {
		makeRem.Sub(s.Make, fill)
	}
	if makeRem.Eq(s.Make) {
		return makeRem, new(uint256.Int).Set(take), nil
	}
	takeRem, err := mulDivCeil(take, makeRem, s.Make)
	if err != nil {
		return nil, nil, err
	}
	return makeRem, takeRem, nil
}

// mulDivCeil returns ceil(a*b/d) without intermediate overflow
func mulDivCeil(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, errs.ErrInvalidOrder.Wrap(fmt.Errorf("division by zero"))
	}
	q, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, errs.ErrInvalidOrder.Wrap(fmt.Errorf("amount overflow"))
	}
	if !new(uint256.Int).MulMod(a, b, d).IsZero() {
		if _, overflow := q.AddOverflow(q, uint256.NewInt(1)); overflow {
			return nil, errs.ErrInvalidOrder.Wrap(fmt.Errorf("amount overflow"))
		}
	}
	return q, nil
}

// Advance returns fill + delta, failing when the sum would overflow
func Advance(fill, delta *uint256.Int) (*uint256.Int, error) {
	if fill == nil {
		fill = new(uint256.Int)
	}
	sum, overflow := new(uint256.Int).AddOverflow(fill, delta)
	if overflow {
		return nil, errs.ErrInvalidOrder.Wrap(fmt.Errorf("fill overflow"))
	}
	return sum, nil
}
