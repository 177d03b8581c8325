// Package transfer executes the value movements of a settlement through an
// asset.Ledger and keeps a record of each one.
package transfer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/asset"
	"github.com/uhyunpark/exchangev2/pkg/errs"
)

// Reason labels why a transfer happened
type Reason string

const (
	ReasonPayment     Reason = "payment"
	ReasonProtocolFee Reason = "protocol_fee"
	ReasonRoyalty     Reason = "royalty"
	ReasonOriginFee   Reason = "origin_fee"
	ReasonProceeds    Reason = "proceeds"
	ReasonDelivery    Reason = "delivery"
)

// Record is one executed transfer
type Record struct {
	Reason Reason
	Kind   asset.Kind
	Type   asset.AssetType
	From   common.Address
	To     common.Address
	Value  *uint256.Int
}

// Dispatcher routes transfers to the ledger primitive of each asset class.
// Native currency is always taken from the caller and counted against the
// value attached to the call.
type Dispatcher struct {
	ledger   asset.Ledger
	operator common.Address
	caller   common.Address
	budget   *uint256.Int
	spent    *uint256.Int
	records  []Record
}

// NewDispatcher creates a dispatcher. operator is the address fungible
// allowances and operator approvals are checked against.
func NewDispatcher(ledger asset.Ledger, operator, caller common.Address, attached *uint256.Int) *Dispatcher {
	budget := new(uint256.Int)
	if attached != nil {
		budget.Set(attached)
	}
	return &Dispatcher{
		ledger:   ledger,
		operator: operator,
		caller:   caller,
		budget:   budget,
		spent:    new(uint256.Int),
	}
}

// Transfer moves a from one account to another. Zero values are skipped.
func (d *Dispatcher) Transfer(a asset.Asset, from, to common.Address, reason Reason) error {
	value := a.Amount()
	if value.IsZero() {
		return nil
	}
	class, err := asset.Decode(a.Type)
	if err != nil {
		return err
	}

	if class.Kind() == asset.KindNative {
		from = d.caller
		if err := d.spend(value); err != nil {
			return err
		}
	}

	m := asset.Movement{Operator: d.operator, From: from, To: to, Value: value}
	if err := class.Transfer(d.ledger, m); err != nil {
		return wrapLedgerErr(err, reason, class.Kind())
	}
	d.record(reason, class.Kind(), a.Type, from, to, value)
	return nil
}

type semiGroup struct {
	token   common.Address
	ids     []*uint256.Int
	amounts []*uint256.Int
	types   []asset.AssetType
}

// TransferBatch moves every asset from one account to another. Semi-fungible
// assets of the same token go through a single batch call.
func (d *Dispatcher) TransferBatch(assets []asset.Asset, from, to common.Address, reason Reason) error {
	var groups []*semiGroup
	byToken := make(map[common.Address]*semiGroup)

	for _, a := range assets {
		if a.Amount().IsZero() {
			continue
		}
		class, err := asset.Decode(a.Type)
		if err != nil {
			return err
		}
		semi, ok := class.(asset.SemiFungibleClass)
		if !ok {
			if err := d.Transfer(a, from, to, reason); err != nil {
				return err
			}
			continue
		}
		g := byToken[semi.Contract]
		if g == nil {
			g = &semiGroup{token: semi.Contract}
			byToken[semi.Contract] = g
			groups = append(groups, g)
		}
		g.ids = append(g.ids, semi.TokenID)
		g.amounts = append(g.amounts, a.Amount())
		g.types = append(g.types, a.Type)
	}

	for _, g := range groups {
		if err := d.ledger.TransferSemiFungibleBatch(g.token, d.operator, from, to, g.ids, g.amounts); err != nil {
			return wrapLedgerErr(err, reason, asset.KindSemiFungible)
		}
		for i := range g.ids {
			d.record(reason, asset.KindSemiFungible, g.types[i], from, to, g.amounts[i])
		}
	}
	return nil
}

func (d *Dispatcher) spend(value *uint256.Int) error {
	next, overflow := new(uint256.Int).AddOverflow(d.spent, value)
	if overflow || next.Gt(d.budget) {
		return errs.ErrNativeValueTooLow.Wrap(fmt.Errorf("need %s more, attached %s", value.Dec(), d.budget.Dec()))
	}
	d.spent = next
	return nil
}

func (d *Dispatcher) record(reason Reason, kind asset.Kind, typ asset.AssetType, from, to common.Address, value *uint256.Int) {
	d.records = append(d.records, Record{
		Reason: reason,
		Kind:   kind,
		Type:   typ,
		From:   from,
		To:     to,
		Value:  new(uint256.Int).Set(value),
	})
}

func wrapLedgerErr(err error, reason Reason, kind asset.Kind) error {
	if errs.KindOf(err) != 0 {
		return err
	}
	return errs.ErrTransferFailed.Wrap(fmt.Errorf("%s %s: %w", kind, reason, err))
}

// Records returns every transfer executed so far
func (d *Dispatcher) Records() []Record { return d.records }

// Spent returns the native value consumed from the attached amount
func (d *Dispatcher) Spent() *uint256.Int { return new(uint256.Int).Set(d.spent) }

// Refund returns the attached native value left unspent
func (d *Dispatcher) Refund() *uint256.Int { return new(uint256.Int).Sub(d.budget, d.spent) }
