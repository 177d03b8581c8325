package main

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/exchangev2/pkg/order"
	"github.com/uhyunpark/exchangev2/pkg/storage"
)

// Genesis seeds the ledger with balances, approvals and royalty schedules
type Genesis struct {
	Native       []balanceEntry   `json:"native"`
	Fungible     []balanceEntry   `json:"fungible"`
	Allowances   []allowanceEntry `json:"allowances"`
	NonFungible  []tokenEntry     `json:"nonFungible"`
	SemiFungible []balanceEntry   `json:"semiFungible"`
	Approvals    []approvalEntry  `json:"approvals"`
	Royalties    []royaltyEntry   `json:"royalties"`
}

type balanceEntry struct {
	Token   string `json:"token,omitempty"`
	TokenID string `json:"tokenId,omitempty"`
	Account string `json:"account"`
	Value   string `json:"value"`
}

type allowanceEntry struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Value   string `json:"value"` // "max" for unlimited
}

type tokenEntry struct {
	Token   string `json:"token"`
	TokenID string `json:"tokenId"`
	Owner   string `json:"owner"`
}

type approvalEntry struct {
	Token    string `json:"token"`
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
}

type royaltyEntry struct {
	Token   string              `json:"token"`
	TokenID string              `json:"tokenId,omitempty"` // empty applies to every id
	Parts   []order.PartPayload `json:"parts"`
}

func parseGenesis(data []byte) (*Genesis, error) {
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal genesis: %w", err)
	}
	return &g, nil
}

func address(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func amount(s string) (*uint256.Int, error) {
	if s == "max" {
		return new(uint256.Int).SetAllOne(), nil
	}
	return order.ParseUint256(s)
}

// Apply writes every entry of g to store and registry
func (g *Genesis) Apply(store *storage.PebbleStore, registry *storage.RoyaltyRegistry) error {
	for i, e := range g.Native {
		account, err := address("account", e.Account)
		if err != nil {
			return fmt.Errorf("native[%d]: %w", i, err)
		}
		value, err := amount(e.Value)
		if err != nil {
			return fmt.Errorf("native[%d]: %w", i, err)
		}
		if err := store.MintNative(account, value); err != nil {
			return fmt.Errorf("native[%d]: %w", i, err)
		}
	}

	for i, e := range g.Fungible {
		token, err := address("token", e.Token)
		if err != nil {
			return fmt.Errorf("fungible[%d]: %w", i, err)
		}
		account, err := address("account", e.Account)
		if err != nil {
			return fmt.Errorf("fungible[%d]: %w", i, err)
		}
		value, err := amount(e.Value)
		if err != nil {
			return fmt.Errorf("fungible[%d]: %w", i, err)
		}
		if err := store.MintFungible(token, account, value); err != nil {
			return fmt.Errorf("fungible[%d]: %w", i, err)
		}
	}

	for i, e := range g.Allowances {
		token, err := address("token", e.Token)
		if err != nil {
			return fmt.Errorf("allowances[%d]: %w", i, err)
		}
		owner, err := address("owner", e.Owner)
		if err != nil {
			return fmt.Errorf("allowances[%d]: %w", i, err)
		}
		spender, err := address("spender", e.Spender)
		if err != nil {
			return fmt.Errorf("allowances[%d]: %w", i, err)
		}
		value, err := amount(e.Value)
		if err != nil {
			return fmt.Errorf("allowances[%d]: %w", i, err)
		}
		if err := store.Approve(token, owner, spender, value); err != nil {
			return fmt.Errorf("allowances[%d]: %w", i, err)
		}
	}

	for i, e := range g.NonFungible {
		token, err := address("token", e.Token)
		if err != nil {
			return fmt.Errorf("nonFungible[%d]: %w", i, err)
		}
		owner, err := address("owner", e.Owner)
		if err != nil {
			return fmt.Errorf("nonFungible[%d]: %w", i, err)
		}
		id, err := order.ParseUint256(e.TokenID)
		if err != nil {
			return fmt.Errorf("nonFungible[%d]: %w", i, err)
		}
		if err := store.MintNonFungible(token, id, owner); err != nil {
			return fmt.Errorf("nonFungible[%d]: %w", i, err)
		}
	}

	for i, e := range g.SemiFungible {
		token, err := address("token", e.Token)
		if err != nil {
			return fmt.Errorf("semiFungible[%d]: %w", i, err)
		}
		account, err := address("account", e.Account)
		if err != nil {
			return fmt.Errorf("semiFungible[%d]: %w", i, err)
		}
		id, err := order.ParseUint256(e.TokenID)
		if err != nil {
			return fmt.Errorf("semiFungible[%d]: %w", i, err)
		}
		value, err := amount(e.Value)
		if err != nil {
			return fmt.Errorf("semiFungible[%d]: %w", i, err)
		}
		if err := store.MintSemiFungible(token, id, account, value); err != nil {
			return fmt.Errorf("semiFungible[%d]: %w", i, err)
		}
	}

	for i, e := range g.Approvals {
		token, err := address("token", e.Token)
		if err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
		owner, err := address("owner", e.Owner)
		if err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
		operator, err := address("operator", e.Operator)
		if err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
		if err := store.SetApprovalForAll(token, owner, operator, true); err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
	}

	for i, e := range g.Royalties {
		if err := applyRoyalty(registry, e); err != nil {
			return fmt.Errorf("royalties[%d]: %w", i, err)
		}
	}
	return nil
}

func applyRoyalty(registry *storage.RoyaltyRegistry, e royaltyEntry) error {
	token, err := address("token", e.Token)
	if err != nil {
		return err
	}
	parts := make([]order.Part, len(e.Parts))
	for i, p := range e.Parts {
		account, err := address("account", p.Account)
		if err != nil {
			return err
		}
		parts[i] = order.Part{Account: account, BasisPoints: p.Value}
	}
	if e.TokenID == "" {
		return registry.SetRoyaltiesByToken(token, parts)
	}
	id, err := order.ParseUint256(e.TokenID)
	if err != nil {
		return err
	}
	return registry.SetRoyaltiesByTokenAndTokenID(token, id, parts)
}
