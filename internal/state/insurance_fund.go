package state

import (
	chmath "PerpClearing/internal/math"
)

// InsuranceFund tracks what liquidations have paid into the insurance vault.
// The custody layer moves the tokens; this is the clearing house's ledger of
// them.
type InsuranceFund struct {
	Vault                Handle         `json:"vault"`
	Balance              chmath.Uint128 `json:"balance"`
	TotalLiquidationFees chmath.Uint128 `json:"total_liquidation_fees"`
}

// Credit books a liquidation fee share.
func (f *InsuranceFund) Credit(amount chmath.Uint128) error {
	balance, err := f.Balance.Add(amount)
	if err != nil {
		return err
	}
	total, err := f.TotalLiquidationFees.Add(amount)
	if err != nil {
		return err
	}
	f.Balance = balance
	f.TotalLiquidationFees = total
	return nil
}
