package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// MaxPositions is the number of concurrent market slots a user may hold.
const MaxPositions = 5

// User is one trading identity's account.
type User struct {
	Authority          Handle         `json:"authority"`
	Collateral         chmath.Uint128 `json:"collateral"`
	CumulativeDeposits chmath.Int128  `json:"cumulative_deposits"`

	TotalFeePaid         chmath.Uint128 `json:"total_fee_paid"`
	TotalFeeRebate       chmath.Uint128 `json:"total_fee_rebate"`
	TotalTokenDiscount   chmath.Uint128 `json:"total_token_discount"`
	TotalReferralReward  chmath.Uint128 `json:"total_referral_reward"`
	TotalRefereeDiscount chmath.Uint128 `json:"total_referee_discount"`

	Positions Handle `json:"positions"`

	// Bookkeeping for positions force-closed by a global settlement.
	SettledPositionValue           chmath.Uint128 `json:"settled_position_value"`
	CollateralClaimed              chmath.Uint128 `json:"collateral_claimed"`
	LastCollateralAvailableToClaim chmath.Uint128 `json:"last_collateral_available_to_claim"`
	ForgoPositionSettlement        bool           `json:"forgo_position_settlement"`
	HasSettledPosition             bool           `json:"has_settled_position"`
}

// TokenAccount is a caller-supplied proof of a token balance, used for the
// whitelist and discount-token checks.
type TokenAccount struct {
	Owner  Handle `json:"owner"`
	Mint   Handle `json:"mint"`
	Amount uint64 `json:"amount"`
}

// NewUser builds a user and its empty position set. When a whitelist mint is
// configured the caller must hold a positive balance of it.
func NewUser(authority Handle, whitelistMint Handle, whitelistToken *TokenAccount) (User, UserPositions, error) {
	if !whitelistMint.IsZero() {
		if whitelistToken == nil || whitelistToken.Mint != whitelistMint {
			return User{}, UserPositions{}, errorsmod.Wrapf(ErrFailToFindWhitelistToken, "mint %s", whitelistMint)
		}
		if whitelistToken.Owner != authority {
			return User{}, UserPositions{}, errorsmod.Wrapf(ErrInvalidWhitelistToken, "owner %s", whitelistToken.Owner)
		}
		if whitelistToken.Amount == 0 {
			return User{}, UserPositions{}, errorsmod.Wrap(ErrWhitelistTokenNoBalance, "zero balance")
		}
	}

	positions := DeriveHandle(authority, "positions")
	return User{Authority: authority, Positions: positions}, UserPositions{User: authority}, nil
}

// UserAccount is the handle of the user account owned by authority.
func UserAccount(authority Handle) Handle {
	return DeriveHandle(authority, "user")
}

// MarketPosition is one slot of a user's position set.
type MarketPosition struct {
	MarketIndex               uint64         `json:"market_index"`
	BaseAssetAmount           chmath.Int128  `json:"base_asset_amount"`
	QuoteAssetAmount          chmath.Uint128 `json:"quote_asset_amount"`
	LastCumulativeFundingRate chmath.Int128  `json:"last_cumulative_funding_rate"`
	LastCumulativeRepegRebate chmath.Uint128 `json:"last_cumulative_repeg_rebate"`
	LastFundingRateTS         int64          `json:"last_funding_rate_ts"`
	OpenOrders                uint64         `json:"open_orders"`
}

func (p *MarketPosition) IsOpenPosition() bool { return !p.BaseAssetAmount.IsZero() }
func (p *MarketPosition) HasOpenOrder() bool   { return p.OpenOrders != 0 }
func (p *MarketPosition) IsLong() bool         { return p.BaseAssetAmount.Sign() > 0 }

// IsForMarket reports whether the slot is in use for index.
func (p *MarketPosition) IsForMarket(index uint64) bool {
	return p.MarketIndex == index && (p.IsOpenPosition() || p.HasOpenOrder())
}

// IsAvailable reports whether the slot holds neither a position nor orders.
func (p *MarketPosition) IsAvailable() bool {
	return !p.IsOpenPosition() && !p.HasOpenOrder()
}

// UserPositions is a user's fixed set of market slots.
type UserPositions struct {
	User      Handle                       `json:"user"`
	Positions [MaxPositions]MarketPosition `json:"positions"`
}

// Find returns the slot in use for index.
func (up *UserPositions) Find(index uint64) (int, bool) {
	for i := range up.Positions {
		if up.Positions[i].IsForMarket(index) {
			return i, true
		}
	}
	return -1, false
}

// GetOrAllocate returns the slot for index, allocating one if needed: an
// available slot that last held index is preferred, then the first available
// slot. Fails with ErrMaxNumberOfPositions when all slots are taken.
func (up *UserPositions) GetOrAllocate(index uint64) (int, error) {
	if i, ok := up.Find(index); ok {
		return i, nil
	}
	for i := range up.Positions {
		if up.Positions[i].IsAvailable() && up.Positions[i].MarketIndex == index {
			up.Positions[i] = MarketPosition{MarketIndex: index}
			return i, nil
		}
	}
	for i := range up.Positions {
		if up.Positions[i].IsAvailable() {
			up.Positions[i] = MarketPosition{MarketIndex: index}
			return i, nil
		}
	}
	return -1, errorsmod.Wrapf(ErrMaxNumberOfPositions, "market %d", index)
}

// HasOpenPositionOrOrder reports whether any slot is in use.
func (up *UserPositions) HasOpenPositionOrOrder() bool {
	for i := range up.Positions {
		if !up.Positions[i].IsAvailable() {
			return true
		}
	}
	return false
}
