package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// GlobalConfig is the admin-controlled singleton. It holds the fee structure,
// liquidation parameters, oracle guard rails and references to the vaults and
// the history logs.
type GlobalConfig struct {
	Admin               Handle `json:"admin"`
	ExchangePaused      bool   `json:"exchange_paused"`
	FundingPaused       bool   `json:"funding_paused"`
	AdminControlsPrices bool   `json:"admin_controls_prices"`

	CollateralMint           Handle `json:"collateral_mint"`
	CollateralVault          Handle `json:"collateral_vault"`
	CollateralVaultAuthority Handle `json:"collateral_vault_authority"`
	InsuranceVault           Handle `json:"insurance_vault"`
	InsuranceVaultAuthority  Handle `json:"insurance_vault_authority"`
	Markets                  Handle `json:"markets"`

	DepositHistory        Handle `json:"deposit_history"`
	TradeHistory          Handle `json:"trade_history"`
	FundingPaymentHistory Handle `json:"funding_payment_history"`
	FundingRateHistory    Handle `json:"funding_rate_history"`
	LiquidationHistory    Handle `json:"liquidation_history"`
	CurveHistory          Handle `json:"curve_history"`
	OrderState            Handle `json:"order_state"`

	MarginRatioInitial     uint64 `json:"margin_ratio_initial"`
	MarginRatioPartial     uint64 `json:"margin_ratio_partial"`
	MarginRatioMaintenance uint64 `json:"margin_ratio_maintenance"`

	PartialLiquidationClosePercentageNumerator     uint64 `json:"partial_liquidation_close_percentage_numerator"`
	PartialLiquidationClosePercentageDenominator   uint64 `json:"partial_liquidation_close_percentage_denominator"`
	PartialLiquidationPenaltyPercentageNumerator   uint64 `json:"partial_liquidation_penalty_percentage_numerator"`
	PartialLiquidationPenaltyPercentageDenominator uint64 `json:"partial_liquidation_penalty_percentage_denominator"`
	FullLiquidationPenaltyPercentageNumerator      uint64 `json:"full_liquidation_penalty_percentage_numerator"`
	FullLiquidationPenaltyPercentageDenominator    uint64 `json:"full_liquidation_penalty_percentage_denominator"`
	PartialLiquidationLiquidatorShareDenominator   uint64 `json:"partial_liquidation_liquidator_share_denominator"`
	FullLiquidationLiquidatorShareDenominator      uint64 `json:"full_liquidation_liquidator_share_denominator"`

	FeeStructure     FeeStructure     `json:"fee_structure"`
	WhitelistMint    Handle           `json:"whitelist_mint"`
	DiscountMint     Handle           `json:"discount_mint"`
	OracleGuardRails OracleGuardRails `json:"oracle_guard_rails"`
	MaxDeposit       chmath.Uint128   `json:"max_deposit"`
}

// FeeStructure prices trades: fee = notional * numerator / denominator,
// reduced by discount-token tiers and referral splits.
type FeeStructure struct {
	FeeNumerator       uint64             `json:"fee_numerator"`
	FeeDenominator     uint64             `json:"fee_denominator"`
	DiscountTokenTiers DiscountTokenTiers `json:"discount_token_tiers"`
	ReferralDiscount   ReferralDiscount   `json:"referral_discount"`
}

type DiscountTokenTiers struct {
	FirstTier  DiscountTokenTier `json:"first_tier"`
	SecondTier DiscountTokenTier `json:"second_tier"`
	ThirdTier  DiscountTokenTier `json:"third_tier"`
	FourthTier DiscountTokenTier `json:"fourth_tier"`
}

type DiscountTokenTier struct {
	MinimumBalance      uint64 `json:"minimum_balance"`
	DiscountNumerator   uint64 `json:"discount_numerator"`
	DiscountDenominator uint64 `json:"discount_denominator"`
}

type ReferralDiscount struct {
	ReferrerRewardNumerator    uint64 `json:"referrer_reward_numerator"`
	ReferrerRewardDenominator  uint64 `json:"referrer_reward_denominator"`
	RefereeDiscountNumerator   uint64 `json:"referee_discount_numerator"`
	RefereeDiscountDenominator uint64 `json:"referee_discount_denominator"`
}

// DefaultFeeStructure is 10 bps with four discount-token tiers and a 5%/5% referral split.
func DefaultFeeStructure() FeeStructure {
	return FeeStructure{
		FeeNumerator:   10,
		FeeDenominator: 10_000,
		DiscountTokenTiers: DiscountTokenTiers{
			FirstTier:  DiscountTokenTier{MinimumBalance: 1_000_000_000, DiscountNumerator: 20, DiscountDenominator: 100},
			SecondTier: DiscountTokenTier{MinimumBalance: 100_000_000, DiscountNumerator: 15, DiscountDenominator: 100},
			ThirdTier:  DiscountTokenTier{MinimumBalance: 10_000_000, DiscountNumerator: 10, DiscountDenominator: 100},
			FourthTier: DiscountTokenTier{MinimumBalance: 1_000_000, DiscountNumerator: 5, DiscountDenominator: 100},
		},
		ReferralDiscount: ReferralDiscount{
			ReferrerRewardNumerator:    5,
			ReferrerRewardDenominator:  100,
			RefereeDiscountNumerator:   5,
			RefereeDiscountDenominator: 100,
		},
	}
}

// Validate rejects zero denominators and discounts larger than the fee.
func (fs FeeStructure) Validate() error {
	if fs.FeeDenominator == 0 || fs.FeeNumerator > fs.FeeDenominator {
		return errorsmod.Wrapf(ErrInvalidFeeStructure, "fee %d/%d", fs.FeeNumerator, fs.FeeDenominator)
	}
	tiers := []DiscountTokenTier{
		fs.DiscountTokenTiers.FirstTier,
		fs.DiscountTokenTiers.SecondTier,
		fs.DiscountTokenTiers.ThirdTier,
		fs.DiscountTokenTiers.FourthTier,
	}
	for i, tier := range tiers {
		if tier.DiscountDenominator == 0 || tier.DiscountNumerator > tier.DiscountDenominator {
			return errorsmod.Wrapf(ErrInvalidFeeStructure, "discount tier %d", i+1)
		}
	}
	rd := fs.ReferralDiscount
	if rd.ReferrerRewardDenominator == 0 || rd.RefereeDiscountDenominator == 0 {
		return errorsmod.Wrap(ErrInvalidFeeStructure, "referral denominators must be non-zero")
	}
	return nil
}

// OracleGuardRails bound when an oracle reading is trusted.
type OracleGuardRails struct {
	PriceDivergence    PriceDivergenceGuardRails `json:"price_divergence"`
	Validity           ValidityGuardRails        `json:"validity"`
	UseForLiquidations bool                      `json:"use_for_liquidations"`
}

type PriceDivergenceGuardRails struct {
	MarkOracleDivergenceNumerator   uint64 `json:"mark_oracle_divergence_numerator"`
	MarkOracleDivergenceDenominator uint64 `json:"mark_oracle_divergence_denominator"`
}

type ValidityGuardRails struct {
	SlotsBeforeStale          int64  `json:"slots_before_stale"`
	ConfidenceIntervalMaxSize uint64 `json:"confidence_interval_max_size"`
	TooVolatileRatio          int64  `json:"too_volatile_ratio"`
}

func DefaultOracleGuardRails() OracleGuardRails {
	return OracleGuardRails{
		PriceDivergence: PriceDivergenceGuardRails{
			MarkOracleDivergenceNumerator:   1,
			MarkOracleDivergenceDenominator: 10,
		},
		Validity: ValidityGuardRails{
			SlotsBeforeStale:          1000,
			ConfidenceIntervalMaxSize: 4,
			TooVolatileRatio:          5,
		},
		UseForLiquidations: true,
	}
}

func (r OracleGuardRails) Validate() error {
	if r.PriceDivergence.MarkOracleDivergenceDenominator == 0 {
		return errorsmod.Wrap(ErrInvalidOracleGuardRails, "divergence denominator is zero")
	}
	if r.Validity.SlotsBeforeStale < 0 || r.Validity.TooVolatileRatio < 1 {
		return errorsmod.Wrapf(ErrInvalidOracleGuardRails, "validity %+v", r.Validity)
	}
	return nil
}

// GlobalConfigParams are the caller-supplied references for initialization.
type GlobalConfigParams struct {
	Admin                Handle `json:"admin"`
	CollateralMint       Handle `json:"collateral_mint"`
	CollateralVault      Handle `json:"collateral_vault"`
	CollateralVaultOwner Handle `json:"collateral_vault_owner"`
	InsuranceVault       Handle `json:"insurance_vault"`
	InsuranceVaultOwner  Handle `json:"insurance_vault_owner"`
	AdminControlsPrices  bool   `json:"admin_controls_prices"`
}

// VaultAuthority is the handle a vault must be owned by for the clearing house to control it.
func VaultAuthority(vault Handle) Handle {
	return DeriveHandle(vault, "vault_authority")
}

// NewGlobalConfig validates params and returns the config with its defaults.
// History and order-state references start unset.
func NewGlobalConfig(p GlobalConfigParams) (GlobalConfig, error) {
	collateralAuthority := VaultAuthority(p.CollateralVault)
	if p.CollateralVault.IsZero() || p.CollateralVaultOwner != collateralAuthority {
		return GlobalConfig{}, errorsmod.Wrapf(ErrInvalidCollateralVaultAuthority, "vault %s", p.CollateralVault)
	}
	insuranceAuthority := VaultAuthority(p.InsuranceVault)
	if p.InsuranceVault.IsZero() || p.InsuranceVaultOwner != insuranceAuthority {
		return GlobalConfig{}, errorsmod.Wrapf(ErrInvalidInsuranceVaultAuthority, "vault %s", p.InsuranceVault)
	}

	return GlobalConfig{
		Admin:                    p.Admin,
		AdminControlsPrices:      p.AdminControlsPrices,
		CollateralMint:           p.CollateralMint,
		CollateralVault:          p.CollateralVault,
		CollateralVaultAuthority: collateralAuthority,
		InsuranceVault:           p.InsuranceVault,
		InsuranceVaultAuthority:  insuranceAuthority,
		Markets:                  DeriveHandle(p.Admin, "markets"),

		MarginRatioInitial:     2000, // 5x
		MarginRatioPartial:     625,  // 16x
		MarginRatioMaintenance: 500,  // 20x

		PartialLiquidationClosePercentageNumerator:     25,
		PartialLiquidationClosePercentageDenominator:   100,
		PartialLiquidationPenaltyPercentageNumerator:   25,
		PartialLiquidationPenaltyPercentageDenominator: 1000,
		FullLiquidationPenaltyPercentageNumerator:      1,
		FullLiquidationPenaltyPercentageDenominator:    1,
		PartialLiquidationLiquidatorShareDenominator:   2,
		FullLiquidationLiquidatorShareDenominator:      20,

		FeeStructure:     DefaultFeeStructure(),
		OracleGuardRails: DefaultOracleGuardRails(),
	}, nil
}

// HistoriesInitialized reports whether all six history logs are attached.
func (gc *GlobalConfig) HistoriesInitialized() bool {
	return !gc.DepositHistory.IsZero() &&
		!gc.TradeHistory.IsZero() &&
		!gc.FundingPaymentHistory.IsZero() &&
		!gc.FundingRateHistory.IsZero() &&
		!gc.LiquidationHistory.IsZero() &&
		!gc.CurveHistory.IsZero()
}

// RequireAdmin fails unless signer is the configured admin.
func (gc *GlobalConfig) RequireAdmin(signer Handle) error {
	if signer != gc.Admin {
		return errorsmod.Wrapf(ErrUnauthorized, "%s is not admin", signer)
	}
	return nil
}
