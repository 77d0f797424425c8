package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// MaxMarkets is the capacity of the market registry.
const MaxMarkets = 64

const (
	DefaultMinimumQuoteAssetTradeSize = 10_000_000
	DefaultMinimumBaseAssetTradeSize  = 10_000_000
)

// Market is one perpetual market. Invariant:
// BaseAssetAmount == BaseAssetAmountLong + BaseAssetAmountShort.
type Market struct {
	MarketIndex          uint64         `json:"market_index"`
	Initialized          bool           `json:"initialized"`
	BaseAssetAmountLong  chmath.Int128  `json:"base_asset_amount_long"`
	BaseAssetAmountShort chmath.Int128  `json:"base_asset_amount_short"`
	BaseAssetAmount      chmath.Int128  `json:"base_asset_amount"`
	OpenInterest         chmath.Uint128 `json:"open_interest"`
	AMM                  AMM            `json:"amm"`

	MarginRatioInitial     uint64 `json:"margin_ratio_initial"`
	MarginRatioPartial     uint64 `json:"margin_ratio_partial"`
	MarginRatioMaintenance uint64 `json:"margin_ratio_maintenance"`
}

// MarketParams are the inputs to market initialization.
type MarketParams struct {
	MarketIndex            uint64         `json:"market_index"`
	BaseAssetReserve       chmath.Uint128 `json:"base_asset_reserve"`
	QuoteAssetReserve      chmath.Uint128 `json:"quote_asset_reserve"`
	FundingPeriod          int64          `json:"funding_period"`
	PegMultiplier          chmath.Uint128 `json:"peg_multiplier"`
	Oracle                 Handle         `json:"oracle"`
	OracleSource           OracleSource   `json:"oracle_source"`
	MarginRatioInitial     uint64         `json:"margin_ratio_initial"`
	MarginRatioPartial     uint64         `json:"margin_ratio_partial"`
	MarginRatioMaintenance uint64         `json:"margin_ratio_maintenance"`
}

// UpdateForPosition moves a position's contribution from oldBase to newBase
// in the long/short/net totals and open interest.
func (m *Market) UpdateForPosition(oldBase, newBase chmath.Int128) error {
	long, short := m.BaseAssetAmountLong, m.BaseAssetAmountShort
	var err error

	if oldBase.Sign() > 0 {
		if long, err = long.Sub(oldBase); err != nil {
			return err
		}
	} else if oldBase.Sign() < 0 {
		if short, err = short.Sub(oldBase); err != nil {
			return err
		}
	}
	if newBase.Sign() > 0 {
		if long, err = long.Add(newBase); err != nil {
			return err
		}
	} else if newBase.Sign() < 0 {
		if short, err = short.Add(newBase); err != nil {
			return err
		}
	}

	net, err := long.Add(short)
	if err != nil {
		return err
	}

	openInterest := m.OpenInterest
	switch {
	case oldBase.IsZero() && !newBase.IsZero():
		openInterest, err = openInterest.Add(chmath.U64(1))
	case !oldBase.IsZero() && newBase.IsZero():
		openInterest, err = openInterest.Sub(chmath.U64(1))
	}
	if err != nil {
		return err
	}

	m.BaseAssetAmountLong = long
	m.BaseAssetAmountShort = short
	m.BaseAssetAmount = net
	m.OpenInterest = openInterest
	return nil
}

// Markets is the fixed-capacity market registry, indexed by market index.
type Markets struct {
	Markets [MaxMarkets]Market `json:"markets"`
}

// Get returns the slot for index, initialized or not.
func (m *Markets) Get(index uint64) (*Market, error) {
	if index >= MaxMarkets {
		return nil, errorsmod.Wrapf(ErrMarketIndexOutOfRange, "index %d, capacity %d", index, MaxMarkets)
	}
	return &m.Markets[index], nil
}

// GetInitialized returns the market at index or fails if it was never initialized.
func (m *Markets) GetInitialized(index uint64) (*Market, error) {
	market, err := m.Get(index)
	if err != nil {
		return nil, err
	}
	if !market.Initialized {
		return nil, errorsmod.Wrapf(ErrMarketIndexNotInitialized, "index %d", index)
	}
	return market, nil
}

// Initialize validates p and writes the new market into its slot. Nothing is
// written unless every check passes.
func (m *Markets) Initialize(p MarketParams, oracle OraclePriceData, now int64) (*Market, error) {
	slot, err := m.Get(p.MarketIndex)
	if err != nil {
		return nil, err
	}
	if slot.Initialized {
		return nil, errorsmod.Wrapf(ErrMarketIndexAlreadyInitialized, "index %d", p.MarketIndex)
	}

	// Genesis is a 1:1 curve; the peg sets the starting price.
	if p.BaseAssetReserve != p.QuoteAssetReserve || p.BaseAssetReserve.IsZero() {
		return nil, errorsmod.Wrapf(ErrInvalidInitialPeg, "base %s quote %s", p.BaseAssetReserve, p.QuoteAssetReserve)
	}
	if p.PegMultiplier.IsZero() {
		return nil, errorsmod.Wrap(ErrInvalidInitialPeg, "peg multiplier is zero")
	}
	if _, err := chmath.WideProduct(p.BaseAssetReserve, p.QuoteAssetReserve); err != nil {
		return nil, errorsmod.Wrap(err, "reserve product")
	}
	if p.FundingPeriod <= 0 {
		return nil, errorsmod.Wrapf(ErrInvalidFundingPeriod, "%d", p.FundingPeriod)
	}
	if err := ValidateMarginRatios(p.MarginRatioInitial, p.MarginRatioPartial, p.MarginRatioMaintenance); err != nil {
		return nil, err
	}
	if !p.OracleSource.Valid() {
		return nil, errorsmod.Wrapf(ErrInvalidOracle, "source %d", p.OracleSource)
	}
	if p.Oracle.IsZero() {
		return nil, errorsmod.Wrap(ErrFailToLoadOracle, "no oracle handle")
	}
	if oracle.Price.Sign() <= 0 {
		return nil, errorsmod.Wrapf(ErrFailToLoadOracle, "oracle price %s", oracle.Price)
	}

	initPrice, err := chmath.CalculatePrice(p.QuoteAssetReserve, p.BaseAssetReserve, p.PegMultiplier)
	if err != nil {
		return nil, err
	}

	oracleTWAP := oracle.TWAP
	if oracleTWAP.Sign() <= 0 {
		oracleTWAP = oracle.Price
	}

	*slot = Market{
		MarketIndex: p.MarketIndex,
		Initialized: true,
		AMM: AMM{
			Oracle:                     p.Oracle,
			OracleSource:               p.OracleSource,
			BaseAssetReserve:           p.BaseAssetReserve,
			QuoteAssetReserve:          p.QuoteAssetReserve,
			SqrtK:                      p.BaseAssetReserve,
			PegMultiplier:              p.PegMultiplier,
			FundingPeriod:              p.FundingPeriod,
			LastFundingRateTS:          now,
			LastMarkPriceTWAP:          initPrice,
			LastMarkPriceTWAPTS:        now,
			LastOraclePrice:            oracle.Price,
			LastOraclePriceTWAP:        oracleTWAP,
			LastOraclePriceTWAPTS:      now,
			MinimumQuoteAssetTradeSize: chmath.U64(DefaultMinimumQuoteAssetTradeSize),
			MinimumBaseAssetTradeSize:  chmath.U64(DefaultMinimumBaseAssetTradeSize),
		},
		MarginRatioInitial:     p.MarginRatioInitial,
		MarginRatioPartial:     p.MarginRatioPartial,
		MarginRatioMaintenance: p.MarginRatioMaintenance,
	}
	return slot, nil
}
