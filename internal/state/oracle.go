package state

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// OraclePriceData is a normalized oracle reading. Price and TWAP are scaled to
// MarkPricePrecision; Delay is the number of slots since publication.
type OraclePriceData struct {
	Price             chmath.Int128  `json:"price"`
	Confidence        chmath.Uint128 `json:"confidence"`
	Delay             int64          `json:"delay"`
	HasSufficientData bool           `json:"has_sufficient_data"`
	TWAP              chmath.Int128  `json:"twap"`
}

// ValidateOraclePrice checks a reading against the validity guard rails:
// staleness, confidence width and volatility relative to its own TWAP.
func ValidateOraclePrice(rails ValidityGuardRails, data OraclePriceData) error {
	if !data.HasSufficientData {
		return errorsmod.Wrap(ErrOracleInsufficientData, "oracle reports insufficient data")
	}
	if data.Price.Sign() <= 0 {
		return errorsmod.Wrapf(ErrInvalidOracle, "non-positive price %s", data.Price)
	}
	if data.Delay > rails.SlotsBeforeStale {
		return errorsmod.Wrapf(ErrOracleStale, "delay %d > %d slots", data.Delay, rails.SlotsBeforeStale)
	}

	price := data.Price.UnsignedAbs()

	// Too wide when price / confidence < max size.
	if rails.ConfidenceIntervalMaxSize > 0 {
		scaled, err := data.Confidence.Mul(chmath.U64(rails.ConfidenceIntervalMaxSize))
		if err != nil {
			return err
		}
		if scaled.Gt(price) {
			return errorsmod.Wrapf(ErrOracleConfidenceTooLow, "confidence %s for price %s", data.Confidence, price)
		}
	}

	if data.TWAP.Sign() > 0 {
		twap := data.TWAP.UnsignedAbs()
		hi, lo := price.Max(twap), price.Min(twap)
		limit, err := lo.Mul(chmath.U64(uint64(rails.TooVolatileRatio)))
		if err != nil {
			return err
		}
		if hi.Gt(limit) {
			return errorsmod.Wrapf(ErrOracleTooVolatile, "price %s vs twap %s", price, twap)
		}
	}
	return nil
}

// IsMarkOracleDivergent reports |mark - oracle| / oracle > numerator / denominator.
func IsMarkOracleDivergent(rails PriceDivergenceGuardRails, markPrice chmath.Uint128, oraclePrice chmath.Int128) (bool, error) {
	if oraclePrice.Sign() <= 0 {
		return false, errorsmod.Wrapf(ErrInvalidOracle, "non-positive price %s", oraclePrice)
	}
	oracle := oraclePrice.UnsignedAbs()

	var spread chmath.Uint128
	var err error
	if markPrice.Gt(oracle) {
		spread, err = markPrice.Sub(oracle)
	} else {
		spread, err = oracle.Sub(markPrice)
	}
	if err != nil {
		return false, err
	}

	lhs, err := spread.Mul(chmath.U64(rails.MarkOracleDivergenceDenominator))
	if err != nil {
		return false, err
	}
	rhs, err := oracle.Mul(chmath.U64(rails.MarkOracleDivergenceNumerator))
	if err != nil {
		return false, err
	}
	return lhs.Gt(rhs), nil
}

// ValidateOracleForLiquidation applies every guard rail when they gate
// liquidations; with UseForLiquidations off the reading is not consulted.
func ValidateOracleForLiquidation(rails OracleGuardRails, markPrice chmath.Uint128, data OraclePriceData) error {
	if !rails.UseForLiquidations {
		return nil
	}
	if err := ValidateOraclePrice(rails.Validity, data); err != nil {
		return err
	}
	divergent, err := IsMarkOracleDivergent(rails.PriceDivergence, markPrice, data.Price)
	if err != nil {
		return err
	}
	if divergent {
		return errorsmod.Wrapf(ErrOracleMarkDivergence, "mark %s oracle %s", markPrice, data.Price)
	}
	return nil
}
