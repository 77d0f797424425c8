package state

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// Validation errors (10-29)
var (
	ErrInvalidMarginRatio           = errorsmod.Register(chmath.Codespace, 10, "invalid margin ratio")
	ErrInvalidInitialPeg            = errorsmod.Register(chmath.Codespace, 11, "invalid initial peg")
	ErrOrderAmountTooSmall          = errorsmod.Register(chmath.Codespace, 12, "order amount too small")
	ErrReduceOnlyOrderIncreasedRisk = errorsmod.Register(chmath.Codespace, 13, "reduce only order increased risk")
	ErrInvalidOrder                 = errorsmod.Register(chmath.Codespace, 14, "invalid order")
	ErrInvalidFeeStructure          = errorsmod.Register(chmath.Codespace, 15, "invalid fee structure")
	ErrInsufficientCollateral       = errorsmod.Register(chmath.Codespace, 16, "insufficient collateral")
	ErrSufficientCollateral         = errorsmod.Register(chmath.Codespace, 17, "sufficient collateral")
	ErrMaxDepositExceeded           = errorsmod.Register(chmath.Codespace, 18, "max deposit exceeded")
	ErrInvalidFundingPeriod         = errorsmod.Register(chmath.Codespace, 19, "invalid funding period")
	ErrPostOnlyOrderWouldCross      = errorsmod.Register(chmath.Codespace, 20, "post only order would cross")
	ErrTradeSizeTooLarge            = errorsmod.Register(chmath.Codespace, 21, "trade size too large")
	ErrInvalidOracleGuardRails      = errorsmod.Register(chmath.Codespace, 22, "invalid oracle guard rails")
	ErrInvalidRepegAmount           = errorsmod.Register(chmath.Codespace, 23, "invalid repeg amount")
	ErrInvalidAmount                = errorsmod.Register(chmath.Codespace, 24, "invalid amount")
	ErrInvalidDiscountToken         = errorsmod.Register(chmath.Codespace, 25, "invalid discount token")
	ErrSlippageOutsideLimit         = errorsmod.Register(chmath.Codespace, 26, "slippage outside limit price")
)

// State errors (30-59)
var (
	ErrMarketIndexAlreadyInitialized      = errorsmod.Register(chmath.Codespace, 30, "market index already initialized")
	ErrMarketIndexNotInitialized          = errorsmod.Register(chmath.Codespace, 31, "market index not initialized")
	ErrMarketIndexOutOfRange              = errorsmod.Register(chmath.Codespace, 32, "market index out of range")
	ErrHistoriesAllInitialized            = errorsmod.Register(chmath.Codespace, 33, "histories already initialized")
	ErrHistoriesNotInitialized            = errorsmod.Register(chmath.Codespace, 34, "histories not initialized")
	ErrOrderStateAlreadyInitialized       = errorsmod.Register(chmath.Codespace, 35, "order state already initialized")
	ErrOrderStateNotInitialized           = errorsmod.Register(chmath.Codespace, 36, "order state not initialized")
	ErrGlobalConfigAlreadyInitialized     = errorsmod.Register(chmath.Codespace, 37, "global config already initialized")
	ErrGlobalConfigNotInitialized         = errorsmod.Register(chmath.Codespace, 38, "global config not initialized")
	ErrUserAlreadyInitialized             = errorsmod.Register(chmath.Codespace, 39, "user already initialized")
	ErrUserNotFound                       = errorsmod.Register(chmath.Codespace, 40, "user not found")
	ErrMaxNumberOfPositions               = errorsmod.Register(chmath.Codespace, 41, "max number of positions taken")
	ErrMaxNumberOfOrders                  = errorsmod.Register(chmath.Codespace, 42, "max number of orders taken")
	ErrOrderNotFound                      = errorsmod.Register(chmath.Codespace, 43, "order not found")
	ErrOrderNotOpen                       = errorsmod.Register(chmath.Codespace, 44, "order not open")
	ErrFailToFindWhitelistToken           = errorsmod.Register(chmath.Codespace, 45, "fail to find whitelist token")
	ErrInvalidWhitelistToken              = errorsmod.Register(chmath.Codespace, 46, "invalid whitelist token")
	ErrWhitelistTokenNoBalance            = errorsmod.Register(chmath.Codespace, 47, "whitelist token has no balance")
	ErrInvalidCollateralVaultAuthority    = errorsmod.Register(chmath.Codespace, 48, "invalid collateral vault authority")
	ErrInvalidInsuranceVaultAuthority     = errorsmod.Register(chmath.Codespace, 49, "invalid insurance vault authority")
	ErrExchangePaused                     = errorsmod.Register(chmath.Codespace, 50, "exchange paused")
	ErrFundingPaused                      = errorsmod.Register(chmath.Codespace, 51, "funding paused")
	ErrFundingWasNotUpdated               = errorsmod.Register(chmath.Codespace, 52, "funding period has not elapsed")
	ErrCouldNotFillOrder                  = errorsmod.Register(chmath.Codespace, 53, "could not fill order")
	ErrOrderDidNotSatisfyTriggerCondition = errorsmod.Register(chmath.Codespace, 54, "order did not satisfy trigger condition")
	ErrNoPositionToClose                  = errorsmod.Register(chmath.Codespace, 55, "no position to close")
	ErrInsufficientFeePool                = errorsmod.Register(chmath.Codespace, 56, "insufficient fee pool for adjustment")
	ErrUserHasOpenPositions               = errorsmod.Register(chmath.Codespace, 57, "user has open positions or orders")
)

// Authorization errors (60-69)
var (
	ErrUnauthorized = errorsmod.Register(chmath.Codespace, 60, "unauthorized")
)

// Oracle errors (70-79)
var (
	ErrFailToLoadOracle       = errorsmod.Register(chmath.Codespace, 70, "fail to load oracle")
	ErrFailToDeserialize      = errorsmod.Register(chmath.Codespace, 71, "fail to deserialize oracle")
	ErrOracleStale            = errorsmod.Register(chmath.Codespace, 72, "oracle price is stale")
	ErrOracleConfidenceTooLow = errorsmod.Register(chmath.Codespace, 73, "oracle confidence interval too wide")
	ErrOracleMarkDivergence   = errorsmod.Register(chmath.Codespace, 74, "mark price too divergent from oracle")
	ErrOracleInsufficientData = errorsmod.Register(chmath.Codespace, 75, "oracle has insufficient data")
	ErrInvalidOracle          = errorsmod.Register(chmath.Codespace, 76, "invalid oracle")
	ErrOracleTooVolatile      = errorsmod.Register(chmath.Codespace, 77, "oracle price too volatile")
)

// ErrorClassification groups errors for reporting.
type ErrorClassification string

const (
	ClassArithmetic    ErrorClassification = "arithmetic"
	ClassValidation    ErrorClassification = "validation"
	ClassState         ErrorClassification = "state"
	ClassAuthorization ErrorClassification = "authorization"
	ClassOracle        ErrorClassification = "oracle"
	ClassIntegrity     ErrorClassification = "integrity"
	ClassNotFound      ErrorClassification = "not_found"
	ClassUnknown       ErrorClassification = "unknown"
)

// ErrorCode returns the registered code of err, or 1 if it is not ours.
// Registered errors wrapped with fmt.Errorf("%w") are found too.
func ErrorCode(err error) uint32 {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	if codespace == chmath.Codespace {
		return code
	}
	var registered *errorsmod.Error
	if errors.As(err, &registered) && registered.Codespace() == chmath.Codespace {
		return registered.ABCICode()
	}
	return 1
}

// ErrorClass maps any wrapped clearing-house error back to its class.
func ErrorClass(err error) ErrorClassification {
	code := ErrorCode(err)
	switch {
	case code >= 2 && code < 10:
		return ClassArithmetic
	case code >= 10 && code < 30:
		return ClassValidation
	case code >= 30 && code < 60:
		return ClassState
	case code >= 60 && code < 70:
		return ClassAuthorization
	case code >= 70 && code < 80:
		return ClassOracle
	case code >= 80 && code < 90:
		return ClassIntegrity
	case code >= 90 && code < 100:
		return ClassNotFound
	}
	return ClassUnknown
}
