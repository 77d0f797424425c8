package history

import (
	errorsmod "cosmossdk.io/errors"
)

// Logs is the complete set of history logs. The six account-level logs are
// attached together; the order log is attached with the order state.
type Logs struct {
	Deposits        Log[DepositRecord]        `json:"deposits"`
	Trades          Log[TradeRecord]          `json:"trades"`
	FundingPayments Log[FundingPaymentRecord] `json:"funding_payments"`
	FundingRates    Log[FundingRateRecord]    `json:"funding_rates"`
	Liquidations    Log[LiquidationRecord]    `json:"liquidations"`
	Curves          Log[CurveRecord]          `json:"curves"`
	Orders          OrderLog                  `json:"orders"`
}

// Range reads records of one log by kind; see Log.Range.
func (l *Logs) Range(kind Kind, fromID uint64, limit int) ([]Record, error) {
	switch kind {
	case KindDeposit:
		return records(l.Deposits.Range(fromID, limit)), nil
	case KindTrade:
		return records(l.Trades.Range(fromID, limit)), nil
	case KindFundingPayment:
		return records(l.FundingPayments.Range(fromID, limit)), nil
	case KindFundingRate:
		return records(l.FundingRates.Range(fromID, limit)), nil
	case KindLiquidation:
		return records(l.Liquidations.Range(fromID, limit)), nil
	case KindCurve:
		return records(l.Curves.Range(fromID, limit)), nil
	case KindOrder:
		return records(l.Orders.Range(fromID, limit)), nil
	}
	return nil, errorsmod.Wrapf(ErrUnknownLog, "%q", kind)
}

func records[R Record](rs []R) []Record {
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = r
	}
	return out
}
