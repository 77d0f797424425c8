package math

// Precision constants. Every stored amount is an integer scaled by one of these.
const (
	MarkPricePrecision       uint64 = 10_000_000_000 // 1e10
	PegPrecision             uint64 = 1_000          // 1e3
	PriceToPegPrecisionRatio uint64 = MarkPricePrecision / PegPrecision
	QuotePrecision           uint64 = 1_000_000         // 1e6
	AMMReservePrecision      uint64 = 10_000_000_000_000 // 1e13
	AMMToQuotePrecisionRatio uint64 = AMMReservePrecision / QuotePrecision

	// Converts a reserve delta multiplied by peg into quote precision.
	AMMTimesPegToQuotePrecisionRatio uint64 = AMMReservePrecision * PegPrecision / QuotePrecision

	// Converts base amount times price into quote precision.
	BaseTimesPriceToQuotePrecisionRatio uint64 = AMMToQuotePrecisionRatio * MarkPricePrecision

	FundingPaymentPrecision uint64 = 10_000
	// FundingRatePrecision is the scale of cumulative funding rates.
	FundingRatePrecision uint64 = MarkPricePrecision * FundingPaymentPrecision

	MarginPrecision    uint64 = 10_000
	MinimumMarginRatio uint64 = 200
	MaximumMarginRatio uint64 = MarginPrecision

	OneHour int64 = 3600
	OneDay  int64 = 86400
)

// FundingPrecision converts cumulative-rate delta times base amount into quote precision.
var FundingPrecision = Uint128{}

func init() {
	p, err := U64(FundingRatePrecision).Mul(U64(AMMToQuotePrecisionRatio))
	if err != nil {
		panic(err)
	}
	FundingPrecision = p
}
