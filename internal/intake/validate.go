package intake

import (
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/shopspring/decimal"
)

// validateOrder checks o against the configuration of its trading pair.
func validateOrder(o *domain.Order, pair domain.TradingPair) error {
	if !pair.Enabled {
		return invalid("symbol", ErrSymbolDisabled, "%s is not trading", pair.Symbol)
	}
	if !o.Side.Valid() {
		return invalid("side", nil, "must be BUY or SELL, got %q", o.Side)
	}
	if !o.Type.Valid() {
		return invalid("orderType", nil, "must be LIMIT or MARKET, got %q", o.Type)
	}
	if !o.TimeInForce.Valid() {
		return invalid("timeInForce", nil, "unsupported value %d", o.TimeInForce)
	}
	if err := validateAmount(o.Amount, pair); err != nil {
		return err
	}
	if o.Type == domain.Market {
		if !o.Price.IsZero() {
			return invalid("price", nil, "market orders carry no price")
		}
		return nil
	}
	return validatePrice(o.Price, pair)
}

func validateAmount(amount decimal.Decimal, pair domain.TradingPair) error {
	if !amount.IsPositive() {
		return invalid("amount", ErrAmountOutOfRange, "must be positive")
	}
	if !fitsPrecision(amount, pair.AmountPrecision) {
		return invalid("amount", ErrInvalidPrecision, "at most %d decimal places", pair.AmountPrecision)
	}
	if pair.MinAmount.IsPositive() && amount.LessThan(pair.MinAmount) {
		return invalid("amount", ErrAmountOutOfRange, "below minimum %s", pair.MinAmount)
	}
	if pair.MaxAmount.IsPositive() && amount.GreaterThan(pair.MaxAmount) {
		return invalid("amount", ErrAmountOutOfRange, "above maximum %s", pair.MaxAmount)
	}
	return nil
}

func validatePrice(price decimal.Decimal, pair domain.TradingPair) error {
	if !price.IsPositive() {
		return invalid("price", ErrPriceOutOfRange, "limit orders need a positive price")
	}
	if !fitsPrecision(price, pair.PricePrecision) {
		return invalid("price", ErrInvalidPrecision, "at most %d decimal places", pair.PricePrecision)
	}
	if pair.MinPrice.IsPositive() && price.LessThan(pair.MinPrice) {
		return invalid("price", ErrPriceOutOfRange, "below minimum %s", pair.MinPrice)
	}
	if pair.MaxPrice.IsPositive() && price.GreaterThan(pair.MaxPrice) {
		return invalid("price", ErrPriceOutOfRange, "above maximum %s", pair.MaxPrice)
	}
	return nil
}

// fitsPrecision treats trailing zeros as insignificant, so 1.50 fits two or
// more places as well as one.
func fitsPrecision(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}
