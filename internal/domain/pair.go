package domain

import "github.com/shopspring/decimal"

// TradingPair is the per-symbol configuration. Zero bounds are unbounded.
type TradingPair struct {
	Symbol          string          `json:"symbol"`
	BaseCoin        string          `json:"baseCoin"`
	QuoteCoin       string          `json:"quoteCoin"`
	Enabled         bool            `json:"enabled"`
	PricePrecision  int32           `json:"pricePrecision"`
	AmountPrecision int32           `json:"amountPrecision"`
	MinAmount       decimal.Decimal `json:"minAmount"`
	MaxAmount       decimal.Decimal `json:"maxAmount"`
	MinPrice        decimal.Decimal `json:"minPrice"`
	MaxPrice        decimal.Decimal `json:"maxPrice"`
	FeeRate         decimal.Decimal `json:"feeRate"`
}
