package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is immutable once created.
type TradeRecord struct {
	TradeNo      string          `json:"tradeNo"`
	Symbol       string          `json:"symbol"`
	MakerOrderID int64           `json:"makerOrderId"`
	TakerOrderID int64           `json:"takerOrderId"`
	MakerUserID  int64           `json:"makerUserId"`
	TakerUserID  int64           `json:"takerUserId"`
	TakerSide    Side            `json:"takerSide"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	Value        decimal.Decimal `json:"value"`
	MakerFee     decimal.Decimal `json:"makerFee"`
	TakerFee     decimal.Decimal `json:"takerFee"`
	CreatedAt    time.Time       `json:"createTime"`
}
