package dto

import (
	"time"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/shopspring/decimal"
)

type SubmitOrderRequest struct {
	OrderNo     string          `json:"order_no,omitempty"` // for deduplicate
	UserID      int64           `json:"user_id" binding:"required"`
	Symbol      string          `json:"symbol" binding:"required"`
	Side        string          `json:"side" binding:"required,oneof=BUY SELL"`
	Type        string          `json:"type" binding:"required,oneof=LIMIT MARKET"`
	Price       decimal.Decimal `json:"price"` // for limit orders
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	TimeInForce string          `json:"time_in_force,omitempty"`
}

type SubmitOrderResponse struct {
	OrderID   int64     `json:"order_id"`
	OrderNo   string    `json:"order_no"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message,omitempty"`
}

type ModifyOrderRequest struct {
	OrderNo  string          `json:"order_no" binding:"required"`
	NewPrice decimal.Decimal `json:"new_price" binding:"required"`
	NewQty   decimal.Decimal `json:"new_amount" binding:"required"`
}

type CancelOrderRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
}

type AcceptedResponse struct {
	OrderNo  string `json:"order_no,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Accepted bool   `json:"accepted"`
}

type GetOrderbookRequest struct {
	Symbol string `form:"symbol" binding:"required"`
}

type Level struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Orders int             `json:"orders"`
}

type Trade struct {
	TradeNo   string          `json:"trade_no"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	TakerSide string          `json:"taker_side"`
	Timestamp time.Time       `json:"timestamp"`
}

type GetOrderbookResponse struct {
	Symbol       string              `json:"symbol"`
	Sequence     uint64              `json:"sequence"`
	LatestPrice  decimal.NullDecimal `json:"latest_price"`
	LatestVolume decimal.NullDecimal `json:"latest_volume"`
	Bids         []Level             `json:"bids"`
	Asks         []Level             `json:"asks"`
	Trades       []Trade             `json:"trades"`
	Timestamp    time.Time           `json:"timestamp"`
}

type PriceResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type SymbolsResponse struct {
	Symbols []string `json:"symbols"`
}

func FromOrder(o *domain.Order) SubmitOrderResponse {
	return SubmitOrderResponse{
		OrderID:   o.ID,
		OrderNo:   o.OrderNo,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func FromSnapshot(s *domain.OrderbookSnapshot) GetOrderbookResponse {
	return GetOrderbookResponse{
		Symbol:       s.Symbol,
		Sequence:     s.Sequence,
		LatestPrice:  s.LatestPrice,
		LatestVolume: s.LatestVolume,
		Bids:         convertLevels(s.Bids),
		Asks:         convertLevels(s.Asks),
		Trades:       convertTrades(s.RecentTrades),
		Timestamp:    s.Timestamp,
	}
}

func convertLevels(levels []domain.DepthLevel) []Level {
	res := make([]Level, len(levels))
	for i, l := range levels {
		res[i] = Level{Price: l.Price, Amount: l.Amount, Orders: l.Orders}
	}
	return res
}

func convertTrades(trades []domain.TradeRecord) []Trade {
	res := make([]Trade, len(trades))
	for i, t := range trades {
		res[i] = Trade{
			TradeNo:   t.TradeNo,
			Price:     t.Price,
			Amount:    t.Amount,
			TakerSide: string(t.TakerSide),
			Timestamp: t.CreatedAt,
		}
	}
	return res
}
