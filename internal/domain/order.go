package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderType string
type OrderStatus string
type TimeInForce int

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"

	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"

	Pending         OrderStatus = "PENDING"
	PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	FullyFilled     OrderStatus = "FULLY_FILLED"
	Cancelled       OrderStatus = "CANCELLED"
	Expired         OrderStatus = "EXPIRED"

	GTC TimeInForce = 1
	IOC TimeInForce = 2
	FOK TimeInForce = 3
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the side a resting counterparty sits on.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (t OrderType) Valid() bool { return t == Limit || t == Market }

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == FullyFilled || s == Cancelled || s == Expired
}

func (tif TimeInForce) Valid() bool { return tif >= GTC && tif <= FOK }

func (tif TimeInForce) String() string {
	switch tif {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	}
	return "UNKNOWN"
}

// ParseTimeInForce accepts both the symbolic and the numeric form.
func ParseTimeInForce(s string) (TimeInForce, bool) {
	switch s {
	case "", "GTC", "1":
		return GTC, true
	case "IOC", "2":
		return IOC, true
	case "FOK", "3":
		return FOK, true
	}
	return 0, false
}

type Order struct {
	ID             int64           `json:"id"`
	OrderNo        string          `json:"orderNo"`
	UserID         int64           `json:"userId"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Type           OrderType       `json:"orderType"`
	Price          decimal.Decimal `json:"price"`
	Amount         decimal.Decimal `json:"amount"`
	ExecutedAmount decimal.Decimal `json:"executedAmount"`
	ExecutedValue  decimal.Decimal `json:"executedValue"`
	Fee            decimal.Decimal `json:"fee"`
	Status         OrderStatus     `json:"status"`
	TimeInForce    TimeInForce     `json:"timeInForce"`
	CreatedAt      time.Time       `json:"createTime"`
	UpdatedAt      time.Time       `json:"updateTime"`
}

func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.ExecutedAmount)
}

// CanRest reports whether an unfilled remainder may stay in the book.
func (o *Order) CanRest() bool {
	return o.Type == Limit && o.TimeInForce != IOC && o.TimeInForce != FOK
}

// Crosses reports whether o can trade against a resting order at price.
func (o *Order) Crosses(price decimal.Decimal) bool {
	if o.Type == Market {
		return true
	}
	if o.Side == Buy {
		return o.Price.GreaterThanOrEqual(price)
	}
	return o.Price.LessThanOrEqual(price)
}

// Fill applies one execution. The caller guarantees amount <= Remaining().
func (o *Order) Fill(amount, value, fee decimal.Decimal, at time.Time) {
	o.ExecutedAmount = o.ExecutedAmount.Add(amount)
	o.ExecutedValue = o.ExecutedValue.Add(value)
	o.Fee = o.Fee.Add(fee)
	if o.Remaining().IsPositive() {
		o.Status = PartiallyFilled
	} else {
		o.Status = FullyFilled
	}
	o.UpdatedAt = at
}

// Cancel moves a live order to CANCELLED. It reports false if the order was
// already terminal.
func (o *Order) Cancel(at time.Time) bool {
	if o.Status.Terminal() {
		return false
	}
	o.Status = Cancelled
	o.UpdatedAt = at
	return true
}

func (o *Order) PartiallyFilled() bool {
	return o.ExecutedAmount.IsPositive() && o.ExecutedAmount.LessThan(o.Amount)
}
