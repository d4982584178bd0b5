package domain

type EventType uint8

const (
	NewOrder EventType = iota + 1
	CancelOrder
	ModifyOrder
	ClearBook
)

func (t EventType) String() string {
	switch t {
	case NewOrder:
		return "NEW_ORDER"
	case CancelOrder:
		return "CANCEL_ORDER"
	case ModifyOrder:
		return "MODIFY_ORDER"
	case ClearBook:
		return "CLEAR_BOOK"
	}
	return "UNKNOWN"
}

// OrderEvent is one entry of the ingestion pipeline. Replacement is only set
// for MODIFY_ORDER, Symbol only for CLEAR_BOOK.
type OrderEvent struct {
	Type        EventType
	Order       *Order
	Replacement *Order
	Symbol      string
	Seq         uint64
}
