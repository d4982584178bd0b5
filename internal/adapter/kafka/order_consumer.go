package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/intake"
	"github.com/olyamironova/matching-core/internal/pipeline"
	"github.com/shopspring/decimal"
)

// OrderIntake is the part of intake.Service the consumer drives.
type OrderIntake interface {
	SubmitOrder(ctx context.Context, req intake.SubmitRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderNo string) error
	ModifyOrder(ctx context.Context, orderNo string, price, amount decimal.Decimal) error
}

// OrderCommand is one message on the order commands topic.
type OrderCommand struct {
	Action      string          `json:"action"` // CREATE, CANCEL or MODIFY
	OrderNo     string          `json:"orderNo"`
	UserID      int64           `json:"userId"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	OrderType   string          `json:"orderType"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	TimeInForce string          `json:"timeInForce"`
}

// OrderCommandHandler feeds order commands into intake. A rejected command is
// logged and marked. A command that failed to enqueue is left unmarked so the
// group redelivers it, and a redelivered create is caught by the order number
// guard.
type OrderCommandHandler struct {
	svc OrderIntake
	log *slog.Logger
}

var _ sarama.ConsumerGroupHandler = (*OrderCommandHandler)(nil)

func NewOrderCommandHandler(svc OrderIntake, log *slog.Logger) *OrderCommandHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OrderCommandHandler{svc: svc, log: log.With("component", "order-consumer")}
}

func (h *OrderCommandHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *OrderCommandHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *OrderCommandHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.Handle(session.Context(), msg.Value); err != nil {
				if notEnqueued(err) {
					h.log.Warn("order command not enqueued, leaving for redelivery",
						"partition", msg.Partition, "offset", msg.Offset, "error", err)
					return nil
				}
				h.log.Error("order command rejected",
					"partition", msg.Partition, "offset", msg.Offset, "error", err)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func notEnqueued(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, pipeline.ErrClosed) ||
		errors.Is(err, pipeline.ErrNotStarted)
}

// Handle decodes and applies one command.
func (h *OrderCommandHandler) Handle(ctx context.Context, value []byte) error {
	var cmd OrderCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		return fmt.Errorf("decode order command: %w", err)
	}
	switch strings.ToUpper(cmd.Action) {
	case "CREATE", "NEW":
		req, err := cmd.submitRequest()
		if err != nil {
			return err
		}
		_, err = h.svc.SubmitOrder(ctx, req)
		if errors.Is(err, intake.ErrDuplicateOrder) {
			h.log.Info("duplicate order command skipped", "order_no", cmd.OrderNo)
			return nil
		}
		return err
	case "CANCEL", "EXPIRE":
		return h.svc.CancelOrder(ctx, cmd.OrderNo)
	case "MODIFY":
		return h.svc.ModifyOrder(ctx, cmd.OrderNo, cmd.Price, cmd.Amount)
	}
	return fmt.Errorf("unknown action %q", cmd.Action)
}

func (c OrderCommand) submitRequest() (intake.SubmitRequest, error) {
	tif, ok := domain.ParseTimeInForce(strings.ToUpper(c.TimeInForce))
	if !ok {
		return intake.SubmitRequest{}, fmt.Errorf("unknown time in force %q", c.TimeInForce)
	}
	orderType := domain.OrderType(strings.ToUpper(c.OrderType))
	if orderType == "" {
		orderType = domain.Limit
	}
	return intake.SubmitRequest{
		OrderNo:     c.OrderNo,
		UserID:      c.UserID,
		Symbol:      c.Symbol,
		Side:        domain.Side(strings.ToUpper(c.Side)),
		Type:        orderType,
		Price:       c.Price,
		Amount:      c.Amount,
		TimeInForce: tif,
	}, nil
}
