package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/olyamironova/matching-core/internal/core"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/intake"
	"github.com/olyamironova/matching-core/internal/pipeline"
	"github.com/shopspring/decimal"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// OrderService is what the gRPC layer needs from intake.
type OrderService interface {
	SubmitOrder(ctx context.Context, req intake.SubmitRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderNo string) error
	ModifyOrder(ctx context.Context, orderNo string, price, amount decimal.Decimal) error
	GetOrderBookSnapshot(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error)
	GetLatestPrice(symbol string) (decimal.Decimal, bool)
}

type GRPCServer struct {
	svc OrderService
}

var _ MatchingServer = (*GRPCServer)(nil)

func NewGRPCServer(svc OrderService) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// NewServer builds a grpc.Server with the matching and health services
// registered.
func NewServer(svc OrderService, log *slog.Logger) (*grpclib.Server, *health.Server) {
	s := grpclib.NewServer(grpclib.UnaryInterceptor(LoggingInterceptor(log)))
	RegisterMatchingServer(s, NewGRPCServer(svc))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

func (s *GRPCServer) SubmitOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req.GetFields()}
	price, err := f.decimal("price", true)
	if err != nil {
		return nil, err
	}
	amount, err := f.decimal("amount", false)
	if err != nil {
		return nil, err
	}
	tif, ok := domain.ParseTimeInForce(strings.ToUpper(f.str("time_in_force")))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "invalid time_in_force: %s", f.str("time_in_force"))
	}

	o, err := s.svc.SubmitOrder(ctx, intake.SubmitRequest{
		OrderNo:     f.str("order_no"),
		UserID:      int64(f.num("user_id")),
		Symbol:      f.str("symbol"),
		Side:        domain.Side(strings.ToUpper(f.str("side"))),
		Type:        domain.OrderType(strings.ToUpper(f.str("type"))),
		Price:       price,
		Amount:      amount,
		TimeInForce: tif,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"order_id":   o.ID,
		"order_no":   o.OrderNo,
		"status":     string(o.Status),
		"created_at": o.CreatedAt.UnixMilli(),
	})
}

func (s *GRPCServer) ModifyOrder(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	f := fields{req.GetFields()}
	price, err := f.decimal("new_price", false)
	if err != nil {
		return nil, err
	}
	amount, err := f.decimal("new_amount", false)
	if err != nil {
		return nil, err
	}
	if err := s.svc.ModifyOrder(ctx, f.str("order_no"), price, amount); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) CancelOrder(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "order number required")
	}
	if err := s.svc.CancelOrder(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) GetOrderBook(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	snap, err := s.svc.GetOrderBookSnapshot(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return out, nil
}

func (s *GRPCServer) GetLatestPrice(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	price, ok := s.svc.GetLatestPrice(req.GetValue())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no trades for %s", req.GetValue())
	}
	return wrapperspb.String(price.String()), nil
}

// fields reads loosely typed request values. Decimals may be sent as strings
// or numbers; strings are preferred since they keep full precision.
type fields struct {
	m map[string]*structpb.Value
}

func (f fields) str(key string) string {
	return f.m[key].GetStringValue()
}

func (f fields) num(key string) float64 {
	v := f.m[key]
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		d, err := decimal.NewFromString(s.StringValue)
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	}
	return v.GetNumberValue()
}

func (f fields) decimal(key string, optional bool) (decimal.Decimal, error) {
	v, ok := f.m[key]
	if !ok {
		if optional {
			return decimal.Zero, nil
		}
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s required", key)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s: %v", key, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	}
	return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s", key)
}

func toStatus(err error) error {
	var verr *intake.ValidationError
	switch {
	case errors.Is(err, intake.ErrDuplicateOrder):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, intake.ErrOrderNotFound), errors.Is(err, core.ErrSymbolNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, pipeline.ErrClosed), errors.Is(err, pipeline.ErrNotStarted):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
