package grpc

import (
	"context"
	"log/slog"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// LoggingInterceptor logs every unary call with its request as JSON.
func LoggingInterceptor(log *slog.Logger) grpclib.UnaryServerInterceptor {
	marshaler := protojson.MarshalOptions{
		Multiline:       false,
		EmitUnpopulated: true,
	}
	return func(ctx context.Context, req any, info *grpclib.UnaryServerInfo, handler grpclib.UnaryHandler) (any, error) {
		start := time.Now()
		attrs := []any{"method", info.FullMethod}
		if msg, ok := req.(protoreflect.ProtoMessage); ok {
			if jsonReq, err := marshaler.Marshal(msg); err == nil {
				attrs = append(attrs, "request", string(jsonReq))
			}
		}
		resp, err := handler(ctx, req)
		attrs = append(attrs, "code", status.Code(err).String(), "duration", time.Since(start))
		if err != nil {
			log.Warn("rpc failed", append(attrs, "error", err)...)
		} else {
			log.Info("rpc", attrs...)
		}
		return resp, err
	}
}
