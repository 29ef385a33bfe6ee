package trace

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor injects trace context into outgoing gRPC calls and
// logs failed calls with their trace IDs.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = injectMetadata(ctx)
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "inference call failed",
				slog.String("method", method),
				slog.String("code", status.Code(err).String()),
				slog.Duration("elapsed", time.Since(start)),
			)
		}
		return err
	}
}

// injectMetadata adds trace context to outgoing gRPC metadata.
func injectMetadata(ctx context.Context) context.Context {
	ctx, ids := ensure(ctx)

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}

	md.Set(TraceIDKey, ids.TraceID)
	md.Set(SpanIDKey, ids.SpanID)
	if ids.ParentSpanID != "" {
		md.Set(ParentSpanIDKey, ids.ParentSpanID)
	}

	return metadata.NewOutgoingContext(ctx, md)
}
