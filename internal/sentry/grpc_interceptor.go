package sentry

import (
	"context"

	"github.com/getsentry/sentry-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor returns a gRPC unary server interceptor that captures errors.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		hub := sentry.CurrentHub().Clone()
		ctx = sentry.SetHubOnContext(ctx, hub)

		hub.Scope().SetTag("grpc.method", info.FullMethod)

		defer func() {
			if recovered := recover(); recovered != nil {
				hub.RecoverWithContext(ctx, recovered)
				resp = nil
				err = status.Error(codes.Internal, "internal server error")
			}
		}()

		resp, err = handler(ctx, req)
		if shouldCaptureGRPCError(err) {
			hub.CaptureException(err)
		}

		return resp, err
	}
}

// shouldCaptureGRPCError reports only unexpected failures. Client errors
// such as NotFound or InvalidArgument are not captured.
func shouldCaptureGRPCError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return true
	}

	switch st.Code() {
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return true
	default:
		return false
	}
}
