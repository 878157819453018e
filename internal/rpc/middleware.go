package rpc

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracingMiddleware opens a span named after the procedure path around the rest of the chain.
// The span is ended on every exit path, panics included; results and errors pass through untouched.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, call Call, next Next) (any, error) {
		ctx, span := tracer.Start(ctx, call.Path,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("rpc.system", "trpc"),
				attribute.String("rpc.method", call.Path),
				attribute.String("rpc.type", string(call.Kind)),
			),
		)
		defer span.End()

		result, err := next(ctx, call)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return result, err
	}
}

// AuthMiddleware admits calls whose session names a user that still exists, and forwards a
// session narrowed to the user id.
func AuthMiddleware(users UserDirectory, logger *zap.Logger) Middleware {
	return func(ctx context.Context, call Call, next Next) (any, error) {
		if call.Session == nil {
			return nil, Unauthorized()
		}
		userID := strings.TrimSpace(call.Session.UserID)
		if userID == "" {
			return nil, Unauthorized()
		}

		exists, err := users.UserExists(ctx, userID)
		if err != nil {
			logging.WithTrace(ctx, logger).Error("user lookup failed",
				zap.String("path", call.Path),
				zap.String("user_id", userID),
				zap.Error(err))
			return nil, Internal(err)
		}
		if !exists {
			logging.WithTrace(ctx, logger).Info("session user no longer exists",
				zap.String("path", call.Path),
				zap.String("user_id", userID))
			return nil, Unauthorized()
		}

		narrowed := call
		narrowed.Session = &Session{UserID: userID}
		return next(ctx, narrowed)
	}
}
