// Package requestcontext provides HTTP-independent context accessors for
// request- and sweep-scoped values.
//
// Middleware sets values, services read them:
//
//	ctx = requestcontext.WithUserID(ctx, caller)
//	caller := requestcontext.UserID(ctx)
//
// Workers and tests pin logical time so a whole batch sees one "now":
//
//	ctx = requestcontext.WithTime(ctx, sweepTime)
package requestcontext

import (
	"context"
	"time"

	id "certflow/pkg/domain"
)

type (
	userIDKey      struct{}
	requestIDKey   struct{}
	sweepIDKey     struct{}
	requestTimeKey struct{}
)

// UserID returns the authenticated caller, or the nil ID when unset.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(userIDKey{}).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// ActorID names who caused an action for audit records: the caller, or
// "system" for scheduled work.
func ActorID(ctx context.Context) string {
	if userID := UserID(ctx); !userID.IsNil() {
		return userID.String()
	}
	return "system"
}

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// SweepID identifies the scheduler sweep a call belongs to.
func SweepID(ctx context.Context) string {
	if sweepID, ok := ctx.Value(sweepIDKey{}).(string); ok {
		return sweepID
	}
	return ""
}

func WithSweepID(ctx context.Context, sweepID string) context.Context {
	return context.WithValue(ctx, sweepIDKey{}, sweepID)
}

// Now returns the pinned logical time, falling back to time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// CorrelationAttrs returns slog key/value pairs for whatever correlation ids
// the context carries.
func CorrelationAttrs(ctx context.Context) []any {
	var attrs []any
	if reqID := RequestID(ctx); reqID != "" {
		attrs = append(attrs, "request_id", reqID)
	}
	if sweepID := SweepID(ctx); sweepID != "" {
		attrs = append(attrs, "sweep_id", sweepID)
	}
	return attrs
}
