package auth

import (
	"context"

	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

type ctxKey string

const ctxKeySub ctxKey = "sub"

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeySub).(string); ok {
		return s
	}
	return ""
}

// Identity returns the subject and role JWTMiddleware attached.
func Identity(ctx context.Context) (sub, role string) {
	return SubjectFromContext(ctx), rbac.RoleFromContext(ctx)
}
