package auth

import "context"

type contextKey struct{}

type holderKey struct{}

// AuthContext is the resolved identity of the caller.
type AuthContext struct {
	UserID    string
	Email     string
	SessionID int64
}

// Holder is placed on the context by an outer middleware so it can see the
// identity resolved further in.
type Holder struct {
	UserID string
}

func WithHolder(ctx context.Context, h *Holder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	if h, ok := ctx.Value(holderKey{}).(*Holder); ok {
		h.UserID = ac.UserID
	}
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the caller's user id, or "" when the request is anonymous.
func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

func SessionID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.SessionID
}
