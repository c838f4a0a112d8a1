package identity

import "context"

type contextKey string

const (
	identityContextKey contextKey = "identity:identity"
	stateContextKey    contextKey = "identity:state"
)

// WithContext stores the resolved identity in the context.
func WithContext(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, ident)
}

// FromContext retrieves the resolved identity from the context.
func FromContext(ctx context.Context) (*Identity, bool) {
	ident, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || ident == nil {
		return nil, false
	}
	return ident, true
}

// WithStateContext stores a published state snapshot in the context.
func WithStateContext(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, stateContextKey, state)
}

// StateFromContext retrieves a published state snapshot from the context.
func StateFromContext(ctx context.Context) (State, bool) {
	state, ok := ctx.Value(stateContextKey).(State)
	return state, ok
}
