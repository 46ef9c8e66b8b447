package core

import "context"

// Requester identifies the client that triggered a commit. It is attached by
// the transport layer and copied into the commit audit entry.
type Requester struct {
	IPAddress string
	UserAgent string
}

type requesterKey struct{}

// WithRequester returns a context carrying r.
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

// RequesterFrom returns the requester attached to ctx, or the zero value.
func RequesterFrom(ctx context.Context) Requester {
	r, _ := ctx.Value(requesterKey{}).(Requester)
	return r
}
