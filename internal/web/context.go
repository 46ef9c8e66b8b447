package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/RosterImport/internal/core"
)

// WithRequestMetadata attaches the client IP and User-Agent for the commit audit.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithRequester(ctx, core.Requester{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
}
