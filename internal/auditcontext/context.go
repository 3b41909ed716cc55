package auditcontext

import (
	"context"
	"strings"
)

type metadataKey struct{}

// Metadata is the request-scoped information stamped onto audit records.
type Metadata struct {
	ActorType string
	ActorID   string
	RequestID string
	IPAddress string
	UserAgent string
}

func FromContext(ctx context.Context) Metadata {
	if ctx == nil {
		return Metadata{}
	}
	md, _ := ctx.Value(metadataKey{}).(Metadata)
	return md
}

func with(ctx context.Context, update func(*Metadata)) context.Context {
	md := FromContext(ctx)
	update(&md)
	return context.WithValue(ctx, metadataKey{}, md)
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return with(ctx, func(md *Metadata) {
		md.ActorType = strings.TrimSpace(actorType)
		md.ActorID = strings.TrimSpace(actorID)
	})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, func(md *Metadata) { md.RequestID = strings.TrimSpace(requestID) })
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return with(ctx, func(md *Metadata) { md.IPAddress = strings.TrimSpace(ip) })
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return with(ctx, func(md *Metadata) { md.UserAgent = strings.TrimSpace(userAgent) })
}
