package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/pesio-ai/be-ip-review/internal/api"
)

type actorKey struct{}

// WithActor attaches the caller id that outgoing calls send as x-actor-id.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// forwardMetadata is a gRPC unary client interceptor that propagates
// incoming request metadata to outgoing calls and adds the actor id set by
// WithActor. Without it the caller identity is lost on service-to-service
// hops.
func forwardMetadata(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = metadata.NewOutgoingContext(ctx, md.Copy())
	}
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, api.ActorMetadataKey, id)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}
