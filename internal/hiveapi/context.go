package hiveapi

import "context"

func contextWithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDKey{}, nodeID)
}

func nodeIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(nodeIDKey{}).(string)
	return id, ok && id != ""
}
