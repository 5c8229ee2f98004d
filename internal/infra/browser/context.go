package browser

import "context"

type instanceKey struct{}

// WithInstance returns a context carrying the instance on loan to a task.
// The scheduler attaches the instance before invoking an enumerator so the
// plugin contract stays free of infrastructure types.
func WithInstance(ctx context.Context, inst *Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, inst)
}

// InstanceFromContext retrieves the instance attached by WithInstance.
// Browser-based enumerators call this at the top of Run; non-browser
// enumerators ignore it.
func InstanceFromContext(ctx context.Context) (*Instance, bool) {
	inst, ok := ctx.Value(instanceKey{}).(*Instance)
	return inst, ok
}
