package account

import (
	"context"

	"github.com/goliatone/go-router"
)

var identityCtxKey = &contextKey{"identity"}
var snapshotCtxKey = &contextKey{"snapshot"}

// LocalsSnapshotKey is where the route guard stores the snapshot on the
// router context.
const LocalsSnapshotKey = "account_snapshot"

type contextKey struct {
	name string
}

// WithIdentity sets the Identity in the given context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*Identity)
	return raw, ok
}

// WithSnapshot sets the session Snapshot in the given context
func WithSnapshot(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, snapshotCtxKey, snap)
}

// SnapshotFromContext finds the session snapshot from the context.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	raw, ok := ctx.Value(snapshotCtxKey).(Snapshot)
	return raw, ok
}

// RouterSnapshot extracts the snapshot the route guard stored on the
// router context.
func RouterSnapshot(c router.Context) (Snapshot, bool) {
	raw := c.Locals(LocalsSnapshotKey)
	if raw == nil {
		return Snapshot{}, false
	}
	snap, ok := raw.(Snapshot)
	return snap, ok
}
