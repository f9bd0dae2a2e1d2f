package datastore

import (
	"context"

	"aims-api/internal/storage"
)

// DriverConnector opens repositories through storage.Open, choosing the
// driver from the address scheme.
type DriverConnector struct {
	Options []storage.Option
}

func (c DriverConnector) Connect(ctx context.Context, addr string) (storage.Repository, error) {
	return storage.Open(ctx, addr, c.Options...)
}
