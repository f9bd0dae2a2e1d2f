package datastore

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
)

// MemoryProvisioner starts an in-process redis server on a loopback port.
// Every call returns a new, empty server.
type MemoryProvisioner struct{}

func (MemoryProvisioner) Provision(ctx context.Context) (Ephemeral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	server, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start in-memory redis: %w", err)
	}
	return &memoryServer{server: server}, nil
}

type memoryServer struct {
	server *miniredis.Miniredis
}

func (m *memoryServer) Addr() string {
	return "redis://" + m.server.Addr() + "/0"
}

func (m *memoryServer) Close() error {
	m.server.Close()
	return nil
}
