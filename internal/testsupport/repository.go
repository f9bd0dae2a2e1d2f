package testsupport

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"aims-api/internal/storage"
)

// NewRepository starts a miniredis server for the lifetime of the test and
// returns a redis repository connected to it alongside the server so tests can
// inspect raw keys or fast-forward expirations.
func NewRepository(t testing.TB, opts ...storage.Option) (*storage.RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	repo, err := storage.NewRedisRepository(context.Background(), "redis://"+server.Addr()+"/0", opts...)
	if err != nil {
		t.Fatalf("NewRedisRepository: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close(context.Background())
	})
	return repo, server
}
