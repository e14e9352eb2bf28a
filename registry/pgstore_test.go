package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// setupPostgres starts a PostgreSQL container and returns its DSN.
func setupPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")
	return dsn
}

func TestPgStore(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	runStoreTests(t, func(t *testing.T) Store {
		s, err := NewPgStore(ctx, dsn)
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, `TRUNCATE split_participants, split_instances, split_participant_counts`)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestPgStore_MigrateIdempotent(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	s, err := NewPgStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
}

func TestNewPgStore_BadDSN(t *testing.T) {
	_, err := NewPgStore(context.Background(), "postgres://%zz")
	require.Error(t, err)
}

func TestPgStore_ConcurrentWritersShareIndexSpace(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	a, err := NewPgStore(ctx, dsn)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewPgStore(ctx, dsn)
	require.NoError(t, err)
	defer b.Close()

	_, err = a.pool.Exec(ctx, `TRUNCATE split_participants, split_instances, split_participant_counts`)
	require.NoError(t, err)

	const perWriter = 20
	p := makeAddr(0x42)

	var wg sync.WaitGroup
	errs := make(chan error, 2*perWriter)
	for w, s := range []*PgStore{a, b} {
		wg.Add(1)
		go func(w int, s *PgStore) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				var inst ledger.Address
				inst[0] = byte(w + 1)
				inst[1] = byte(i + 1)
				errs <- s.Record(ctx, inst, []ledger.Address{p})
			}
		}(w, s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := a.Count(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*perWriter), n)

	list, err := b.List(ctx, p)
	require.NoError(t, err)
	assert.Len(t, list, 2*perWriter)
	for i := uint64(0); i < n; i++ {
		got, err := a.At(ctx, p, i)
		require.NoError(t, err)
		assert.Equal(t, list[i], got)
	}
}
