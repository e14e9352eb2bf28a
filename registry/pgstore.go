package registry

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// migrationsFS embeds the PostgreSQL schema.
//
//go:embed sql/*.sql
var migrationsFS embed.FS

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// PgStore is a Store backed by PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ Store = (*PgStore)(nil)

// NewPgStore connects to dsn, verifies the connection and applies the schema.
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("registry: connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("registry: ping postgres: %w", err)
	}

	s := &PgStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies all embedded SQL files in lexical order. The files are
// idempotent.
func (s *PgStore) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return fmt.Errorf("registry: read embedded migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(migrationsFS, "sql/"+file)
		if err != nil {
			return fmt.Errorf("registry: read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("registry: apply migration %s: %w", file, err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKeyError checks if err is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// Record registers instance and appends it to every distinct participant's
// list inside one database transaction.
func (s *PgStore) Record(ctx context.Context, instance ledger.Address, participants []ledger.Address) error {
	return s.RecordBatch(ctx, []Entry{{Instance: instance, Participants: participants}})
}

// RecordBatch writes all entries inside one database transaction. Indexes
// come from split_participant_counts, whose upsert locks the participant row
// until commit, so concurrent writers sharing the database never pick the
// same index.
func (s *PgStore) RecordBatch(ctx context.Context, entries []Entry) error {
	batch, err := checkBatch(entries)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range batch {
		instance := e.Instance
		if _, err := tx.Exec(ctx, `INSERT INTO split_instances (address) VALUES ($1)`, instance[:]); err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateInstance
			}
			return fmt.Errorf("insert instance: %w", err)
		}

		for _, p := range e.Participants {
			var idx int64
			err := tx.QueryRow(ctx, `
				INSERT INTO split_participant_counts (participant, count) VALUES ($1, 1)
				ON CONFLICT (participant) DO UPDATE SET count = split_participant_counts.count + 1
				RETURNING count - 1
			`, p[:]).Scan(&idx)
			if err != nil {
				return fmt.Errorf("reserve participant index: %w", err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO split_participants (participant, idx, instance) VALUES ($1, $2, $3)`,
				p[:], idx, instance[:]); err != nil {
				return fmt.Errorf("insert participant entry: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsInstance reports whether addr was recorded.
func (s *PgStore) IsInstance(ctx context.Context, addr ledger.Address) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM split_instances WHERE address = $1)`, addr[:]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query instance: %w", err)
	}
	return exists, nil
}

// Count returns the number of instances recorded for participant.
func (s *PgStore) Count(ctx context.Context, participant ledger.Address) (uint64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT count FROM split_participant_counts WHERE participant = $1), 0)`,
		participant[:]).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participant entries: %w", err)
	}
	return uint64(n), nil
}

// At returns the index-th instance of participant.
func (s *PgStore) At(ctx context.Context, participant ledger.Address, index uint64) (ledger.Address, error) {
	if index > uint64(1<<63-1) {
		return ledger.ZeroAddress, fmt.Errorf("%w: index %d", ErrIndexOutOfRange, index)
	}

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT instance FROM split_participants WHERE participant = $1 AND idx = $2`,
		participant[:], int64(index)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		n, cerr := s.Count(ctx, participant)
		if cerr != nil {
			return ledger.ZeroAddress, cerr
		}
		return ledger.ZeroAddress, outOfRange(participant, index, n)
	}
	if err != nil {
		return ledger.ZeroAddress, fmt.Errorf("get participant entry: %w", err)
	}
	return decodeAddress(raw)
}

// List returns participant's instances in insertion order.
func (s *PgStore) List(ctx context.Context, participant ledger.Address) ([]ledger.Address, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT instance FROM split_participants WHERE participant = $1 ORDER BY idx ASC`, participant[:])
	if err != nil {
		return nil, fmt.Errorf("list participant entries: %w", err)
	}
	defer rows.Close()

	out := []ledger.Address{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan participant entry: %w", err)
		}
		a, err := decodeAddress(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participant entries: %w", err)
	}
	return out, nil
}
