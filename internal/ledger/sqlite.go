package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// sqliteSchemaVersion is written to PRAGMA user_version after the schema is applied.
const sqliteSchemaVersion = 1

var ErrSQLitePath = errors.New("sqlite ledger path is required")

const (
	selectEntrySQL = `SELECT response, expires_at FROM idempotency_entries WHERE request_id = ?`

	// An existing row is only replaced once it has expired.
	insertEntrySQL = `INSERT INTO idempotency_entries (request_id, response, created_at, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(request_id) DO UPDATE SET
    response = excluded.response,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at
WHERE idempotency_entries.expires_at IS NOT NULL AND idempotency_entries.expires_at <= ?`

	deleteExpiredSQL = `DELETE FROM idempotency_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`
)

// SQLiteLedger persists entries in a local SQLite file so completed payments
// survive a restart of a single instance. Claims are held in process, like
// MemoryLedger; use the redis backend when several instances share traffic.
type SQLiteLedger struct {
	db   *sql.DB
	opts Options
	now  func() time.Time

	claims  *claimSet
	janitor *janitor
}

var _ Ledger = (*SQLiteLedger)(nil)

// OpenSQLiteLedger opens or creates the database at path and applies the schema.
func OpenSQLiteLedger(ctx context.Context, path string, opts Options) (*SQLiteLedger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrSQLitePath
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSQLite(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	s := &SQLiteLedger{
		db:   db,
		opts: opts.normalized(),
		now:  time.Now,
	}

	s.claims = newClaimSet(s.opts.ClaimTimeout)
	s.janitor = newJanitor(s.opts.SweepInterval, s.sweep)

	return s, nil
}

func initSQLite(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect sqlite ledger: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read sqlite schema version: %w", err)
	}

	if version >= sqliteSchemaVersion {
		return nil
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("write sqlite schema version: %w", err)
	}

	return nil
}

func (s *SQLiteLedger) Lookup(ctx context.Context, requestID string) ([]byte, bool, error) {
	if isBlank(requestID) {
		return nil, false, nil
	}

	var (
		response  []byte
		expiresAt sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx, selectEntrySQL, requestID).Scan(&response, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency entry: %w", err)
	}

	if expiresAt.Valid && !s.now().Before(time.Unix(0, expiresAt.Int64)) {
		return nil, false, nil
	}

	return response, true, nil
}

func (s *SQLiteLedger) Store(ctx context.Context, requestID string, payload []byte) error {
	if isBlank(requestID) {
		return nil
	}

	now := s.now()

	var expiresAt sql.NullInt64
	if s.opts.TTL > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(s.opts.TTL).UnixNano(), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, insertEntrySQL, requestID, payload, now.UnixNano(), expiresAt, now.UnixNano()); err != nil {
		return fmt.Errorf("store idempotency entry: %w", err)
	}

	return nil
}

// Claim blocks while another caller in this process holds requestID, up to
// the claim timeout.
func (s *SQLiteLedger) Claim(ctx context.Context, requestID string) (Release, error) {
	return s.claims.claim(ctx, requestID)
}

func (s *SQLiteLedger) sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredSQL, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count expired idempotency entries: %w", err)
	}

	return int(n), nil
}

// Start launches the janitor. It returns immediately; later calls are no-ops.
func (s *SQLiteLedger) Start(ctx context.Context) {
	s.janitor.start(commons.NewLoggerFromContext(ctx))
}

func (s *SQLiteLedger) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the janitor and closes the database.
func (s *SQLiteLedger) Close(context.Context) error {
	s.janitor.close()

	return s.db.Close()
}
