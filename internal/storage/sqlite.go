package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/landchain/internal/certificate"
	"github.com/starford/landchain/internal/ledger"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ledger_records (
	position            INTEGER PRIMARY KEY,
	registration_number TEXT NOT NULL,
	national_id         TEXT NOT NULL,
	block_hash          TEXT NOT NULL,
	body                TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS certificates (
	position            INTEGER PRIMARY KEY,
	registration_number TEXT NOT NULL UNIQUE,
	certificate_id      TEXT NOT NULL,
	body                TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_registration ON ledger_records(registration_number);
CREATE INDEX IF NOT EXISTS idx_ledger_national_id ON ledger_records(national_id);
`

const (
	counterLedger       = "ledger"
	counterCertificates = "certificates"
)

// SQLite stores snapshots in a SQLite database. Rows are keyed by position;
// a save only writes the rows past the durable head unless the head differs.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("storage: sqlite backend requires a path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: mkdir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) LoadLedger(ctx context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	seq, err := s.counter(ctx, counterLedger)
	if err != nil {
		return snap, err
	}
	snap.Sequence = seq

	rows, err := s.conn.QueryContext(ctx, `SELECT body FROM ledger_records ORDER BY position`)
	if err != nil {
		return snap, fmt.Errorf("storage: query ledger: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return snap, fmt.Errorf("storage: scan ledger: %w", err)
		}
		var rec ledger.PropertyRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return snap, fmt.Errorf("storage: decode record: %w", err)
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, rows.Err()
}

func (s *SQLite) SaveLedger(ctx context.Context, snap ledger.Snapshot) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	from, err := syncStart(ctx, tx, "ledger_records", "block_hash", len(snap.Records), func(i int) string {
		return snap.Records[i].BlockHash
	})
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO ledger_records (position, registration_number, national_id, block_hash, body)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare record insert: %w", err)
	}
	defer stmt.Close()
	for i := from; i < len(snap.Records); i++ {
		r := snap.Records[i]
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("storage: encode record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, r.RegistrationNumber, r.OwnerNationalID, r.BlockHash, string(body)); err != nil {
			return fmt.Errorf("storage: insert record %s: %w", r.RegistrationNumber, err)
		}
	}
	if err := setCounter(ctx, tx, counterLedger, snap.Sequence); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) LoadCertificates(ctx context.Context) (certificate.Snapshot, error) {
	var snap certificate.Snapshot
	seq, err := s.counter(ctx, counterCertificates)
	if err != nil {
		return snap, err
	}
	snap.Sequence = seq

	rows, err := s.conn.QueryContext(ctx, `SELECT body FROM certificates ORDER BY position`)
	if err != nil {
		return snap, fmt.Errorf("storage: query certificates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return snap, fmt.Errorf("storage: scan certificate: %w", err)
		}
		var c certificate.Certificate
		if err := json.Unmarshal([]byte(body), &c); err != nil {
			return snap, fmt.Errorf("storage: decode certificate: %w", err)
		}
		snap.Certificates = append(snap.Certificates, c)
	}
	return snap, rows.Err()
}

func (s *SQLite) SaveCertificates(ctx context.Context, snap certificate.Snapshot) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	from, err := syncStart(ctx, tx, "certificates", "certificate_id", len(snap.Certificates), func(i int) string {
		return snap.Certificates[i].CertificateID
	})
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO certificates (position, registration_number, certificate_id, body)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare certificate insert: %w", err)
	}
	defer stmt.Close()
	for i := from; i < len(snap.Certificates); i++ {
		c := snap.Certificates[i]
		body, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("storage: encode certificate: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, c.RegistrationNumber, c.CertificateID, string(body)); err != nil {
			return fmt.Errorf("storage: insert certificate %s: %w", c.CertificateID, err)
		}
	}
	if err := setCounter(ctx, tx, counterCertificates, snap.Sequence); err != nil {
		return err
	}
	return tx.Commit()
}

// syncStart returns the first position that must be written for a snapshot
// of size n. Rows at or past n are dropped. If the stored row just before
// the durable head disagrees with the snapshot the table is rewritten.
func syncStart(ctx context.Context, tx *sql.Tx, table, keyCol string, n int, key func(int) string) (int, error) {
	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&stored); err != nil {
		return 0, fmt.Errorf("storage: count %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE position >= ?`, n); err != nil {
		return 0, fmt.Errorf("storage: trim %s: %w", table, err)
	}
	from := min(stored, n)
	if from == 0 {
		return 0, nil
	}
	var got string
	err := tx.QueryRowContext(ctx, `SELECT `+keyCol+` FROM `+table+` WHERE position = ?`, from-1).Scan(&got)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("storage: read %s head: %w", table, err)
	}
	if got == key(from-1) {
		return from, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return 0, fmt.Errorf("storage: reset %s: %w", table, err)
	}
	return 0, nil
}

func (s *SQLite) counter(ctx context.Context, name string) (uint64, error) {
	var v int64
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: read counter %s: %w", name, err)
	}
	return uint64(v), nil
}

func setCounter(ctx context.Context, tx *sql.Tx, name string, v uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, int64(v))
	if err != nil {
		return fmt.Errorf("storage: write counter %s: %w", name, err)
	}
	return nil
}
