// Package refcache provides a DuckDB-backed persistence layer for the
// Reference Index, so a large reference FASTA need not be
// re-parsed on every run against the same reference.
package refcache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/ikmb/vcf2prot/internal/reference"
)

// Store manages a DuckDB connection caching reference protein sequences.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path. Use an empty
// string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS reference_sequences (
		transcript_id VARCHAR PRIMARY KEY,
		sequence VARCHAR,
		transcript_order BIGINT
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS reference_source (
		fasta_path VARCHAR PRIMARY KEY,
		fasta_size BIGINT,
		fasta_modtime VARCHAR
	)`)
	return err
}

// WriteIndex persists every transcript in idx, replacing whatever was
// cached before, and records fp so a later Valid call can detect a stale
// cache.
func (s *Store) WriteIndex(idx *reference.Index, fp FileFingerprint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reference cache write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reference_sequences`); err != nil {
		return fmt.Errorf("clear reference cache: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO reference_sequences (transcript_id, sequence, transcript_order) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare reference cache insert: %w", err)
	}
	defer stmt.Close()

	for i, id := range idx.TranscriptIDs() {
		seq, _ := idx.Sequence(id)
		if _, err := stmt.Exec(id, seq, i); err != nil {
			return fmt.Errorf("insert reference sequence %q: %w", id, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM reference_source`); err != nil {
		return fmt.Errorf("clear reference source metadata: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO reference_source (fasta_path, fasta_size, fasta_modtime) VALUES (?, ?, ?)`,
		fp.Path, fp.Size, fp.ModTime.UTC().Format(fingerprintTimeLayout)); err != nil {
		return fmt.Errorf("write reference source metadata: %w", err)
	}

	return tx.Commit()
}

// Valid reports whether the cached reference sequences were built from a
// FASTA file matching fp.
func (s *Store) Valid(fp FileFingerprint) bool {
	var path, modtime string
	var size int64
	row := s.db.QueryRow(`SELECT fasta_path, fasta_size, fasta_modtime FROM reference_source LIMIT 1`)
	if err := row.Scan(&path, &size, &modtime); err != nil {
		return false
	}
	return path == fp.Path && size == fp.Size && modtime == fp.ModTime.UTC().Format(fingerprintTimeLayout)
}

// ReadIndex rebuilds a reference.Index from the cache, in the transcript
// order recorded at write time.
func (s *Store) ReadIndex() (*reference.Index, error) {
	rows, err := s.db.Query(`SELECT transcript_id, sequence FROM reference_sequences ORDER BY transcript_order`)
	if err != nil {
		return nil, fmt.Errorf("query reference cache: %w", err)
	}
	defer rows.Close()

	var records []reference.Record
	for rows.Next() {
		var id, seq string
		if err := rows.Scan(&id, &seq); err != nil {
			return nil, fmt.Errorf("scan reference cache row: %w", err)
		}
		records = append(records, reference.Record{ID: id, Sequence: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference cache: %w", err)
	}
	return reference.FromRecords(records)
}
