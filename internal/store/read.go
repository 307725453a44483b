package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rulecql/internal/compiler"
)

// Compilation is one stored row of compilation history.
type Compilation struct {
	RunID          string
	Seq            int64
	Rule           string
	SourcePath     string
	LibraryName    string
	LibraryVersion string
	Hash           string
	ELM            string // canonical JSON
	Diagnostics    []compiler.Diagnostic
}

const selectCompilation = `
	SELECT run_id, seq, rule_label, source_path, library_name, library_version, hash, elm_json, diagnostics_json
	FROM compilations
`

// Get returns the compilation recorded under runID.
// The boolean is false when no such row exists.
func (s *Store) Get(ctx context.Context, runID string) (Compilation, bool, error) {
	row := s.db.QueryRowContext(ctx, selectCompilation+`WHERE run_id = ?`, runID)
	return scanOne(row)
}

// Latest returns the most recent compilation of a library.
func (s *Store) Latest(ctx context.Context, libraryName string) (Compilation, bool, error) {
	row := s.db.QueryRowContext(ctx, selectCompilation+`
		WHERE library_name = ?
		ORDER BY seq DESC
		LIMIT 1
	`, libraryName)
	return scanOne(row)
}

// List returns up to limit compilations, newest first. A limit of zero or
// less returns every row.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) List(ctx context.Context, limit int) ([]Compilation, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectCompilation+`
		ORDER BY seq DESC, run_id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query compilations: %w", err)
	}
	return scanAll(rows)
}

// FindByHash returns every compilation that produced the given library
// hash, oldest first.
func (s *Store) FindByHash(ctx context.Context, hash string) ([]Compilation, error) {
	rows, err := s.db.QueryContext(ctx, selectCompilation+`
		WHERE hash = ?
		ORDER BY seq ASC, run_id COLLATE BINARY ASC
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("query compilations by hash: %w", err)
	}
	return scanAll(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompilation(sc scanner) (Compilation, error) {
	var c Compilation
	var diagJSON string
	if err := sc.Scan(
		&c.RunID,
		&c.Seq,
		&c.Rule,
		&c.SourcePath,
		&c.LibraryName,
		&c.LibraryVersion,
		&c.Hash,
		&c.ELM,
		&diagJSON,
	); err != nil {
		return Compilation{}, err
	}
	diags, err := unmarshalDiagnostics(diagJSON)
	if err != nil {
		return Compilation{}, fmt.Errorf("compilation %s: %w", c.RunID, err)
	}
	c.Diagnostics = diags
	return c, nil
}

func scanOne(row *sql.Row) (Compilation, bool, error) {
	c, err := scanCompilation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Compilation{}, false, nil
	}
	if err != nil {
		return Compilation{}, false, fmt.Errorf("scan compilation: %w", err)
	}
	return c, true, nil
}

func scanAll(rows *sql.Rows) ([]Compilation, error) {
	defer rows.Close()

	out := []Compilation{}
	for rows.Next() {
		c, err := scanCompilation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compilation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compilations: %w", err)
	}
	return out, nil
}
