package store

import (
	"context"
	"fmt"

	"github.com/roach88/rulecql/internal/compiler"
)

// Record appends a compilation result and returns its seq.
// Uses ON CONFLICT(run_id) DO NOTHING for idempotency: recording a run id
// that already exists returns the seq of the existing row.
//
// The library is stored as canonical JSON so the stored text reproduces
// res.Hash.
func (s *Store) Record(ctx context.Context, res *compiler.Result, sourcePath string) (int64, error) {
	if res == nil || res.Library == nil {
		return 0, fmt.Errorf("record compilation: no library")
	}

	elmJSON, err := marshalLibrary(res.Library)
	if err != nil {
		return 0, fmt.Errorf("record compilation: %w", err)
	}
	diagJSON, err := marshalDiagnostics(res.Diagnostics)
	if err != nil {
		return 0, fmt.Errorf("record compilation: %w", err)
	}

	// seq is assigned inside the INSERT so concurrent writers serialize on
	// the single connection and never observe the same MAX(seq).
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compilations
		(run_id, seq, rule_label, source_path, library_name, library_version, hash, elm_json, diagnostics_json)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?, ?
		FROM compilations
		WHERE true
		ON CONFLICT(run_id) DO NOTHING
	`,
		res.RunID,
		res.Rule,
		sourcePath,
		res.Library.Identifier.ID,
		res.Library.Identifier.Version,
		res.Hash,
		elmJSON,
		diagJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("record compilation: %w", err)
	}

	var seq int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM compilations WHERE run_id = ?`, res.RunID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("record compilation: read seq: %w", err)
	}
	return seq, nil
}
