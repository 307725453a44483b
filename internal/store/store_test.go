package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecql/internal/compiler"
	"github.com/roach88/rulecql/internal/elm"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testResult builds a minimal compilation result for library name.
func testResult(t *testing.T, runID, name string, value bool) *compiler.Result {
	t.Helper()
	v := "false"
	if value {
		v = "true"
	}
	lib := &elm.Library{
		Identifier: elm.VersionedIdentifier{ID: name, Version: "1.0.0"},
		Contexts:   []string{"Patient"},
		Statements: []elm.ExpressionDef{{
			Name:       "MeetsCriteria",
			Context:    "Patient",
			Expression: &elm.Literal{ValueType: elm.SystemType("Boolean"), Value: v},
		}},
	}
	hash, err := elm.LibraryHash(lib)
	require.NoError(t, err)
	return &compiler.Result{RunID: runID, Rule: name + " rule", Library: lib, Hash: hash}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

// pragma reads the current value of a SQLite pragma.
func pragma(t *testing.T, s *Store, name string) string {
	t.Helper()
	var value string
	require.NoError(t, s.db.QueryRow("PRAGMA "+name).Scan(&value))
	return value
}

func TestOpen_ConnectionSettings(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, "wal", pragma(t, s, "journal_mode"))
	assert.Equal(t, "1", pragma(t, s, "synchronous"))
	assert.Equal(t, "5000", pragma(t, s, "busy_timeout"))
	assert.Equal(t, "1", pragma(t, s, "user_version"))
}

func TestOpen_HashIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_compilations_hash'`,
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_compilations_hash", name)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 2")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version 2 is newer")
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestRecord_AssignsSequentialSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq1, err := s.Record(ctx, testResult(t, "run-1", "A", true), "a.yaml")
	require.NoError(t, err)
	seq2, err := s.Record(ctx, testResult(t, "run-2", "B", true), "b.yaml")
	require.NoError(t, err)

	assert.Equal(t, int64(1), seq1)
	assert.Equal(t, int64(2), seq2)
}

func TestRecord_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := testResult(t, "run-1", "A", true)

	seq1, err := s.Record(ctx, res, "")
	require.NoError(t, err)
	seq2, err := s.Record(ctx, res, "")
	require.NoError(t, err)
	assert.Equal(t, seq1, seq2)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecord_NoLibrary(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Record(context.Background(), &compiler.Result{RunID: "x"}, "")
	assert.Error(t, err)
	_, err = s.Record(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestRecord_StoredJSONReproducesHash(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := testResult(t, "run-1", "A", true)

	_, err := s.Record(ctx, res, "a.yaml")
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)

	canonical, err := elm.MarshalCanonical(res.Library)
	require.NoError(t, err)
	assert.Equal(t, string(canonical), got.ELM)
	assert.Equal(t, res.Hash, got.Hash)
	assert.Equal(t, "A", got.LibraryName)
	assert.Equal(t, "1.0.0", got.LibraryVersion)
	assert.Equal(t, "A rule", got.Rule)
	assert.Equal(t, "a.yaml", got.SourcePath)
}

func TestRecord_DiagnosticsRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := testResult(t, "run-1", "A", true)
	res.Diagnostics = []compiler.Diagnostic{
		{Code: compiler.DiagUnmappedValueSet, Message: "no mapping for Diabetes", Predicate: "p1"},
		{Code: compiler.DiagReferenceShortfall, Message: "expected 2 references, found 1", Scope: "g1"},
	}

	_, err := s.Record(ctx, res, "")
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Diagnostics, got.Diagnostics)
}

func TestGet_Missing(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, r := range []*compiler.Result{
		testResult(t, "run-1", "A", true),
		testResult(t, "run-2", "B", true),
		testResult(t, "run-3", "A", false),
	} {
		_, err := s.Record(ctx, r, "")
		require.NoError(t, err)
	}

	got, ok, err := s.Latest(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-3", got.RunID)
	assert.Equal(t, int64(3), got.Seq)

	_, ok, err = s.Latest(ctx, "C")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		_, err := s.Record(ctx, testResult(t, id, "A", true), "")
		require.NoError(t, err)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-3", all[0].RunID)
	assert.Equal(t, "run-1", all[2].RunID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "run-2", limited[1].RunID)
}

func TestList_EmptyStoreReturnsEmptySlice(t *testing.T) {
	s := createTestStore(t)

	all, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestFindByHash(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := testResult(t, "run-1", "A", true)
	again := testResult(t, "run-2", "A", true)
	other := testResult(t, "run-3", "A", false)
	require.Equal(t, first.Hash, again.Hash)
	require.NotEqual(t, first.Hash, other.Hash)

	for _, r := range []*compiler.Result{first, again, other} {
		_, err := s.Record(ctx, r, "")
		require.NoError(t, err)
	}

	got, err := s.FindByHash(ctx, first.Hash)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "run-2", got[1].RunID)
}
