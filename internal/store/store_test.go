package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "bd", "bd.db"), Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.InitializeSchema())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitializeSchemaIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InitializeSchema())
	require.NoError(t, s.InitializeSchema())

	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"fakedomain": 0, "realitykey": 0}, counts)
}

func TestLatestOnEmptyStore(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LatestDomainSelection()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LatestPublicKey()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceDomainSelectionReplacesAll(t *testing.T) {
	s := openTestStore(t)

	a := domain.DecoySelection{Reality: "a.com", ShadowTLS: "b.com", Hysteria: "c.com"}
	b := domain.DecoySelection{Reality: "d.com", ShadowTLS: "e.com", Hysteria: "f.com"}

	require.NoError(t, s.ReplaceDomainSelection(a))
	require.NoError(t, s.ReplaceDomainSelection(b))

	got, err := s.LatestDomainSelection()
	require.NoError(t, err)
	assert.Equal(t, b, got.DecoySelection)
	assert.Equal(t, int64(2), got.Version)

	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["fakedomain"], "no trace of the previous selection may remain")
}

func TestReplacePublicKeyReplacesAll(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.ReplacePublicKey("first"))
	require.NoError(t, s.ReplacePublicKey("second"))
	require.NoError(t, s.ReplacePublicKey("third"))

	got, err := s.LatestPublicKey()
	require.NoError(t, err)
	assert.Equal(t, "third", got.Key)
	assert.Equal(t, int64(3), got.Version)

	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["realitykey"])
}

func TestReplaceRejectsInvalidInput(t *testing.T) {
	s := openTestStore(t)

	err := s.ReplaceDomainSelection(domain.DecoySelection{Reality: "a.com", ShadowTLS: "a.com", Hysteria: "c.com"})
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeInvalidInput))

	err = s.ReplacePublicKey("")
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeInvalidInput))
}

func TestReplaceIsAtomicOnInsertFailure(t *testing.T) {
	s := openTestStore(t)

	old := domain.DecoySelection{Reality: "a.com", ShadowTLS: "b.com", Hysteria: "c.com"}
	require.NoError(t, s.ReplaceDomainSelection(old))

	// fail the INSERT after the DELETE already ran inside the transaction
	_, err := s.db.Exec(`
		CREATE TRIGGER reject_boom BEFORE INSERT ON fakedomain
		WHEN NEW.reality = 'boom.com'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END;`)
	require.NoError(t, err)

	err = s.ReplaceDomainSelection(domain.DecoySelection{Reality: "boom.com", ShadowTLS: "e.com", Hysteria: "f.com"})
	require.Error(t, err)
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeStorageUnavailable))

	got, err := s.LatestDomainSelection()
	require.NoError(t, err)
	assert.Equal(t, old, got.DecoySelection)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "bd.db"), Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.InitializeSchema())
	require.NoError(t, s.Close())

	_, err = s.LatestDomainSelection()
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeStorageUnavailable))

	err = s.ReplacePublicKey("k")
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeStorageUnavailable))

	assert.Error(t, s.Ping())
}

func TestUninitializedStoreIsUnavailable(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "bd.db"), Options{}, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.LatestDomainSelection()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound, "a missing table must not look like an empty store")
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeStorageUnavailable))
}

func TestReadOnlyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bd.db")

	_, err := Open(path, Options{ReadOnly: true}, nil)
	require.Error(t, err, "read-only open must not create the database")
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeStorageUnavailable))

	rw, err := Open(path, Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, rw.InitializeSchema())
	sel := domain.DecoySelection{Reality: "a.com", ShadowTLS: "b.com", Hysteria: "c.com"}
	require.NoError(t, rw.ReplaceDomainSelection(sel))
	require.NoError(t, rw.Close())

	ro, err := Open(path, Options{ReadOnly: true}, nil)
	require.NoError(t, err)
	defer ro.Close()

	got, err := ro.LatestDomainSelection()
	require.NoError(t, err)
	assert.Equal(t, sel, got.DecoySelection)

	assert.Error(t, ro.ReplacePublicKey("k"))
}

func TestMigratesLegacyTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bd.db")

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE fakedomain (reality TEXT, shadowtls TEXT, hysteria TEXT);
		CREATE TABLE realitykey (key TEXT);
		INSERT INTO fakedomain (reality, shadowtls, hysteria) VALUES ('x.com', 'y.com', 'z.com');
		INSERT INTO realitykey (key) VALUES ('legacy-key');`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := Open(path, Options{}, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.InitializeSchema())

	got, err := s.LatestDomainSelection()
	require.NoError(t, err)
	assert.Equal(t, "x.com", got.Reality)
	assert.Equal(t, int64(0), got.Version)

	key, err := s.LatestPublicKey()
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", key.Key)

	require.NoError(t, s.ReplacePublicKey("fresh"))
	key, err = s.LatestPublicKey()
	require.NoError(t, err)
	assert.Equal(t, "fresh", key.Key)
	assert.Equal(t, int64(1), key.Version)
}

func TestIncompleteLegacyRowsAreUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bd.db")

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE fakedomain (reality TEXT, shadowtls TEXT, hysteria TEXT);
		CREATE TABLE realitykey (key TEXT);
		INSERT INTO fakedomain (reality, shadowtls, hysteria) VALUES ('x.com', NULL, 'z.com');
		INSERT INTO realitykey (key) VALUES (NULL);`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := Open(path, Options{}, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.InitializeSchema())

	sel, err := s.LatestDomainSelection()
	require.Error(t, err)
	assert.Nil(t, sel)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeStorageUnavailable))

	key, err := s.LatestPublicKey()
	require.Error(t, err)
	assert.Nil(t, key)
	assert.True(t, rerrors.IsCode(err, rerrors.ErrCodeStorageUnavailable))

	// a fresh write replaces the broken rows
	require.NoError(t, s.ReplacePublicKey("fresh"))
	key, err = s.LatestPublicKey()
	require.NoError(t, err)
	assert.Equal(t, "fresh", key.Key)
}
