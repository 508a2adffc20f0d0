package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivmel/modelbooth-bot/internal/models"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	r, err := OpenRegistry(path)
	require.NoError(t, err)
	return r, path
}

func TestEnsurePendingCreatesOnce(t *testing.T) {
	r, _ := newTestRegistry(t)

	created, err := r.EnsurePending("100", "@alice")
	require.NoError(t, err)
	assert.True(t, created)

	status, ok := r.Status("100")
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, status)

	created, err = r.EnsurePending("100", "@alice")
	require.NoError(t, err)
	assert.False(t, created, "second call must be a no-op")
}

func TestEnsurePendingDoesNotTouchExistingStatus(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.EnsurePending("100", "@alice")
	require.NoError(t, err)
	require.NoError(t, r.SetStatus("100", models.StatusApproved))

	_, err = r.EnsurePending("100", "@alice")
	require.NoError(t, err)

	status, ok := r.Status("100")
	require.True(t, ok)
	assert.Equal(t, models.StatusApproved, status)
}

func TestSetStatusCreatesAbsentRecord(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.NoError(t, r.SetStatus("200", models.StatusDenied))

	status, ok := r.Status("200")
	require.True(t, ok)
	assert.Equal(t, models.StatusDenied, status)
}

func TestSetStatusPreservesRequestedAt(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.EnsurePending("100", "@alice")
	require.NoError(t, err)
	pending := r.ListByStatus(models.StatusPending)
	require.Len(t, pending, 1)
	requestedAt := pending[0].RequestedAt

	require.NoError(t, r.SetStatus("100", models.StatusApproved))
	approved := r.ListByStatus(models.StatusApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, requestedAt, approved[0].RequestedAt)
}

func TestStatusAbsent(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, ok := r.Status("nobody")
	assert.False(t, ok)
}

func TestListByStatusOrdered(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, id := range []string{"30", "10", "20"} {
		_, err := r.EnsurePending(id, "")
		require.NoError(t, err)
	}
	require.NoError(t, r.SetStatus("20", models.StatusApproved))

	pending := r.ListByStatus(models.StatusPending)
	require.Len(t, pending, 2)
	assert.Equal(t, "10", pending[0].ID)
	assert.Equal(t, "30", pending[1].ID)
}

func TestRegistrySurvivesReload(t *testing.T) {
	r, path := newTestRegistry(t)

	_, err := r.EnsurePending("100", "@alice")
	require.NoError(t, err)
	require.NoError(t, r.SetStatus("100", models.StatusApproved))

	reloaded, err := OpenRegistry(path)
	require.NoError(t, err)
	status, ok := reloaded.Status("100")
	require.True(t, ok)
	assert.Equal(t, models.StatusApproved, status)
}

func TestRegistryMalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	r, err := OpenRegistry(path)
	require.NoError(t, err)
	assert.Empty(t, r.ListByStatus(models.StatusPending))
}
