package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage.json")
	l, err := OpenLedger(path)
	require.NoError(t, err)
	return l, path
}

func TestLedgerDefaultsToZero(t *testing.T) {
	l, _ := newTestLedger(t)
	assert.Equal(t, 0, l.Count("100"))
}

func TestLedgerAccumulates(t *testing.T) {
	l, _ := newTestLedger(t)

	require.NoError(t, l.Add("100", 4))
	require.NoError(t, l.Add("100", 2))
	require.NoError(t, l.Add("200", 1))

	assert.Equal(t, 6, l.Count("100"))
	assert.Equal(t, 1, l.Count("200"))
}

func TestLedgerRejectsNegativeDelta(t *testing.T) {
	l, _ := newTestLedger(t)
	assert.Error(t, l.Add("100", -1))
	assert.Equal(t, 0, l.Count("100"))
}

func TestLedgerZeroDeltaIsNoop(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Add("100", 0))
	assert.Equal(t, 0, l.Count("100"))
}

func TestLedgerSurvivesReload(t *testing.T) {
	l, path := newTestLedger(t)
	require.NoError(t, l.Add("100", 5))

	reloaded, err := OpenLedger(path)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Count("100"))
}

func TestLedgerMalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	l, err := OpenLedger(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Count("100"))
}
