package pid_test

import (
	"os"
	"strconv"
	"testing"

	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	f, err := pid.Acquire(dir)
	require.NoError(t, err)
	assert.Equal(t, pid.Path(dir), f.Path())

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, f.Release())
	_, err = os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err))

	// Releasing twice is harmless
	assert.NoError(t, f.Release())
}

func TestAcquireRejectsLiveHolder(t *testing.T) {
	dir := t.TempDir()

	// The parent of the test binary is alive for the duration of the test
	require.NoError(t, os.WriteFile(pid.Path(dir), []byte(strconv.Itoa(os.Getppid())), 0o600))

	_, err := pid.Acquire(dir)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(pid.Path(dir), []byte("not-a-pid\n"), 0o600))

	f, err := pid.Acquire(dir)
	require.NoError(t, err)
	defer f.Release()

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestPathDefaultsToTempDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	assert.Equal(t, pid.Path(dir), pid.Path(""))
}
