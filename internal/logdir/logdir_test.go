package logdir

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	d, err := Open(root, false)
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(root, ".meta", "registry"))
	require.DirExists(t, d.ModelsDir())

	again, err := Open(root, true)
	require.NoError(t, err)
	require.Equal(t, root, again.Root())
}

func TestOpenRejects(t *testing.T) {
	t.Run("missing with mustExist", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "none"), true)
		require.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("plain directory", func(t *testing.T) {
		_, err := Open(t.TempDir(), false)
		require.ErrorIs(t, err, ErrNotLogDir)
	})
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		_, err := Open(path, false)
		require.Error(t, err)
	})
}

func TestRegisterUnique(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "out"), false)
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := d.Registry.Register("1700000000")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.Equal(t, []string{"1700000000", "1700000000-0", "1700000000-1"}, ids)
	require.True(t, d.Registry.Has("1700000000-1"))
	require.False(t, d.Registry.Has("1700000000-2"))

	sessions, err := d.Registry.Sessions()
	require.NoError(t, err)
	require.Equal(t, []string{"1700000000", "1700000000-0", "1700000000-1"}, sessions)
	n, err := d.Registry.Count()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, err = d.Registry.Register("../escape")
	require.Error(t, err)
}

func TestSessionLogs(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "out"), false)
	require.NoError(t, err)
	_, err = d.TaskDir("capture")
	require.NoError(t, err)
	for _, v := range []string{"felix", "evan"} {
		require.NoError(t, os.MkdirAll(d.VehicleLogDir("capture", "s1", v), 0o755))
	}
	require.NoError(t, os.MkdirAll(d.VehicleLogDir("capture", "s2", "felix"), 0o755))

	logs, err := d.SessionLogs("s1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, filepath.Join(d.Root(), "capture", "s1", "log_felix"), logs["felix"])

	_, err = d.TaskDir("../x")
	require.Error(t, err)
}

func TestNewSessionID(t *testing.T) {
	now := time.Unix(1700000000, 0)
	require.Equal(t, "1700000000", NewSessionID(now, ""))
	require.Equal(t, "1700000000-trial", NewSessionID(now, "trial"))
}
