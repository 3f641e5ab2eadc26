package translog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"marineops-bridge/internal/wire"
)

func transition(i int) wire.Transition {
	return wire.Transition{
		S1: wire.State{VehicleID: "felix", NavX: float64(i), NavY: 1, NavHeading: 90, MOOSTime: float64(i)},
		A:  wire.Action{Speed: 2, Course: float64(i % 360), Posts: map[string]string{"STEP": fmt.Sprint(i)}},
		S2: wire.State{VehicleID: "felix", NavX: float64(i + 1), NavY: 1, NavHeading: 90, MOOSTime: float64(i + 1)},
	}
}

func chunkFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRoundTripRotation(t *testing.T) {
	const m = 100
	for _, k := range []int{1, 7, 25, 50} {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "log_felix")
			w, err := Create(dir, Options{RotateEvery: k})
			require.NoError(t, err)

			want := make([]wire.Transition, m)
			for i := range want {
				want[i] = transition(i)
				require.NoError(t, w.Write(want[i]))
			}
			require.NoError(t, w.Close())

			wantFiles := (m + k - 1) / k
			require.Len(t, chunkFiles(t, dir), wantFiles)
			require.Equal(t, wantFiles, w.Chunks())
			require.Equal(t, m, w.Written())

			r, err := Open(dir)
			require.NoError(t, err)
			require.Equal(t, wantFiles, r.TotalFiles())

			var got []wire.Transition
			for r.HasMore() {
				batch, err := r.Read(13)
				require.NoError(t, err)
				got = append(got, batch...)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("read order mismatch (-want +got):\n%s", diff)
			}
			rest, err := r.Read(5)
			require.NoError(t, err)
			require.Empty(t, rest)
			require.Equal(t, wantFiles, r.CurrentFile())
		})
	}
}

func TestReadReturnsFullBatchesAcrossChunks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	w, err := Create(dir, Options{RotateEvery: 3})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Write(transition(i)))
	}
	require.NoError(t, w.Close())

	r, err := Open(dir)
	require.NoError(t, err)
	batch, err := r.Read(8)
	require.NoError(t, err)
	require.Len(t, batch, 8)
	require.Equal(t, 7.0, batch[7].S1.NavX)
	batch, err = r.Read(8)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.False(t, r.HasMore())
}

func TestReadNonPositiveCount(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	w, err := Create(dir, Options{RotateEvery: 3})
	require.NoError(t, err)
	require.NoError(t, w.Write(transition(0)))
	require.NoError(t, w.Close())

	r, err := Open(dir)
	require.NoError(t, err)
	for _, n := range []int{0, -1} {
		batch, err := r.Read(n)
		require.NoError(t, err)
		require.Empty(t, batch)
	}
	require.True(t, r.HasMore())
	batch, err := r.Read(1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
}

func TestChunksSortedByIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	w, err := Create(dir, Options{RotateEvery: 1})
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		require.NoError(t, w.Write(transition(i)))
	}
	require.NoError(t, w.Close())

	r, err := Open(dir)
	require.NoError(t, err)
	all, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 12)
	for i, tr := range all {
		require.Equal(t, float64(i), tr.S1.NavX, "index %d out of order", i)
	}
}

func TestCreateRejectsExisting(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir, Options{})
	require.Error(t, err)
}

func TestOpenErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := Open(t.TempDir())
		require.Error(t, err)
	})
	t.Run("non chunk file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "log")
		w, err := Create(dir, Options{RotateEvery: 1})
		require.NoError(t, err)
		require.NoError(t, w.Write(transition(0)))
		require.NoError(t, w.Close())
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
		_, err = Open(dir)
		require.ErrorContains(t, err, "notes.txt")
	})
}

func TestCorruptChunk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1700000000-0.gz"), []byte("not gzip"), 0o644))
	r, err := Open(dir)
	require.NoError(t, err)
	_, err = r.Read(1)
	require.Error(t, err)
}

func TestCloseFlushesRemainder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	w, err := Create(dir, Options{RotateEvery: 10, Now: func() time.Time { return time.Unix(1700000000, 0) }})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Write(transition(i)))
	}
	require.Empty(t, chunkFiles(t, dir))
	require.Equal(t, 4, w.Pending())
	require.NoError(t, w.Close())
	require.Equal(t, []string{"1700000000-0.gz"}, chunkFiles(t, dir))
	require.ErrorIs(t, w.Write(transition(5)), ErrClosed)
	require.NoError(t, w.Close())
}

func TestWriteFailureDefersAndBackpressures(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	w, err := Create(dir, Options{RotateEvery: 2, MaxPending: 5})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Write(transition(i)))
	}
	require.Equal(t, 5, w.Pending())
	require.ErrorIs(t, w.Write(transition(5)), ErrBackpressure)

	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, w.Flush())
	require.Zero(t, w.Pending())
	require.NoError(t, w.Close())

	r, err := Open(dir)
	require.NoError(t, err)
	all, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, 4.0, all[4].S1.NavX)
}

func TestPackUnpack(t *testing.T) {
	var buf []byte
	for _, rec := range []string{"", "a", "hello world"} {
		buf = Pack(buf, []byte(rec))
	}
	got, err := Unpack(buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "hello world", string(got[2]))

	_, err = Unpack(buf[:len(buf)-1])
	require.Error(t, err)
	_, err = Unpack([]byte{0, 0})
	require.Error(t, err)
}

func TestChunkIndex(t *testing.T) {
	idx, ok := ChunkIndex("1700000000-12.gz")
	require.True(t, ok)
	require.Equal(t, 12, idx)
	for _, name := range []string{"12.gz", "a-1.gz", "1-2.gz.tmp", ".1-2.gz123"} {
		_, ok := ChunkIndex(name)
		require.False(t, ok, name)
	}
}

func TestFollow(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	w, err := Create(dir, Options{RotateEvery: 2})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Write(transition(i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan float64, 16)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, dir, func(tr wire.Transition) error {
			got <- tr.S1.NavX
			return nil
		})
	}()

	for i := 0; i < 4; i++ {
		select {
		case x := <-got:
			require.Equal(t, float64(i), x)
		case <-ctx.Done():
			t.Fatal("timed out waiting for existing chunks")
		}
	}

	for i := 4; i < 6; i++ {
		require.NoError(t, w.Write(transition(i)))
	}
	for i := 4; i < 6; i++ {
		select {
		case x := <-got:
			require.Equal(t, float64(i), x)
		case <-ctx.Done():
			t.Fatal("timed out waiting for new chunk")
		}
	}
	require.NoError(t, w.Close())
	cancel()
	require.NoError(t, <-done)
}
