package translog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"

	"marineops-bridge/internal/wire"
)

// Reader returns transitions from a log directory in write order. Chunks
// are decompressed lazily, one at a time.
type Reader struct {
	dir     string
	files   []string
	next    int
	current []wire.Transition
}

// Open prepares dir for reading. A missing or empty directory, or any
// entry that is not a chunk file, is an error.
func Open(dir string) (*Reader, error) {
	files, err := listChunks(dir, true)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("open transition log %s: directory is empty", dir)
	}
	return &Reader{dir: dir, files: files}, nil
}

// listChunks returns chunk names sorted by index. In strict mode any
// other entry is an error; otherwise it is ignored.
func listChunks(dir string, strict bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open transition log %s: %w", dir, err)
	}
	type chunk struct {
		name string
		idx  int
	}
	chunks := make([]chunk, 0, len(entries))
	for _, e := range entries {
		idx, ok := ChunkIndex(e.Name())
		if !ok || e.IsDir() {
			if strict {
				return nil, fmt.Errorf("open transition log %s: unexpected entry %q", dir, e.Name())
			}
			continue
		}
		chunks = append(chunks, chunk{name: e.Name(), idx: idx})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].idx < chunks[j].idx })
	names := make([]string, len(chunks))
	for i, c := range chunks {
		names[i] = c.name
	}
	return names, nil
}

// Dir is the log directory.
func (r *Reader) Dir() string { return r.dir }

// TotalFiles is the number of chunk files in the log.
func (r *Reader) TotalFiles() int { return len(r.files) }

// CurrentFile is the number of chunk files loaded so far.
func (r *Reader) CurrentFile() int { return r.next }

// HasMore reports whether Read can return anything else.
func (r *Reader) HasMore() bool {
	return len(r.current) > 0 || r.next < len(r.files)
}

// Read returns up to n transitions. It returns fewer only when the log is
// exhausted, and an empty slice afterwards or when n is not positive.
func (r *Reader) Read(n int) ([]wire.Transition, error) {
	if n <= 0 {
		return []wire.Transition{}, nil
	}
	out := make([]wire.Transition, 0, n)
	for len(out) < n {
		if len(r.current) == 0 {
			if r.next == len(r.files) {
				break
			}
			batch, err := readChunk(filepath.Join(r.dir, r.files[r.next]))
			if err != nil {
				return out, err
			}
			r.next++
			r.current = batch
			continue
		}
		take := min(n-len(out), len(r.current))
		out = append(out, r.current[:take]...)
		r.current = r.current[take:]
	}
	return out, nil
}

// ReadAll drains the rest of the log.
func (r *Reader) ReadAll() ([]wire.Transition, error) {
	var all []wire.Transition
	for r.HasMore() {
		batch, err := r.Read(DefaultRotateEvery)
		all = append(all, batch...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

func readChunk(path string) ([]wire.Transition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", filepath.Base(path), err)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk %s: %w", filepath.Base(path), err)
	}
	records, err := Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", filepath.Base(path), err)
	}
	out := make([]wire.Transition, 0, len(records))
	for i, rec := range records {
		t, err := wire.DecodeTransition(rec)
		if err != nil {
			return nil, fmt.Errorf("chunk %s record %d: %w", filepath.Base(path), i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
