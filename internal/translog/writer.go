// Package translog persists transitions as a directory of rotated,
// gzip-compressed chunk files named "<unix timestamp>-<index>.gz". Each
// chunk decompresses to a concatenation of length-prefixed CBOR records
// and can be read without its neighbours.
package translog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"marineops-bridge/internal/wire"
)

// DefaultRotateEvery is the number of records per chunk.
const DefaultRotateEvery = 1000

var (
	// ErrBackpressure is returned by Write while too many records are held
	// because chunk writes keep failing.
	ErrBackpressure = errors.New("translog: too many unflushed records")
	// ErrClosed is returned when using a closed Writer.
	ErrClosed = errors.New("translog: writer closed")
)

var chunkName = regexp.MustCompile(`^(\d+)-(\d+)\.gz$`)

// ChunkIndex returns the sequence index embedded in a chunk file name.
func ChunkIndex(name string) (int, bool) {
	m := chunkName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Options tune a Writer.
type Options struct {
	// RotateEvery is the number of buffered records that triggers a chunk
	// write. Defaults to DefaultRotateEvery.
	RotateEvery int
	// MaxPending bounds the records held in memory while chunk writes
	// fail. Defaults to ten chunks' worth.
	MaxPending int
	// Level is the gzip compression level. Zero means gzip.DefaultCompression.
	Level int
	Logger zerolog.Logger
	// Now stamps the chunk names. Defaults to time.Now.
	Now func() time.Time
}

func (o *Options) withDefaults() {
	if o.RotateEvery <= 0 {
		o.RotateEvery = DefaultRotateEvery
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 10 * o.RotateEvery
	}
	if o.MaxPending < o.RotateEvery {
		o.MaxPending = o.RotateEvery
	}
	if o.Level == 0 {
		o.Level = gzip.DefaultCompression
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Writer appends transitions to a log directory. It is safe for
// concurrent use.
type Writer struct {
	dir  string
	opts Options

	mu      sync.Mutex
	stamp   int64
	idx     int
	buf     []byte
	count   int
	written int
	closed  bool
}

// Create makes dir and returns a Writer for it. dir must not exist yet;
// its parents are created as needed.
func Create(dir string, opts Options) (*Writer, error) {
	opts.withDefaults()
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("create transition log %s: path already exists", dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("create transition log %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create transition log parent: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transition log %s: %w", dir, err)
	}
	return &Writer{
		dir:   dir,
		opts:  opts,
		stamp: opts.Now().Unix(),
	}, nil
}

// Dir is the log directory.
func (w *Writer) Dir() string { return w.dir }

// Write buffers t and writes a chunk once RotateEvery records are held.
// A failed chunk write is logged and retried on a later Write or Close;
// the records stay buffered.
func (w *Writer) Write(t wire.Transition) error {
	record, err := wire.EncodeTransition(t)
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.count >= w.opts.MaxPending {
		return ErrBackpressure
	}
	w.buf = Pack(w.buf, record)
	w.count++
	if w.count >= w.opts.RotateEvery {
		if err := w.flushLocked(); err != nil {
			w.opts.Logger.Warn().Err(err).Str("dir", w.dir).Int("pending", w.count).
				Msg("unable to write transition chunk, deferring")
		}
	}
	return nil
}

// Flush writes any buffered records as a chunk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.flushLocked()
}

// Close flushes the remaining records. The Writer is unusable afterwards
// even if the final flush fails.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.flushLocked(); err != nil {
		return fmt.Errorf("flush %d transitions on close: %w", w.count, err)
	}
	return nil
}

// Pending returns the number of buffered records.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Chunks returns the number of chunk files written so far.
func (w *Writer) Chunks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idx
}

// Written returns the number of records persisted so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) flushLocked() error {
	if w.count == 0 {
		return nil
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%d-%d.gz", w.stamp, w.idx))
	if err := writeChunk(path, w.buf, w.opts.Level); err != nil {
		return err
	}
	w.idx++
	w.written += w.count
	w.count = 0
	w.buf = w.buf[:0]
	return nil
}

func writeChunk(path string, data []byte, level int) error {
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending chunk: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	gz, err := gzip.NewWriterLevel(pendingFile, level)
	if err != nil {
		return fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("compress chunk: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finish chunk: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit chunk %s: %w", filepath.Base(path), err)
	}
	return nil
}
