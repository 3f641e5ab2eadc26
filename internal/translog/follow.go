package translog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"marineops-bridge/internal/wire"
)

// Follow delivers every transition in dir to fn, then keeps watching the
// directory and delivers new chunks as the writer commits them. Chunks
// are delivered in index order; a chunk that appears out of order is held
// until its predecessors arrive. Follow returns when ctx is done or fn
// returns an error.
func Follow(ctx context.Context, dir string, fn func(wire.Transition) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	nextIdx := -1
	deliver := func() error {
		names, err := listChunks(dir, false)
		if err != nil {
			return err
		}
		for _, name := range names {
			idx, _ := ChunkIndex(name)
			if idx < nextIdx {
				continue
			}
			if nextIdx >= 0 && idx != nextIdx {
				break
			}
			batch, err := readChunk(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			for _, t := range batch {
				if err := fn(t); err != nil {
					return err
				}
			}
			nextIdx = idx + 1
		}
		return nil
	}

	if err := deliver(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
				continue
			}
			if _, ok := ChunkIndex(filepath.Base(event.Name)); !ok {
				continue
			}
			if err := deliver(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
}
