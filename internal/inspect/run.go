package inspect

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"marineops-bridge/internal/telemetry"
	"marineops-bridge/internal/translog"
	"marineops-bridge/internal/wire"
)

// Options controls Run.
type Options struct {
	// Follow keeps watching the log for new chunks.
	Follow bool
	// Interactive forces the TUI on or off. Nil detects a terminal.
	Interactive *bool
	In          io.Reader
	Out         io.Writer
}

// sender abstracts tea.Program for loaders.
type sender interface {
	Send(tea.Msg)
}

const batchSize = 200

// Run shows the transition log in dir until ctx is done, the user quits
// or, without Follow and without a terminal, the log is exhausted.
func Run(ctx context.Context, dir string, opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	interactive := isTerminal(opts.Out)
	if opts.Interactive != nil {
		interactive = *opts.Interactive
	}
	if !interactive {
		return plain(ctx, dir, opts)
	}

	// Fail fast on a bad directory before taking over the screen.
	if !opts.Follow {
		if _, err := translog.Open(dir); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := tea.NewProgram(newModel(dir, opts.Follow),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(opts.In),
		tea.WithOutput(opts.Out),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := load(ctx, dir, opts.Follow, p); err != nil && ctx.Err() == nil {
			p.Send(errMsg{err})
		}
	}()

	_, err := p.Run()
	cancel()
	wg.Wait()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// load feeds transitions to s in batches.
func load(ctx context.Context, dir string, follow bool, s sender) error {
	if follow {
		index := 0
		return translog.Follow(ctx, dir, func(t wire.Transition) error {
			s.Send(rowsMsg{telemetry.NewTransitionRow(index, t)})
			index++
			return nil
		})
	}

	r, err := translog.Open(dir)
	if err != nil {
		return err
	}
	index := 0
	for r.HasMore() {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := r.Read(batchSize)
		if err != nil {
			return err
		}
		rows := make(rowsMsg, len(batch))
		for i, t := range batch {
			rows[i] = telemetry.NewTransitionRow(index, t)
			index++
		}
		s.Send(rows)
	}
	s.Send(doneMsg{})
	return nil
}

// plain writes the log as JSON lines.
func plain(ctx context.Context, dir string, opts Options) error {
	w := telemetry.NewJSONWriter(opts.Out)
	if !opts.Follow {
		_, err := telemetry.ReplayLogDir(ctx, dir, w, 0)
		return err
	}
	index := 0
	err := translog.Follow(ctx, dir, func(t wire.Transition) error {
		row := telemetry.NewTransitionRow(index, t)
		index++
		return w.WriteTransition(row)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
