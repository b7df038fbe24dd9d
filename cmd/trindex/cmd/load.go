package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/trindex/pkg/index"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

const loadChunkSize = 1000

func newLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.nt>...",
		Short: "Index the triples of N-Triples files",
		Long: `Read N-Triples files and add every triple to the indexes.
Use "-" to read from standard input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts, args, false)
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <file.nt>...",
		Short: "Remove the triples of N-Triples files from the indexes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts, args, true)
		},
	}
}

func runUpdate(cmd *cobra.Command, opts *rootOptions, files []string, remove bool) (err error) {
	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	verb := "loaded"
	if remove {
		verb = "removed"
	}

	chunk := loadChunkSize
	if s.cfg.Indexer.MaxPending > 0 {
		chunk = min(chunk, s.cfg.Indexer.MaxPending)
	}

	for _, file := range files {
		n, err := updateFromFile(cmd.Context(), s.manager, cmd.InOrStdin(), file, chunk, remove)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d triple(s) from %s\n", verb, n, file)
	}
	return nil
}

func updateFromFile(ctx context.Context, m *index.Manager, stdin io.Reader, file string, chunk int, remove bool) (int, error) {
	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return 0, fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()
		r = f
	}

	dec := rdf.NewDecoder(r)
	batch := make([]rdf.Triple, 0, chunk)
	total := 0
	for {
		t, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, fmt.Errorf("%s: %w", file, err)
		}
		batch = append(batch, t)
		if len(batch) == chunk {
			if err := enqueue(ctx, m, batch, remove); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := enqueue(ctx, m, batch, remove); err != nil {
		return total, err
	}
	return total + len(batch), nil
}

// enqueue queues ts, waiting for the indexer whenever the queue is full
func enqueue(ctx context.Context, m *index.Manager, ts []rdf.Triple, remove bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		var err error
		if remove {
			err = m.RemoveFromIndex(ts...)
		} else {
			err = m.AddToIndex(ts...)
		}
		if !errors.Is(err, index.ErrQueueFull) {
			return err
		}
		if err := m.Drain(ctx); err != nil {
			return err
		}
	}
}
