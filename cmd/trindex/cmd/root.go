// Package cmd provides the CLI commands for trindex.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/trindex/internal/config"
	"github.com/aleksaelezovic/trindex/internal/logging"
	"github.com/aleksaelezovic/trindex/internal/storage"
	"github.com/aleksaelezovic/trindex/pkg/document"
	"github.com/aleksaelezovic/trindex/pkg/index"
	"github.com/aleksaelezovic/trindex/pkg/observability"
)

// rootOptions holds the persistent flags shared by all commands
type rootOptions struct {
	configPath string
	dataDir    string
	backend    string
	debug      bool
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command for the trindex CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "trindex",
		Short: "Write-behind secondary indexes over RDF triples",
		Long: `trindex maintains subject, predicate and object indexes over
N-Triples data so that triples can be looked up by any combination
of their components without a full scan.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Index data directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "Storage backend: file or badger (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newLoadCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newIndexesCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newDemoCmd(opts))

	return cmd
}

// loadConfig resolves the configuration from file, environment and flags
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session is an opened index: storage, backend and manager
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	docs     document.Manager
	backend  *index.DocumentBackend
	manager  *index.Manager
	recorder *observability.Recorder
	cleanup  func()
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := logging.New(cfg.Logging(), cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	docs, err := openDocuments(cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	patterns, err := cfg.IndexPatterns()
	if err != nil {
		_ = docs.Close()
		cleanup()
		return nil, err
	}
	keys, err := index.NewHashKeyDeriver(patterns...)
	if err != nil {
		_ = docs.Close()
		cleanup()
		return nil, err
	}

	readerEvents := observability.NewSlogObserver(logger)
	backend, err := index.NewDocumentBackend(docs, keys,
		index.WithReaderObserver(readerEvents),
		index.WithBackendLogger(logger))
	if err != nil {
		_ = docs.Close()
		cleanup()
		return nil, err
	}

	recorder := &observability.Recorder{}
	manager, err := index.NewManager(backend,
		index.WithLogger(logger),
		index.WithObserver(recorder),
		index.WithMaxBatchSize(cfg.Indexer.MaxBatchSize),
		index.WithMaxPending(cfg.Indexer.MaxPending),
		index.WithFlushConcurrency(cfg.Indexer.FlushConcurrency))
	if err != nil {
		_ = docs.Close()
		cleanup()
		return nil, err
	}

	logger.Debug("index opened", "backend", cfg.Backend, "data_dir", cfg.DataDir, "patterns", cfg.Patterns)
	return &session{
		cfg:      cfg,
		logger:   logger,
		docs:     docs,
		backend:  backend,
		manager:  manager,
		recorder: recorder,
		cleanup:  cleanup,
	}, nil
}

func openDocuments(cfg *config.Config, logger *slog.Logger) (document.Manager, error) {
	opts := storage.Options{
		CacheSize:  cfg.Storage.DocumentCache,
		Logger:     logger,
		SyncWrites: cfg.Storage.SyncWrites,
	}
	switch cfg.Backend {
	case config.BackendFile:
		return storage.NewFileManager(cfg.DataDir, opts)
	case config.BackendBadger:
		return storage.NewBadgerManager(cfg.DataDir, opts)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Close waits for queued updates, closes storage and reports any index
// batches that failed to flush
func (s *session) Close() error {
	err := errors.Join(s.manager.Close(), s.docs.Close())
	s.cleanup()
	if err != nil {
		return err
	}
	failed := s.recorder.Filter(index.EventFlushFailed)
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, e := range failed {
		errs = append(errs, e.Err())
	}
	return fmt.Errorf("%d index batch(es) failed to flush: %w", len(failed), errors.Join(errs...))
}
