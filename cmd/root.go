package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jjenkins/lawarchive/internal/config"
	"github.com/jjenkins/lawarchive/internal/service"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	backendFlag      string
	dataDirFlag      string
	databaseURLFlag  string
	logLevelFlag     string
	jurisdictionFlag string
)

var rootCmd = &cobra.Command{
	Use:   "lawarchive",
	Short: "Versioned archive of statutory text",
	Long: `lawarchive stores successive versions of statute documents, resolves the
citations between their sections and answers point-in-time, search and
citation-graph queries.

Configuration is read from the environment (and a .env file) and can be
overridden with flags:
  ARCHIVE_BACKEND       badger (default) or postgres
  ARCHIVE_DATA_DIR      badger data directory
  DATABASE_URL          postgres connection string
  LOG_LEVEL             debug, info, warn or error
  ARCHIVE_JURISDICTION  default jurisdiction for citations`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if backendFlag != "" {
			cfg.Backend = backendFlag
		}
		if dataDirFlag != "" {
			cfg.DataDir = dataDirFlag
		}
		if databaseURLFlag != "" {
			cfg.DatabaseURL = databaseURLFlag
		}
		if logLevelFlag != "" {
			cfg.LogLevel = logLevelFlag
		}
		if jurisdictionFlag != "" {
			cfg.Jurisdiction = jurisdictionFlag
		}
		logger = cfg.Logger(os.Stderr)
		slog.SetDefault(logger)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&backendFlag, "backend", "", "Storage backend: badger or postgres")
	flags.StringVar(&dataDirFlag, "data-dir", "", "Badger data directory")
	flags.StringVar(&databaseURLFlag, "database-url", "", "PostgreSQL connection string")
	flags.StringVar(&logLevelFlag, "log-level", "", "Log level")
	flags.StringVar(&jurisdictionFlag, "jurisdiction", "", "Default jurisdiction")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received interrupt signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// openArchive opens the configured backend. The returned func closes it.
func openArchive(ctx context.Context) (*service.Archive, func(), error) {
	backend, err := cfg.OpenBackend(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close backend", "error", err)
		}
	}
	return service.NewArchive(backend, cfg.Jurisdiction, logger), closer, nil
}
