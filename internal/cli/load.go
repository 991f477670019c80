package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loamlabs/seedr/internal/record"
	"github.com/loamlabs/seedr/internal/registry"
	"github.com/loamlabs/seedr/internal/resolver"
	"github.com/loamlabs/seedr/internal/seeder"
	"github.com/loamlabs/seedr/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database string
	DryRun   bool
	NoFlush  bool

	// IDGenerator allows overriding the record id generator (for testing).
	// If nil, defaults to random UUIDs.
	IDGenerator store.IDGenerator
}

// LoadResult holds the load summary for output.
type LoadResult struct {
	Records   int            `json:"records"`
	Types     map[string]int `json:"types"`
	Committed bool           `json:"committed"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <file>...",
		Short: "Load seed files into a database",
		Long: `Load seed documents into a SQLite database, resolving references.

Files are loaded in argument order; "!files" includes are loaded before the
document that names them. The transaction commits once all files resolve
unless --dry-run is given, in which case it is rolled back.

Example:
  seedr load --db ./app.db seeds/base.yaml seeds/users.yaml
  seedr load --db ./app.db --dry-run seeds/base.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "resolve and build without committing")
	cmd.Flags().BoolVar(&opts.NoFlush, "no-flush", false, "do not flush records as they are built")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLoad(opts *LoadOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("opening database", "path", opts.Database)
	storeOpts := []store.Option{}
	if opts.IDGenerator != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDGenerator))
	}
	st, err := store.Open(opts.Database, storeOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// Any type named by a document is accepted; there is no compiled-in
	// schema on the command line.
	reg := registry.New(registry.WithDynamicTypes())
	session := st.Session()
	sdr := seeder.New(session, reg)

	ctx := cmd.Context()
	loadOpts := []seeder.Option{
		seeder.WithCommit(!opts.DryRun),
		seeder.WithFlushOnCreate(!opts.NoFlush),
	}
	records, err := sdr.LoadFiles(ctx, paths, loadOpts...)
	if err != nil {
		if rbErr := session.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "error", rbErr)
		}
		return outputLoadError(formatter, err)
	}

	if opts.DryRun {
		if err := session.Rollback(); err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "rollback failed", err)
		}
		slog.Info("dry run, transaction rolled back", "records", len(records))
	}

	result := LoadResult{
		Records:   len(records),
		Types:     typeCounts(records),
		Committed: !opts.DryRun,
	}
	return outputLoadSuccess(formatter, result)
}

func typeCounts(records []record.Record) map[string]int {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.TypeName()]++
	}
	return counts
}

// outputLoadSuccess outputs the load summary.
func outputLoadSuccess(formatter *OutputFormatter, result LoadResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	verb := "loaded"
	if !result.Committed {
		verb = "resolved (dry run)"
	}
	fmt.Fprintf(formatter.Writer, "✓ %d record(s) %s\n", result.Records, verb)
	for name, n := range result.Types {
		fmt.Fprintf(formatter.Writer, "  %s: %d\n", name, n)
	}
	return nil
}

// outputLoadError maps a load failure to an error code and exit code.
// Resolution failures (bad documents, stuck references) exit 1; everything
// else is a command error and exits 2.
func outputLoadError(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	exit := ExitCommandError

	var buildErr *resolver.BuildError
	switch {
	case resolver.IsUnresolved(err):
		code, exit = ErrCodeUnresolved, ExitFailure
	case resolver.IsAmbiguous(err):
		code, exit = ErrCodeAmbiguous, ExitFailure
	case resolver.IsStructural(err):
		code, exit = ErrCodeStructural, ExitFailure
	case errors.As(err, &buildErr):
		// Engine protocol violation, not a data problem.
		code = ErrCodeBuild
	case isParseError(err):
		code, exit = ErrCodeParse, ExitFailure
	case errors.Is(err, os.ErrNotExist):
		code = ErrCodeReadFailed
	}

	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(exit, "load failed", err)
}
