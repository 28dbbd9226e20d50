package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/flare-fhir/flare/internal/config"
	"github.com/flare-fhir/flare/internal/domain/feasibility"
	"github.com/flare-fhir/flare/internal/domain/query"
	"github.com/flare-fhir/flare/internal/platform/db"
	"github.com/flare-fhir/flare/internal/platform/fhir"
	"github.com/flare-fhir/flare/internal/platform/workerpool"
)

// Exit codes of the flare binary.
const (
	exitInput       = 1
	exitConfig      = 2
	exitExecution   = 3
	exitInterrupted = 4
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitInput
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flare:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flare",
		Short:         "Feasibility queries against a FHIR server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(executeCmd())
	root.AddCommand(translateCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	return root
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}

// engine is the executor together with the resources it owns.
type engine struct {
	pool   *workerpool.Pool
	client *fhir.Client
	exec   *feasibility.Executor
}

// newEngine builds the worker pool, FHIR client and executor. Metrics are
// registered when reg is not nil.
func newEngine(cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*engine, error) {
	pool, err := workerpool.New(cfg.PoolConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	client, err := fhir.NewClient(cfg.FHIRClientConfig(), logger)
	if err != nil {
		pool.Shutdown()
		return nil, err
	}
	exec := feasibility.NewExecutor(pool, fhirResolver{client: client}, logger)

	if reg != nil {
		if err := pool.RegisterMetrics(reg); err != nil {
			pool.Shutdown()
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		if err := client.RegisterMetrics(reg); err != nil {
			pool.Shutdown()
			return nil, fmt.Errorf("register client metrics: %w", err)
		}
		exec.SetMetrics(feasibility.NewMetrics(reg))
	}
	return &engine{pool: pool, client: client, exec: exec}, nil
}

func (e *engine) Close() { e.pool.Shutdown() }

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func executeCmd() *cobra.Command {
	var user, password string
	var pageCount int

	cmd := &cobra.Command{
		Use:   "execute <query.json> [fhir-base-url]",
		Short: "Count the patients matching a query",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.LoadFile(args[0])
			if err != nil {
				return fail(exitInput, err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fail(exitConfig, err)
			}
			if len(args) == 2 {
				cfg.FHIRBaseURL = args[1]
			}
			if cmd.Flags().Changed("user") {
				cfg.FHIRUsername = user
			}
			if cmd.Flags().Changed("password") {
				cfg.FHIRPassword = password
			}
			if cmd.Flags().Changed("page-count") {
				cfg.FHIRPageCount = pageCount
			}
			if err := cfg.Validate(); err != nil {
				return fail(exitConfig, err)
			}

			logger := newLogger(cfg)
			eng, err := newEngine(cfg, logger, nil)
			if err != nil {
				return fail(exitConfig, err)
			}
			defer eng.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			n, err := eng.exec.Count(ctx, q)
			switch {
			case err == nil:
			case feasibility.IsInterrupted(err) || ctx.Err() != nil:
				return fail(exitInterrupted, err)
			default:
				var verr *query.ValidationError
				if errors.As(err, &verr) {
					return fail(exitInput, err)
				}
				return fail(exitExecution, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "FHIR server basic auth user")
	cmd.Flags().StringVarP(&password, "password", "p", "", "FHIR server basic auth password")
	cmd.Flags().IntVarP(&pageCount, "page-count", "c", 0, "result page size requested from the FHIR server (_count)")
	return cmd
}

func translateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate <query.json>",
		Short: "Print the FHIR searches a query would run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.LoadFile(args[0])
			if err != nil {
				return fail(exitInput, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return fail(exitConfig, err)
			}

			pool, err := workerpool.New(cfg.PoolConfig(), newLogger(cfg))
			if err != nil {
				return fail(exitConfig, err)
			}
			defer pool.Shutdown()

			// Translation is offline, so no FHIR server needs to be configured.
			exec := feasibility.NewExecutor(pool, fhirResolver{}, newLogger(cfg))
			t, err := exec.TranslateMappedQuery(q)
			if err != nil {
				return fail(exitExecution, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run audit schema",
	}

	openMigrator := func(ctx context.Context) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, fail(exitConfig, err)
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, fail(exitConfig, errors.New("DATABASE_URL is required for migrations"))
		}
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, nil, fail(exitConfig, err)
		}
		return db.NewMigrator(pool, db.EmbeddedMigrations(), newLogger(cfg)), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("target")
			migrator, closeDB, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			count, err := migrator.UpTo(cmd.Context(), target)
			if err != nil {
				return fail(exitExecution, fmt.Errorf("migration failed: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("target", 0, "highest version to apply (0 applies all)")
	cmd.AddCommand(upCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeDB, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fail(exitExecution, fmt.Errorf("failed to get migration status: %w", err))
			}
			printStatus(cmd, statuses)
			return nil
		},
	})
	return cmd
}

func printStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
