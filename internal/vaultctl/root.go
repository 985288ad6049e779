// Package vaultctl implements the admin command line: schema migrations,
// category seeding and the periodic jobs an external scheduler runs.
package vaultctl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server"
	"github.com/dmitrijs2005/privylock/internal/server/config"
	"github.com/spf13/cobra"
)

// Admin is what the commands need from the backend.
type Admin interface {
	Migrate(ctx context.Context) error
	SeedCategories(ctx context.Context) (int, error)
	RunJob(ctx context.Context, name string) (int, error)
	Close() error
}

// Opener builds an Admin on demand so that commands like --help never touch
// the database.
type Opener func(ctx context.Context) (Admin, error)

type depsAdmin struct {
	*server.Deps
}

func (a depsAdmin) SeedCategories(ctx context.Context) (int, error) {
	return a.Categories.Seed(ctx)
}

func (a depsAdmin) RunJob(ctx context.Context, name string) (int, error) {
	return a.Jobs.Run(ctx, name)
}

// DefaultOpener loads the server configuration (environment, JSON file and
// flags) and wires the backend from it.
func DefaultOpener(ctx context.Context) (Admin, error) {
	cfg := config.LoadConfig()
	logger := logging.NewJSON(os.Stderr, cfg.LogLevel).With("module", "vaultctl")

	deps, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return depsAdmin{deps}, nil
}

// NewRootCmd assembles the command tree. Output goes to out.
func NewRootCmd(open Opener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "PrivyLock administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	root.AddCommand(
		newMigrateCmd(open),
		newSeedCmd(open),
		newJobsCmd(open),
	)
	// Server config flags (-d, -s, ...) are read by the config loader.
	tolerateUnknownFlags(root)
	return root
}

// tolerateUnknownFlags applies the whitelist to every command; cobra only
// consults the one on the command being executed.
func tolerateUnknownFlags(cmd *cobra.Command) {
	cmd.FParseErrWhitelist.UnknownFlags = true
	for _, c := range cmd.Commands() {
		tolerateUnknownFlags(c)
	}
}

// withAdmin opens an Admin for the duration of fn.
func withAdmin(cmd *cobra.Command, open Opener, fn func(ctx context.Context, a Admin) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newMigrateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdmin(cmd, open, func(ctx context.Context, a Admin) error {
				if err := a.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func newSeedCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-categories",
		Short: "Install the default document categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdmin(cmd, open, func(ctx context.Context, a Admin) error {
				n, err := a.SeedCategories(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d categories\n", n)
				return nil
			})
		},
	}
}
