// Package cli implements threadctl, the operator command line of the
// backend.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/anonto42/threadline/backend/internal/app"
	"github.com/anonto42/threadline/backend/pkg/config"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// Backend is the part of the wired backend the commands drive
type Backend interface {
	Migrate(ctx context.Context) error
	BackfillEmbeddings(ctx context.Context, limit int64) (int, error)
	Close()
}

// Opener connects a Backend from configuration
type Opener func(ctx context.Context, cfg *config.Config) (Backend, error)

// OpenApp is the production Opener
func OpenApp(ctx context.Context, cfg *config.Config) (Backend, error) {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
	open     Opener
}

// NewRootCommand creates the threadctl root command
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "threadctl",
		Short: "Operate the threadline backend",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(logging.Config{Level: opts.LogLevel, Format: "console", Output: cmd.ErrOrStderr()})
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewBackfillCommand(opts))

	return cmd
}

// withBackend loads configuration, opens the backend and closes it after fn
func withBackend(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := opts.open(ctx, config.Load())
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}
