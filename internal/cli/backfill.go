package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// BackfillOptions holds flags for backfill-embeddings
type BackfillOptions struct {
	Limit int64
}

// NewBackfillCommand creates the backfill-embeddings command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackfillOptions{}

	cmd := &cobra.Command{
		Use:   "backfill-embeddings",
		Short: "Embed threads that were stored without an embedding",
		Long: `Embed threads that were stored without an embedding.

Runs a single pass over at most --limit threads. Threads the provider
fails on are skipped and picked up by the next run.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", opts.Limit)
			}
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				updated, err := b.BackfillEmbeddings(ctx, opts.Limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "embedded %d thread(s)\n", updated)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Limit, "limit", 500, "maximum number of threads to embed")

	return cmd
}
