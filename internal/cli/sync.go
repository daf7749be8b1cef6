package cli

import (
	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command. It fetches every note, restores
// the journal and replays it once.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued mutations once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx, rootOpts.config, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Restore(); err != nil {
				return err
			}
			if _, err := app.Notes.Refresh(ctx); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), app.Sync.Reconcile(ctx))
		},
	}
}
