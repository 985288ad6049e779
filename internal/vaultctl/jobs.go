package vaultctl

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/server/services"
	"github.com/spf13/cobra"
)

var jobs = []struct {
	name  string
	short string
	unit  string
}{
	{services.JobExpiry, "Create expiry alerts for documents nearing their expiry date", "alerts created"},
	{services.JobStorage, "Create storage alerts for users above their thresholds", "alerts created"},
	{services.JobEmail, "Send pending notification e-mails", "e-mails sent"},
	{services.JobPush, "Send pending push notifications", "push notifications sent"},
	{services.JobCleanup, "Delete expired notifications", "notifications deleted"},
}

func newJobsCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run a periodic job once",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return fmt.Errorf("unknown job %q", args[0])
		},
	}
	for _, j := range jobs {
		j := j
		cmd.AddCommand(&cobra.Command{
			Use:   j.name,
			Short: j.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAdmin(cmd, open, func(ctx context.Context, a Admin) error {
					n, err := a.RunJob(ctx, j.name)
					if errors.Is(err, common.ErrJobLocked) {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped, another run holds the lock\n", j.name)
						return nil
					}
					if err != nil {
						return fmt.Errorf("job %s: %w", j.name, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s\n", j.name, n, j.unit)
					return nil
				})
			},
		})
	}
	return cmd
}
