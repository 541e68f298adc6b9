package cli

import (
	"github.com/spf13/cobra"
)

// NewJobsCmd groups the job management subcommands.
func NewJobsCmd(setup func() (*env, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage jobs",
	}

	cmd.AddCommand(NewJobsListCmd(setup))
	cmd.AddCommand(NewJobsRemoveCmd(setup))
	cmd.AddCommand(NewJobsNowCmd(setup))
	return cmd
}
