package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewJobsRemoveCmd deletes a job by identifier.
func NewJobsRemoveCmd(setup func() (*env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.st.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed job %s\n", args[0])
			return nil
		},
	}
}
