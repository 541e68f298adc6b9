package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marquev/sked/internal/util"
)

// NewJobsNowCmd forces a job to run on the daemon's next poll.
func NewJobsNowCmd(setup func() (*env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "now <job-id>",
		Short: "Schedule a job to run immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			ctx := context.Background()
			j, err := e.st.Get(ctx, args[0])
			if err != nil {
				return err
			}

			now := time.Now()
			j.NextRunAt = util.Ptr(now)
			j.Disabled = false
			j.UpdatedAt = now
			if err := e.st.Save(ctx, j); err != nil {
				return err
			}

			fmt.Printf("Job %s (%s) scheduled to run now\n", j.ID, j.Name)
			return nil
		},
	}
}
