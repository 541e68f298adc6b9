package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewJobsListCmd lists stored jobs.
func NewJobsListCmd(setup func() (*env, error)) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			jobs, err := e.st.List(context.Background(), limit)
			if err != nil {
				return err
			}

			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			for _, j := range jobs {
				next := "-"
				if j.NextRunAt != nil {
					next = j.NextRunAt.Local().Format(time.RFC3339)
				}
				state := "scheduled"
				switch {
				case j.Disabled:
					state = "disabled"
				case j.IsRunning():
					state = "running"
				case j.NextRunAt == nil:
					state = "retired"
				}
				fmt.Printf("%s | %-20s | %-9s | runs=%d fails=%d | next=%s\n",
					j.ID, j.Name, state, j.RunCount, j.FailCount, next)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs to list")
	return cmd
}
