package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a dispatched job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			st, err := openStore()
			if err != nil {
				return fmt.Errorf("open job ledger: %w", err)
			}
			defer st.Close()

			job, err := st.GetJob(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			if job == nil {
				return fmt.Errorf("job %s not found", id)
			}

			fmt.Printf("Job: %s\n", job.ID)
			fmt.Printf("  Function: %s\n", job.Function)
			fmt.Printf("  Backend:  %s\n", job.Backend)
			fmt.Printf("  Phase:    %s\n", job.Phase)
			fmt.Printf("  Status:   %s\n", job.Status)
			if job.ExternalID != "" {
				fmt.Printf("  Queue ID: %s\n", job.ExternalID)
			}
			if job.Command != "" {
				fmt.Printf("  Command:  %s\n", job.Command)
			}
			if job.Error != "" {
				fmt.Printf("  Error:    %s\n", job.Error)
			}
			fmt.Printf("  Created:  %s\n", job.CreatedAt.Local().Format(time.RFC3339))
			if job.CompletedAt != nil {
				fmt.Printf("  Completed: %s\n", job.CompletedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}
