package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List dispatched jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return fmt.Errorf("open job ledger: %w", err)
			}
			defer st.Close()

			jobs, err := st.ListJobs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			fmt.Printf("%-36s  %-12s  %-8s  %-16s  %-10s  %s\n", "ID", "FUNCTION", "BACKEND", "PHASE", "STATUS", "CREATED")
			fmt.Printf("%-36s  %-12s  %-8s  %-16s  %-10s  %s\n", "--", "--------", "-------", "-----", "------", "-------")
			for _, job := range jobs {
				fmt.Printf("%-36s  %-12s  %-8s  %-16s  %-10s  %s\n",
					job.ID, job.Function, job.Backend, job.Phase, job.Status,
					job.CreatedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to show")

	return cmd
}
