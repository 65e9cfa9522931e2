package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/stardis/internal/compute"
)

func newWorkerCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker-check",
		Short: "List the compute functions workers can run",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := compute.NewRegistry(logger)
			compute.RegisterBuiltins(reg)

			for _, name := range reg.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
