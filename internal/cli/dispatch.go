package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/stardis/internal/backend"
	"github.com/me/stardis/internal/compute"
	"github.com/me/stardis/internal/config"
	"github.com/me/stardis/internal/dispatch"
	"github.com/me/stardis/pkg/model"
)

func newDispatchCmd() *cobra.Command {
	var function string
	var profilePath string
	var backendTag string
	var workerEntry string
	var outPath string

	cmd := &cobra.Command{
		Use:   "dispatch <task-file>",
		Short: "Run a compute function over a task, locally or on a cluster",
		Long: `dispatch reads a task (system + args + kwargs) from a JSON file and runs
the named compute function over it. Without --profile the function runs
in-process; with a profile the task is serialized, launched on the
configured backend, and the synthetic results are merged back.

The augmented task is written as JSON to stdout, or to --output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read task file: %w", err)
			}
			var task model.Task
			if err := json.Unmarshal(data, &task); err != nil {
				return fmt.Errorf("parse task file: %w", err)
			}

			var cfg *model.BackendConfig
			if profilePath != "" {
				cfg, err = config.LoadProfile(profilePath, backendTag)
				if err != nil {
					return fmt.Errorf("load profile: %w", err)
				}
			}

			st, err := openStore()
			if err != nil {
				return fmt.Errorf("open job ledger: %w", err)
			}
			defer st.Close()

			reg := compute.NewRegistry(logger)
			compute.RegisterBuiltins(reg)

			sub := backend.NewSubmitter(nil, logger)
			sub.Progress = func(line string) {
				fmt.Fprintln(os.Stderr, line)
			}

			ctrl := dispatch.NewController(dispatch.Options{
				Registry:    reg,
				Submitter:   sub,
				Store:       st,
				WorkerEntry: workerEntry,
				Logger:      logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := ctrl.Dispatch(ctx, &task, cfg, function)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, append(out, '\n'), 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				return nil
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&function, "function", "f", "", "Compute function to run (required)")
	cmd.Flags().StringVar(&profilePath, "profile", "", "HCL cluster profile file (omit to run in-process)")
	cmd.Flags().StringVar(&backendTag, "backend", "", "Backend block to select from the profile (local, slurm, torque)")
	cmd.Flags().StringVar(&workerEntry, "worker", dispatch.DefaultWorkerEntry, "Worker executable the launcher invokes")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the augmented task to a file instead of stdout")
	cmd.MarkFlagRequired("function")

	return cmd
}
