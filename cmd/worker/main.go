// Command worker is the process the cluster launcher starts on every
// rank. It is invoked as:
//
//	stardis-worker [flags] <function> <system-file> <args-file> <kwargs-file>
//
// Rank and world size come from the launcher's environment. Rank 0
// gathers the partial results and writes the result artifact next to
// the system file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/stardis/internal/compute"
	"github.com/me/stardis/internal/logging"
	"github.com/me/stardis/internal/worker"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if *debug {
		*logLevel = "debug"
	}
	logger := logging.New(logging.ParseLevel(*logLevel), *logFormat)

	args := flag.Args()
	if len(args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <function> <system-file> <args-file> <kwargs-file>\n", os.Args[0])
		os.Exit(2)
	}

	reg := compute.NewRegistry(logger)
	compute.RegisterBuiltins(reg)

	rank, size := worker.RankFromEnv()
	rt := worker.NewRuntime(reg, rank, size, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Execute(ctx, args[0], args[1], args[2], args[3]); err != nil {
		logger.Error("worker failed", "rank", rank, "error", err)
		os.Exit(1)
	}
}
