package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/teslashibe/inbound-agent/internal/log"
)

// RunApp runs the worker command line and exits the process with status 1
// on failure, including a failed prewarm.
func RunApp(opts Options) {
	if err := Main(context.Background(), os.Args[1:], opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Main parses args and runs the worker until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
//
//	start  run the worker (default)
//	dev    run the worker with debug logging
func Main(ctx context.Context, args []string, opts Options) error {
	command := "start"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	level := opts.LogLevel
	switch command {
	case "start":
		if level == "" {
			level = "info"
		}
	case "dev":
		level = "debug"
	default:
		return fmt.Errorf("unknown command %q (expected start or dev)", command)
	}

	flagSet := pflag.NewFlagSet(command, pflag.ContinueOnError)
	flagSet.StringVar(&opts.ListenAddr, "listen", opts.ListenAddr, "address for the room transport and HTTP API")
	flagSet.StringVar(&level, "log-level", level, "log level (debug, info, warn, error)")
	flagSet.IntVar(&opts.MaxJobs, "max-jobs", opts.MaxJobs, "maximum concurrent jobs")
	flagSet.DurationVar(&opts.ParticipantTimeout, "participant-timeout", opts.ParticipantTimeout, "how long a job waits for a participant (0 waits until the room closes)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(opts.AgentName, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(opts.AgentName, flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	log.Init(level)
	if opts.Logger == nil {
		opts.Logger = log.L()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := New(opts)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func printHelp(name string, flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `%s: voice agent worker

Usage:
  %s [start|dev] [flags]

Commands:
  start   run the worker
  dev     run the worker with debug logging

Flags:
%s`, name, name, flagSet.FlagUsages())
}
