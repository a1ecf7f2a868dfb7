package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rahul/aitester/internal/agent"
)

var version = "dev"

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

type rootOptions struct {
	configFile string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	root := &cobra.Command{
		Use:           "aitester",
		Short:         "Drive a browser with an AI planner, one bounded session at a time",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./config.yaml)")

	root.AddCommand(newRunCmd(opts), newTelegramCmd(opts), newVersionCmd(opts))
	return root
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(opts.out, "aitester %s\n", version)
		},
	}
}

func execute(ctx context.Context, args []string) int {
	root := newRootCmd(os.Stdout)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return agent.ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "aitester: %v\n", ee.err)
		}
		return ee.code
	}
	// Flag and argument errors from cobra.
	fmt.Fprintf(os.Stderr, "aitester: %v\n", err)
	return agent.ExitValidation
}
