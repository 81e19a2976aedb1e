package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/mikesmitty/mv2/host"
	"github.com/mikesmitty/mv2/internal/cmd"
)

func main() {
	// ^C cancels the context, which interrupts a running MV2Host.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		log.Errorln(err)
		var exitErr *host.ExitError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, outW io.Writer, args []string) error {
	rootCmd := cmd.NewRootCmd()
	rootCmd.SetOut(outW)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
