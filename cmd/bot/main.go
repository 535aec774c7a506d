package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "horoscope-bot",
		Short:         "Telegram bot delivering personalised daily horoscopes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := newServeCommand()
	root.AddCommand(serve, newDeliverCommand(), newMigrateCommand())
	root.RunE = serve.RunE

	return root
}
