package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-fate/clio"
	"github.com/common-fate/clio/clierr"

	"github.com/team-access/team/pkg/teamd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := teamd.GetCliApp()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		if cliError, ok := err.(clierr.PrintCLIErrorer); ok {
			cliError.PrintCLIError()
		} else {
			clio.Error(err.Error())
		}
		os.Exit(1)
	}
}
