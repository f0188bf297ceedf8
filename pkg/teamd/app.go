// Package teamd is the orchestrator's command line surface.
package teamd

import (
	"github.com/common-fate/clio"
	"github.com/urfave/cli/v2"

	"github.com/team-access/team/internal/build"
)

func GetCliApp() *cli.App {
	app := &cli.App{
		Name:    "teamd",
		Usage:   "Temporary elevated access lifecycle orchestrator",
		Version: build.Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging", EnvVars: []string{"TEAMD_DEBUG"}},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				clio.SetLevelFromString("debug")
			}
			return nil
		},
		Commands: []*cli.Command{
			&runCommand,
			&requestsCommand,
			&settingsCommand,
		},
	}
	return app
}
