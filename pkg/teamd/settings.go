package teamd

import (
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/team-access/team/pkg/settings"
	"github.com/team-access/team/pkg/storage"
)

var settingsCommand = cli.Command{
	Name:  "settings",
	Usage: "Inspect orchestrator policy settings",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "Print the current settings snapshot",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "teamd.toml"},
			},
			Action: func(c *cli.Context) error {
				ctx := c.Context
				cfg, err := LoadConfig(c.String("config"))
				if err != nil {
					return err
				}
				awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
				if err != nil {
					return errors.Wrap(err, "loading AWS config")
				}
				s, err := settings.NewService(storage.NewDynamo(awsCfg, cfg.TableNames())).Current(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("default duration (hours): %s\n", s.Duration)
				fmt.Printf("approval expiry (hours):  %s\n", s.Expiry)
				fmt.Printf("approval required:        %t\n", s.Approval)
				fmt.Printf("comments required:        %t\n", s.Comments)
				fmt.Printf("ticket number required:   %t\n", s.TicketNo)
				fmt.Printf("notifications: ses=%t sns=%t slack=%t\n",
					s.SESNotificationsEnabled, s.SNSNotificationsEnabled, s.SlackNotificationsEnabled)
				return nil
			},
		},
	},
}
