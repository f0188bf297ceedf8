package teamd

import (
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/common-fate/clio/clierr"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
)

var requestsCommand = cli.Command{
	Name:  "requests",
	Usage: "Inspect access requests",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List requests by requester email or approver id",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "teamd.toml"},
				&cli.StringFlag{Name: "email", Usage: "filter by requester email"},
				&cli.StringFlag{Name: "approver", Usage: "filter by approver id"},
				&cli.StringFlag{Name: "status", Usage: "filter by status"},
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
				store := storage.NewDynamo(awsCfg, cfg.TableNames())

				status := request.Status(c.String("status"))
				var page *storage.Page
				switch {
				case c.String("email") != "":
					page, err = store.QueryByEmailAndStatus(ctx, c.String("email"), status, nil)
				case c.String("approver") != "":
					page, err = store.QueryByApproverAndStatus(ctx, c.String("approver"), status, nil)
				default:
					return clierr.New("no filter given",
						clierr.Info("list requests for a requester with 'teamd requests list --email dev@example.com'"),
						clierr.Info("or for an approver with 'teamd requests list --approver <approver id>'"))
				}
				if err != nil {
					return err
				}
				for _, r := range page.Requests {
					fmt.Printf("%s  %-30s %-14s %-20s %s\n",
						r.ID, r.AccountName, statusColor(r.Status), r.Role, r.StartTime.Format("2006-01-02 15:04"))
				}
				if len(page.Requests) == 0 {
					fmt.Println("no requests found")
				}
				return nil
			},
		},
	},
}

func statusColor(s request.Status) string {
	switch s {
	case request.StatusInProgress, request.StatusApproved:
		return color.GreenString(string(s))
	case request.StatusPending, request.StatusScheduled:
		return color.YellowString(string(s))
	case request.StatusError, request.StatusRejected:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
