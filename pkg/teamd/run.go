package teamd

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/common-fate/clio"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/team-access/team/pkg/dispatch"
	"github.com/team-access/team/pkg/idc"
	"github.com/team-access/team/pkg/notify"
	"github.com/team-access/team/pkg/sessions"
	"github.com/team-access/team/pkg/settings"
	"github.com/team-access/team/pkg/storage"
	"github.com/team-access/team/pkg/workflow"
)

var runCommand = cli.Command{
	Name:  "run",
	Usage: "Run the lifecycle orchestrator: workflow engine plus change-feed dispatcher",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "teamd.toml", Usage: "path to the daemon config file"},
		&cli.BoolFlag{Name: "local", Usage: "run against an in-memory store (development only)"},
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

		var (
			requests  storage.RequestStore
			sessStore storage.SessionStore
			setStore  storage.SettingsStore
			polStore  storage.PolicyStore
			ckpts     storage.Checkpoints
			execStore workflow.ExecutionStore
			feed      <-chan storage.ChangeEvent
		)
		if c.Bool("local") {
			mem := storage.NewMemory()
			requests, sessStore, setStore, polStore = mem, mem, mem, mem
			execStore = workflow.NewMemoryExecutionStore()
			feed = mem.Feed()
			clio.Warn("running with in-memory storage; state will not survive a restart")
		} else {
			dyn := storage.NewDynamo(awsCfg, cfg.TableNames())
			requests, sessStore, setStore, polStore, ckpts = dyn, dyn, dyn, dyn, dyn
			execStore = workflow.NewDynamoExecutionStore(awsCfg, cfg.ExecutionsTable)
		}

		deps := &workflow.Deps{
			Requests:    requests,
			Status:      workflow.NewStatusUpdater(requests),
			Provider:    idc.NewSSOAdmin(awsCfg),
			Notifier:    notify.NewRouter(awsCfg, settings.NewService(setStore), cfg.NotificationTopicARN),
			Settings:    settings.NewService(setStore),
			Sessions:    sessions.NewService(sessStore),
			Policies:    polStore,
			InstanceARN: cfg.InstanceARN,
		}
		if cfg.IdentityStoreID != "" {
			deps.Resolver = idc.NewResolver(awsCfg, cfg.IdentityStoreID)
		}
		engine := workflow.NewEngine(execStore,
			workflow.NewGrantMachine(deps),
			workflow.NewRevokeMachine(deps),
			workflow.NewScheduleMachine(deps),
			workflow.NewApprovalMachine(deps),
			workflow.NewRejectMachine(deps),
		).WithFailureHandler(deps)
		// machines start successor workflows through the engine itself
		deps.Starter = engine

		var deadLetter dispatch.DeadLetter = dispatch.LogDeadLetter{}
		if cfg.DeadLetterQueueURL != "" {
			deadLetter = dispatch.NewSQSDeadLetter(awsCfg, cfg.DeadLetterQueueURL)
		}
		dispatcher := dispatch.New(engine, deadLetter)

		errs := make(chan error, 2)
		go func() { errs <- engine.Run(ctx) }()
		if c.Bool("local") {
			go func() { errs <- runLocalFeed(ctx, feed, dispatcher) }()
		} else {
			consumer := storage.NewStreamConsumer(awsCfg, cfg.RequestsStreamARN, dispatcher, ckpts)
			go func() { errs <- consumer.Run(ctx) }()
		}

		clio.Infow("orchestrator running", "region", cfg.Region, "requestsTable", cfg.RequestsTable)
		err = <-errs
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// runLocalFeed adapts the memory store's change channel into the batch
// interface the dispatcher expects.
func runLocalFeed(ctx context.Context, feed <-chan storage.ChangeEvent, handler storage.BatchHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-feed:
			batch := []storage.ChangeEvent{ev}
			// drain whatever else is ready so ordering per key is kept
			for more := true; more; {
				select {
				case next := <-feed:
					batch = append(batch, next)
				default:
					more = false
				}
			}
			if err := handler.HandleBatch(ctx, batch); err != nil {
				clio.Errorw("handling local feed batch", "error", err)
			}
		case <-time.After(time.Minute):
			clio.Debug("local feed idle")
		}
	}
}
