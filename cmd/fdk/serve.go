package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/frictiondesk/frictiondesk/internal/chat"
	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/db"
	"github.com/frictiondesk/frictiondesk/internal/llm"
	"github.com/frictiondesk/frictiondesk/internal/metrics"
	"github.com/frictiondesk/frictiondesk/internal/notify"
	"github.com/frictiondesk/frictiondesk/internal/opportunity"
	"github.com/frictiondesk/frictiondesk/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		noSweep    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Frictiondesk API server",
		Long:  "Starts the JSON API server along with the session abandonment sweeper. Stops cleanly on SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, noSweep)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override the configured HTTP port")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "disable the abandonment sweeper")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noSweep bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	client := llm.NewOpenAIClient(cfg.LLM)

	calc := metrics.NewCalculator(gormDB, cfg)
	opps := opportunity.NewGenerator(gormDB, cfg)

	engine, err := chat.NewEngine(chat.EngineOpts{
		DB:     gormDB,
		Client: client,
		Config: cfg.Chat,
		Recalc: calc,
	})
	if err != nil {
		return err
	}

	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !noSweep {
		window := time.Duration(cfg.Chat.AbandonAfterMinutes) * time.Minute
		go func() {
			if err := chat.RunSweeper(ctx, gormDB, cfg.Chat.SweepCron, window); err != nil {
				log.WithError(err).Error("serve: sweeper stopped")
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Frictiondesk API on http://localhost:%d\n", cfg.Server.Port)
	return server.Start(ctx, server.StartOpts{
		DB:            gormDB,
		Engine:        engine,
		Calculator:    calc,
		Opportunities: opps,
		Notifiers:     notifiers,
		Port:          cfg.Server.Port,
	})
}

// buildNotifiers constructs the configured digest notifiers. Empty tokens
// disable a platform rather than erroring, so a bare config still serves.
func buildNotifiers(cfg config.NotifyConfig) ([]notify.Notifier, error) {
	var notifiers []notify.Notifier

	if cfg.SlackToken != "" {
		n, err := notify.NewSlack(notify.SlackOpts{
			Token:     cfg.SlackToken,
			ChannelID: cfg.SlackChannel,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	if cfg.DiscordToken != "" {
		n, err := notify.NewDiscord(notify.DiscordOpts{
			Token:     cfg.DiscordToken,
			ChannelID: cfg.DiscordChannel,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	return notifiers, nil
}
