package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frictiondesk/frictiondesk/internal/chat"
	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/db"
)

func newSweepCmd() *cobra.Command {
	var (
		configPath string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark inactive chat sessions as abandoned",
		Long:  "Runs the abandonment sweep once, or continuously on the configured cron schedule with --watch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}

			window := time.Duration(cfg.Chat.AbandonAfterMinutes) * time.Minute
			if watch {
				fmt.Fprintf(cmd.OutOrStdout(), "Sweeping on schedule %q (window %s)\n", cfg.Chat.SweepCron, window)
				return chat.RunSweeper(cmd.Context(), gormDB, cfg.Chat.SweepCron, window)
			}

			n, err := chat.SweepAbandoned(gormDB, window)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Abandoned %d stale sessions (window %s)\n", n, window)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep sweeping on the configured cron schedule")
	return cmd
}
