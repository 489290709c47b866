package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/db"
	"github.com/frictiondesk/frictiondesk/internal/models"
	"github.com/frictiondesk/frictiondesk/internal/opportunity"
)

func newOpportunitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "opportunities",
		Aliases: []string{"opps"},
		Short:   "RICE opportunity commands",
	}

	cmd.AddCommand(newOppsGenerateCmd())
	cmd.AddCommand(newOppsListCmd())
	cmd.AddCommand(newOppsStatusCmd())
	return cmd
}

func newOppsGenerateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "generate <survey-id>",
		Short: "Generate opportunities from a survey's metric results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			report, err := opportunity.NewGenerator(gormDB, cfg).Generate(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Opportunities: %d created, %d updated, %d preserved\n",
				report.Created, report.Updated, report.Preserved)
			for _, s := range report.Skipped {
				fmt.Fprintf(out, "  skipped %s: %s\n", s.Dimension, s.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	return cmd
}

func newOppsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list <team-id>",
		Short: "List a team's opportunities by RICE score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			opps, err := opportunity.NewGenerator(gormDB, cfg).ListForTeam(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(opps) == 0 {
				fmt.Fprintln(out, "No opportunities.")
				return nil
			}
			for _, o := range opps {
				dim := "-"
				if o.FrictionType != nil {
					dim = string(*o.FrictionType)
				}
				fmt.Fprintf(out, "%4d  %6.1f  %-12s  %-11s  %s\n",
					o.ID, o.RICEScore, dim, o.Status, o.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	return cmd
}

func newOppsStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status <opportunity-id> <status>",
		Short: "Move an opportunity through its workflow",
		Long:  "Valid statuses: identified, in_progress, completed, deferred. Rows moved out of identified are never rewritten by the generator.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			opp, err := opportunity.NewGenerator(gormDB, cfg).
				UpdateStatus(cmd.Context(), id, models.OpportunityStatus(args[1]))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Opportunity %d is now %s\n", opp.ID, args[1])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	return cmd
}
