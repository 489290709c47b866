package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/db"
	"github.com/frictiondesk/frictiondesk/internal/metrics"
	"github.com/frictiondesk/frictiondesk/internal/models"
	"github.com/frictiondesk/frictiondesk/internal/opportunity"
)

func newRecalcCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "recalc <survey-id>",
		Short: "Recompute team metrics for a survey",
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

			calc := metrics.NewCalculator(gormDB, cfg)
			result, err := calc.Calculate(cmd.Context(), id)
			if err != nil {
				return err
			}

			printMetricResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	return cmd
}

func printMetricResult(cmd *cobra.Command, result *models.MetricResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Survey %d: %d respondents\n", result.SurveyID, result.RespondentCount)

	if !result.MeetsPrivacyThreshold {
		fmt.Fprintln(out, "Privacy threshold not met; scores withheld.")
		return
	}

	line := func(name string, score *float64) {
		if score != nil {
			fmt.Fprintf(out, "  %-18s %.1f\n", name, *score)
		}
	}
	line("Flow", result.FlowScore)
	line("Friction", result.FrictionScore)
	line("Safety", result.SafetyScore)
	line("Portfolio Balance", result.PortfolioBalanceScore)
	fmt.Fprintf(out, "  Trend: %s\n", result.TrendDirection)
}

// runSurveyClose backs `fdk survey close`: flip the status, recompute
// metrics, regenerate opportunities.
func runSurveyClose(cmd *cobra.Command, configPath, idArg string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	id, err := parseID(idArg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	err = gormDB.Transaction(func(tx *gorm.DB) error {
		var survey models.Survey
		if err := tx.First(&survey, id).Error; err != nil {
			return fmt.Errorf("survey %d not found", id)
		}
		if survey.Status == models.SurveyClosed {
			return fmt.Errorf("survey %d is already closed", id)
		}
		now := time.Now()
		return tx.Model(&survey).Updates(map[string]interface{}{
			"status":    models.SurveyClosed,
			"closed_at": now,
		}).Error
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Survey %d closed\n", id)

	calc := metrics.NewCalculator(gormDB, cfg)
	result, err := calc.Calculate(cmd.Context(), id)
	if err != nil {
		return err
	}
	printMetricResult(cmd, result)

	if !result.MeetsPrivacyThreshold {
		return nil
	}

	report, err := opportunity.NewGenerator(gormDB, cfg).Generate(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Opportunities: %d created, %d updated, %d preserved\n",
		report.Created, report.Updated, report.Preserved)
	for _, s := range report.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", s.Dimension, s.Reason)
	}
	return nil
}
