package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/db"
	"github.com/frictiondesk/frictiondesk/internal/models"
)

func newSurveyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "survey",
		Short: "Survey lifecycle commands",
	}

	cmd.AddCommand(newSurveyCreateCmd())
	cmd.AddCommand(newSurveyOpenCmd())
	cmd.AddCommand(newSurveyCloseCmd())
	cmd.AddCommand(newSurveyListCmd())
	return cmd
}

func newSurveyCreateCmd() *cobra.Command {
	var (
		configPath string
		teamName   string
		title      string
		activate   bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a survey for a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := openDB(configPath)
			if err != nil {
				return err
			}

			var team models.Team
			if err := gormDB.Where("name = ?", teamName).First(&team).Error; err != nil {
				return fmt.Errorf("team %q not found (run `fdk db init --team %q` first)", teamName, teamName)
			}

			if title == "" {
				title = fmt.Sprintf("%s friction survey %s", team.Name, time.Now().Format("2006-01"))
			}
			status := models.SurveyDraft
			if activate {
				status = models.SurveyActive
			}

			survey := models.Survey{TeamID: team.ID, Title: title, Status: status}
			if err := gormDB.Create(&survey).Error; err != nil {
				return fmt.Errorf("create survey: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created survey %d (%s) for team %q, status %s\n",
				survey.ID, survey.Title, team.Name, survey.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	cmd.Flags().StringVarP(&teamName, "team", "t", "", "team name")
	cmd.Flags().StringVar(&title, "title", "", "survey title")
	cmd.Flags().BoolVar(&activate, "activate", false, "open the survey for responses immediately")
	cmd.MarkFlagRequired("team")
	return cmd
}

func newSurveyOpenCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "open <survey-id>",
		Short: "Open a draft survey for responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := openDB(configPath)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return gormDB.Transaction(func(tx *gorm.DB) error {
				var survey models.Survey
				if err := tx.First(&survey, id).Error; err != nil {
					return fmt.Errorf("survey %d not found", id)
				}
				if survey.Status != models.SurveyDraft {
					return fmt.Errorf("survey %d is %s, only drafts can be opened", id, survey.Status)
				}
				if err := tx.Model(&survey).Update("status", models.SurveyActive).Error; err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Survey %d is now active\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	return cmd
}

func newSurveyCloseCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "close <survey-id>",
		Short: "Close a survey and recompute its metrics",
		Long:  "Closes the survey, recomputes team metrics, and regenerates RICE opportunities from the final respondent pool.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSurveyClose(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	return cmd
}

func newSurveyListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List surveys",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := openDB(configPath)
			if err != nil {
				return err
			}

			var surveys []models.Survey
			if err := gormDB.Preload("Team").Order("id").Find(&surveys).Error; err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(surveys) == 0 {
				fmt.Fprintln(out, "No surveys.")
				return nil
			}
			for _, s := range surveys {
				fmt.Fprintf(out, "%4d  %-8s  %-20s  %s\n", s.ID, s.Status, s.Team.Name, s.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frictiondesk.yaml", "path to Frictiondesk config file")
	return cmd
}

func openDB(configPath string) (*gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return db.Connect(cfg.Database)
}

func parseID(s string) (uint, error) {
	var id uint
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
