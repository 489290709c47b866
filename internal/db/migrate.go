package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Team{},
		&models.Survey{},
		&models.Response{},
		&models.Answer{},
		&models.ChatSession{},
		&models.ChatMessage{},
		&models.ChatExtractedRating{},
		&models.ChatSummary{},
		&models.MetricResult{},
		&models.Opportunity{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedTeam upserts a team by name, used by `fdk db init` for first-run
// setup.
func SeedTeam(db *gorm.DB, name, occupation string, memberCount int) (*models.Team, error) {
	team := models.Team{
		Name:        name,
		Occupation:  occupation,
		MemberCount: memberCount,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"occupation", "member_count"}),
	}).Create(&team)
	if result.Error != nil {
		return nil, fmt.Errorf("db: seed team %q: %w", name, result.Error)
	}
	if team.ID == 0 {
		if err := db.Where("name = ?", name).First(&team).Error; err != nil {
			return nil, fmt.Errorf("db: reload team %q: %w", name, err)
		}
	}
	return &team, nil
}
