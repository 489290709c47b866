package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SweepAbandoned marks every non-terminal session whose last activity is
// older than window as abandoned. The status guard in the WHERE clause
// makes the sweep safe to run concurrently with live turns: a session that
// completed between read and write is left alone, and once a row is
// abandoned the engine rejects all further writes to it.
func SweepAbandoned(db *gorm.DB, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)

	result := db.Model(&models.ChatSession{}).
		Where("status IN ? AND last_activity_at < ?",
			[]models.ChatSessionStatus{models.SessionStarted, models.SessionInProgress, models.SessionRatingConfirmation},
			cutoff).
		Update("status", models.SessionAbandoned)
	if result.Error != nil {
		return 0, fmt.Errorf("chat: sweep abandoned: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.WithField("count", result.RowsAffected).Info("chat: sessions abandoned by sweep")
	}
	return result.RowsAffected, nil
}

// RunSweeper runs the abandonment sweep on a cron schedule until ctx is
// cancelled.
func RunSweeper(ctx context.Context, db *gorm.DB, cronExpr string, window time.Duration) error {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("chat: parse sweep cron %q: %w", cronExpr, err)
	}

	for {
		next := sched.Next(time.Now())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		if _, err := SweepAbandoned(db, window); err != nil {
			log.WithError(err).Error("chat: sweep run failed")
		}
	}
}
