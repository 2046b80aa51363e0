package workers

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/razorquake/razorlinks/internal/models"
)

// StartTokenCleanup schedules PurgeExpiredTokens. The caller stops the
// returned scheduler on shutdown.
func StartTokenCleanup(db *gorm.DB, schedule string, logger zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		purged, err := PurgeExpiredTokens(db, time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to purge expired tokens")
			return
		}
		if purged > 0 {
			logger.Info().Int64("purged", purged).Msg("Purged expired tokens")
		} else {
			logger.Debug().Msg("No expired tokens")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	c.Start()
	logger.Info().Str("schedule", schedule).Msg("Token cleanup scheduled")
	return c, nil
}

// PurgeExpiredTokens deletes verification tokens that expired before now and
// password reset tokens that expired or were redeemed
func PurgeExpiredTokens(db *gorm.DB, now time.Time) (int64, error) {
	verification := db.Where("expires_at <= ?", now).Delete(&models.EmailVerificationToken{})
	if verification.Error != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", verification.Error)
	}

	reset := db.Where("expires_at <= ? OR used_at IS NOT NULL", now).Delete(&models.PasswordResetToken{})
	if reset.Error != nil {
		return verification.RowsAffected, fmt.Errorf("failed to delete expired password reset tokens: %w", reset.Error)
	}
	return verification.RowsAffected + reset.RowsAffected, nil
}
