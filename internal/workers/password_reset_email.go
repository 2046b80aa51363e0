package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/razorquake/razorlinks/internal/assert"
	"github.com/razorquake/razorlinks/internal/models"
	"github.com/razorquake/razorlinks/internal/tasks"
)

// HandleSendPasswordResetEmail delivers a password reset link to a verified account
func HandleSendPasswordResetEmail(ctx context.Context, t *asynq.Task, db *gorm.DB, mailer Mailer, logger zerolog.Logger) error {
	payload, err := tasks.ParsePasswordResetEmailPayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w: %w", err, asynq.SkipRetry)
	}

	assert.NotEmpty(payload.Link, "password reset link")

	var user models.User
	if err := models.FindByID(db.WithContext(ctx), payload.UserID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Str("user_id", payload.UserID).Msg("User gone - dropping password reset email")
			return nil
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	if !user.Enabled {
		logger.Warn().Str("user_id", user.ID).Msg("User not verified - skipping password reset email")
		return nil
	}

	body := fmt.Sprintf("Hi %s,\n\nSomeone asked to reset the password of your RazorLinks account. Choose a new one here:\n\n%s\n\nThe link expires in 1 hour. If you did not ask for this, ignore this email.\n",
		payload.Username, payload.Link)
	if err := mailer.Send(ctx, payload.Email, "Reset your RazorLinks password", body); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	logger.Info().
		Str("user_id", user.ID).
		Str("email", payload.Email).
		Msg("Password reset email sent")

	return nil
}
