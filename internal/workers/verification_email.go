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

// Mailer delivers a rendered message
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	Logger zerolog.Logger
}

// Send logs the message
func (m LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.Logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("Email delivered")
	return nil
}

// HandleSendVerificationEmail delivers the verification link for a pending account
func HandleSendVerificationEmail(ctx context.Context, t *asynq.Task, db *gorm.DB, mailer Mailer, logger zerolog.Logger) error {
	payload, err := tasks.ParseVerificationEmailPayload(t)
	if err != nil {
		// A malformed payload never becomes valid
		return fmt.Errorf("failed to parse payload: %w: %w", err, asynq.SkipRetry)
	}

	assert.NotEmpty(payload.Link, "verification link")

	var user models.User
	if err := models.FindByID(db.WithContext(ctx), payload.UserID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Str("user_id", payload.UserID).Msg("User gone - dropping verification email")
			return nil
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	if user.Enabled {
		logger.Debug().Str("user_id", user.ID).Msg("User already verified - skipping email")
		return nil
	}

	body := fmt.Sprintf("Hi %s,\n\nConfirm your email address to activate your RazorLinks account:\n\n%s\n\nThe link expires in 24 hours.\n",
		payload.Username, payload.Link)
	if err := mailer.Send(ctx, payload.Email, "Verify your RazorLinks account", body); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	logger.Info().
		Str("user_id", user.ID).
		Str("email", payload.Email).
		Msg("Verification email sent")

	return nil
}
