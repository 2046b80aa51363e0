package server

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/razorquake/razorlinks/internal/auth"
	"github.com/razorquake/razorlinks/internal/models"
	"github.com/razorquake/razorlinks/internal/tasks"
)

const passwordResetTokenTTL = time.Hour

// ResetPasswordRequest redeems a password reset token
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6,max=72"`
}

// @Summary Request a password reset
// @Description Mails a reset link to a verified account. Unknown addresses get the same answer.
// @Tags auth
// @Accept x-www-form-urlencoded
// @Param email formData string true "Account email"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} MessageResponse
// @Router /api/auth/public/forgot-password [post]
func (s *Server) forgotPassword(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	if email == "" {
		email = strings.TrimSpace(c.Query("email"))
	}
	if err := s.validator.Var(email, "required,email"); err != nil {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "A valid email address is required"})
		return
	}

	sent := MessageResponse{Message: "Password reset email sent to " + email, Status: true}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug().Str("email", email).Msg("Password reset requested for unknown email")
			c.JSON(http.StatusOK, sent)
			return
		}
		s.internalError(c, err, "Failed to find user")
		return
	}

	if !user.Enabled {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: msgVerifyFirst})
		return
	}

	var token *models.PasswordResetToken
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// One live token per user
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return err
		}
		token = &models.PasswordResetToken{
			Token:     base64.RawURLEncoding.EncodeToString(raw),
			UserID:    user.ID,
			ExpiresAt: s.now().Add(passwordResetTokenTTL),
		}
		return tx.Create(token).Error
	})
	if err != nil {
		s.internalError(c, err, "Failed to create password reset token")
		return
	}

	task, err := tasks.NewSendPasswordResetEmailTask(tasks.PasswordResetEmailPayload{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Link:     s.config.HTTP.FrontendURL + "/reset-password?token=" + url.QueryEscape(token.Token),
	})
	if err == nil {
		_, err = s.tasks.EnqueueContext(c.Request.Context(), task)
	}
	if err != nil {
		s.internalError(c, err, "Failed to enqueue password reset email")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Password reset requested")

	c.JSON(http.StatusOK, sent)
}

// @Summary Reset password
// @Description Redeems a reset token once and sets a new password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Token and new password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} MessageResponse
// @Router /api/auth/public/reset-password [post]
func (s *Server) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: err.Error()})
		return
	}

	var token models.PasswordResetToken
	if err := s.db.Preload("User").Where("token = ?", req.Token).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, MessageResponse{Message: "Invalid password reset token"})
			return
		}
		s.internalError(c, err, "Failed to find password reset token")
		return
	}

	now := s.now()
	switch {
	case token.Used():
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "Token has already been used"})
		return
	case token.Expired(now):
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "Password reset token has expired"})
		return
	}

	user := token.User
	if auth.VerifyPassword(req.NewPassword, user.PasswordHash) == nil {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "New password must be different from the old password"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.internalError(c, err, "Failed to hash password")
		return
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// The used_at guard keeps two concurrent redeems from both succeeding
		result := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", token.ID).
			Update("used_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errConflict
		}
		if err := tx.Model(&user).Update("password_hash", hash).Error; err != nil {
			return err
		}
		return s.audit(tx, models.ActionPasswordReset, user.Username, nil)
	})
	if errors.Is(err, errConflict) {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "Token has already been used"})
		return
	}
	if err != nil {
		s.internalError(c, err, "Failed to reset password")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Password reset")

	c.JSON(http.StatusOK, MessageResponse{Message: "Password has been reset successfully", Status: true})
}
