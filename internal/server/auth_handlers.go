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

const verificationTokenTTL = 24 * time.Hour

const msgVerifyFirst = "Please verify your email address before logging in. Check your inbox for the verification link."

// RegisterRequest represents a sign-up request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20,alphanum"`
	Email    string `json:"email" binding:"required,email,max=50"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token string   `json:"token"`
	Roles []string `json:"roles"`
}

// MessageResponse is the generic {message, status} body
type MessageResponse struct {
	Message string `json:"message"`
	Status  bool   `json:"status"`
}

// VerifyEmailResponse carries a login token for the newly enabled account
type VerifyEmailResponse struct {
	Message string   `json:"message"`
	Status  bool     `json:"status"`
	Token   string   `json:"token,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// ResendVerificationRequest names the account to mail again
type ResendVerificationRequest struct {
	Username string `json:"username" binding:"required"`
}

// UserDetail represents user information returned in responses
type UserDetail struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Enabled          bool     `json:"enabled"`
	TwoFactorEnabled bool     `json:"twoFactorEnabled"`
	Roles            []string `json:"roles"`
}

func newUserDetail(u *models.User) UserDetail {
	return UserDetail{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Enabled:          u.Enabled,
		TwoFactorEnabled: u.TwoFactorEnabled,
		Roles:            u.RoleList(),
	}
}

func (s *Server) internalError(c *gin.Context, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

// currentUser loads the user behind the request session
func (s *Server) currentUser(c *gin.Context) (*models.User, bool) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return nil, false
	}

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		s.internalError(c, err, "Failed to find user")
		return nil, false
	}
	return &user, true
}

// @Summary Register
// @Description Creates a disabled account and mails a verification link. The first account is an admin.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Register request"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} MessageResponse
// @Router /api/auth/public/register [post]
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: err.Error()})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internalError(c, err, "Failed to hash password")
		return
	}

	var (
		user  *models.User
		token *models.EmailVerificationToken
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("username = ? OR email = ?", req.Username, req.Email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return errConflict
		}

		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return err
		}
		roles := models.RoleUser
		if count == 0 {
			roles = models.RoleUser + "," + models.RoleAdmin
		}

		user = &models.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: passwordHash,
			Roles:        roles,
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		token, err = s.newVerificationToken(tx, user)
		if err != nil {
			return err
		}
		return s.audit(tx, models.ActionUserRegistered, user.Username, nil)
	})
	if errors.Is(err, errConflict) {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "Username or email is already taken"})
		return
	}
	if err != nil {
		s.internalError(c, err, "Failed to register user")
		return
	}

	s.enqueueVerificationEmail(c, user, token)

	s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("User registered")

	c.JSON(http.StatusOK, MessageResponse{
		Message: "User registered successfully! Please check your email to verify your account.",
		Status:  true,
	})
}

var errConflict = errors.New("conflict")

func (s *Server) newVerificationToken(tx *gorm.DB, user *models.User) (*models.EmailVerificationToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}

	token := &models.EmailVerificationToken{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(verificationTokenTTL),
	}
	if err := tx.Create(token).Error; err != nil {
		return nil, err
	}
	return token, nil
}

// enqueueVerificationEmail hands delivery to the worker. Failure is logged
// only; the user can ask for another mail.
func (s *Server) enqueueVerificationEmail(c *gin.Context, user *models.User, token *models.EmailVerificationToken) {
	task, err := tasks.NewSendVerificationEmailTask(tasks.VerificationEmailPayload{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Link:     s.config.HTTP.FrontendURL + "/verify-email?token=" + url.QueryEscape(token.Token),
	})
	if err == nil {
		_, err = s.tasks.EnqueueContext(c.Request.Context(), task)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to enqueue verification email")
	}
}

// @Summary Login
// @Description Authenticate with username and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} MessageResponse
// @Router /api/auth/public/login [post]
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: err.Error()})
		return
	}

	var user models.User
	if err := s.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, MessageResponse{Message: "Bad credentials"})
			return
		}
		s.internalError(c, err, "Failed to find user")
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, MessageResponse{Message: "Bad credentials"})
		return
	}

	if !user.Enabled {
		c.JSON(http.StatusUnauthorized, MessageResponse{Message: msgVerifyFirst})
		return
	}

	token, err := s.issuer.GenerateToken(user.Username, user.RoleList(), user.TwoFactorEnabled)
	if err != nil {
		s.internalError(c, err, "Failed to generate token")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("User logged in")

	c.JSON(http.StatusOK, LoginResponse{Token: token, Roles: user.RoleList()})
}

// @Summary Verify 2FA code at login
// @Tags auth
// @Accept x-www-form-urlencoded
// @Param code formData string true "TOTP code"
// @Param jwtToken formData string true "Token returned by login"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} MessageResponse
// @Router /api/auth/public/verify-2fa-login [post]
func (s *Server) verifyTwoFactorLogin(c *gin.Context) {
	claims, err := s.issuer.ValidateToken(c.PostForm("jwtToken"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, MessageResponse{Message: "Invalid or expired token"})
		return
	}

	var user models.User
	if err := s.db.Where("username = ?", claims.Subject).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, MessageResponse{Message: "User not found"})
		return
	}

	ok, err := auth.VerifyTOTP(user.TwoFactorSecret, c.PostForm("code"), s.now())
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, MessageResponse{Message: "Invalid 2FA Code"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "2FA Verified", Status: true})
}

// @Summary Verify email
// @Description Enables the account and returns a login token
// @Tags auth
// @Produce json
// @Param token query string true "Verification token"
// @Success 200 {object} VerifyEmailResponse
// @Failure 400 {object} VerifyEmailResponse
// @Router /api/auth/public/verify-email [get]
func (s *Server) verifyEmail(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		c.JSON(http.StatusBadRequest, VerifyEmailResponse{Message: "Verification token is required"})
		return
	}

	var token models.EmailVerificationToken
	if err := s.db.Preload("User").Where("token = ?", raw).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, VerifyEmailResponse{Message: "Invalid verification token"})
			return
		}
		s.internalError(c, err, "Failed to find verification token")
		return
	}

	if token.Expired(s.now()) {
		s.db.Delete(&token)
		c.JSON(http.StatusBadRequest, VerifyEmailResponse{Message: "Verification token has expired. Please request a new one."})
		return
	}

	user := token.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("enabled", true).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.EmailVerificationToken{}).Error; err != nil {
			return err
		}
		return s.audit(tx, models.ActionUserVerified, user.Username, nil)
	})
	if err != nil {
		s.internalError(c, err, "Failed to verify email")
		return
	}

	jwtToken, err := s.issuer.GenerateToken(user.Username, user.RoleList(), user.TwoFactorEnabled)
	if err != nil {
		s.internalError(c, err, "Failed to generate token")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Email verified")

	c.JSON(http.StatusOK, VerifyEmailResponse{
		Message: "Email verified successfully! You are now logged in.",
		Status:  true,
		Token:   jwtToken,
		Roles:   user.RoleList(),
	})
}

// @Summary Resend verification email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResendVerificationRequest true "Account"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} MessageResponse
// @Router /api/auth/public/resend-verification [post]
func (s *Server) resendVerification(c *gin.Context) {
	var req ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: err.Error()})
		return
	}

	var user models.User
	if err := s.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, MessageResponse{Message: "User not found"})
			return
		}
		s.internalError(c, err, "Failed to find user")
		return
	}

	if user.Enabled {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "Email is already verified"})
		return
	}

	var token *models.EmailVerificationToken
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.EmailVerificationToken{}).Error; err != nil {
			return err
		}
		var err error
		token, err = s.newVerificationToken(tx, &user)
		return err
	})
	if err != nil {
		s.internalError(c, err, "Failed to create verification token")
		return
	}

	s.enqueueVerificationEmail(c, &user, token)

	c.JSON(http.StatusOK, MessageResponse{
		Message: "Verification email sent successfully. Please check your email.",
		Status:  true,
	})
}

// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserDetail
// @Failure 401 {object} MessageResponse
// @Router /api/auth/user [get]
func (s *Server) getCurrentUser(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newUserDetail(user))
}

// @Router /api/auth/user/2fa-status [get]
// @Security BearerAuth
// @Success 200 {object} map[string]bool
func (s *Server) twoFactorStatus(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"is2faEnabled": user.TwoFactorEnabled})
}

// @Summary Start 2FA enrollment
// @Description Stores a new secret and returns its otpauth URL as plain text
// @Router /api/auth/enable-2fa [post]
// @Security BearerAuth
// @Produce plain
// @Success 200 {string} string
func (s *Server) enableTwoFactor(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}

	secret, err := auth.GenerateTOTPSecret()
	if err != nil {
		s.internalError(c, err, "Failed to generate 2FA secret")
		return
	}

	if err := s.db.Model(user).Update("two_factor_secret", secret).Error; err != nil {
		s.internalError(c, err, "Failed to store 2FA secret")
		return
	}

	c.String(http.StatusOK, auth.TOTPProvisionURL(s.config.Auth.Issuer, user.Username, secret))
}

// @Summary Confirm 2FA enrollment
// @Description A bad code answers 400 so the caller's session stays valid
// @Router /api/auth/verify-2fa [post]
// @Security BearerAuth
// @Param code formData string true "TOTP code"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} MessageResponse
func (s *Server) verifyTwoFactor(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}

	if user.TwoFactorSecret == "" {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "2FA enrollment has not been started"})
		return
	}

	valid, err := auth.VerifyTOTP(user.TwoFactorSecret, strings.TrimSpace(c.PostForm("code")), s.now())
	if err != nil || !valid {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "Invalid 2FA Code"})
		return
	}

	if err := s.db.Model(user).Update("two_factor_enabled", true).Error; err != nil {
		s.internalError(c, err, "Failed to enable 2FA")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "2FA Verified", Status: true})
}

// @Router /api/auth/disable-2fa [post]
// @Security BearerAuth
// @Success 200 {object} MessageResponse
func (s *Server) disableTwoFactor(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}

	if err := s.db.Model(user).Updates(map[string]any{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	}).Error; err != nil {
		s.internalError(c, err, "Failed to disable 2FA")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "2FA disabled", Status: true})
}
