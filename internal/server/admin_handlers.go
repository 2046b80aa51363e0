package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/razorquake/razorlinks/internal/models"
)

var errLastAdmin = errors.New("last admin")

// rolesFor maps a role name to the stored role list. Admins keep ROLE_USER.
func rolesFor(roleName string) (string, bool) {
	switch roleName {
	case models.RoleUser:
		return models.RoleUser, true
	case models.RoleAdmin:
		return models.RoleUser + "," + models.RoleAdmin, true
	}
	return "", false
}

// formOrQuery reads a parameter from the form body, then the query string
func formOrQuery(c *gin.Context, key string) string {
	if v := strings.TrimSpace(c.PostForm(key)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query(key))
}

// @Summary List users
// @Tags admin
// @Security BearerAuth
// @Success 200 {array} UserDetail
// @Failure 403 {object} map[string]interface{}
// @Router /api/admin/get-users [get]
func (s *Server) listUsers(c *gin.Context) {
	var users []models.User
	if err := s.db.Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		s.internalError(c, err, "Failed to list users")
		return
	}

	details := make([]UserDetail, len(users))
	for i := range users {
		details[i] = newUserDetail(&users[i])
	}
	c.JSON(http.StatusOK, details)
}

// @Summary Get user
// @Tags admin
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} UserDetail
// @Failure 404 {object} MessageResponse
// @Router /api/admin/user/{id} [get]
func (s *Server) getUser(c *gin.Context) {
	var user models.User
	if err := models.FindByID(s.db, c.Param("id"), &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, MessageResponse{Message: "User not found"})
			return
		}
		s.internalError(c, err, "Failed to find user")
		return
	}
	c.JSON(http.StatusOK, newUserDetail(&user))
}

// @Summary Change a user's role
// @Description The new role applies to the user's live tokens at once. The last admin cannot be demoted.
// @Tags admin
// @Security BearerAuth
// @Param userId formData string true "User ID"
// @Param roleName formData string true "ROLE_USER or ROLE_ADMIN"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Router /api/admin/update-role [put]
func (s *Server) updateUserRole(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	userID := formOrQuery(c, "userId")
	roleName := formOrQuery(c, "roleName")
	roles, ok := rolesFor(roleName)
	if userID == "" || !ok {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "userId and roleName (ROLE_USER or ROLE_ADMIN) are required"})
		return
	}

	var user models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := models.FindByID(tx, userID, &user); err != nil {
			return err
		}

		if user.IsAdmin() && roleName != models.RoleAdmin {
			var admins int64
			if err := tx.Model(&models.User{}).
				Where("(',' || roles || ',') LIKE ?", "%,"+models.RoleAdmin+",%").
				Count(&admins).Error; err != nil {
				return err
			}
			if admins <= 1 {
				return errLastAdmin
			}
		}

		if err := tx.Model(&user).Update("roles", roles).Error; err != nil {
			return err
		}
		return s.audit(tx, models.ActionRoleUpdated, user.Username, nil)
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, MessageResponse{Message: "User not found"})
		return
	case errors.Is(err, errLastAdmin):
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "Cannot remove the last admin"})
		return
	case err != nil:
		s.internalError(c, err, "Failed to update role")
		return
	}

	s.logger.Info().
		Str("admin", sessionData.Username).
		Str("user_id", user.ID).
		Str("role", roleName).
		Msg("User role updated")

	c.JSON(http.StatusOK, MessageResponse{Message: "User role updated", Status: true})
}
