package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/razorquake/razorlinks/internal/models"
)

// AuditLogDetail is an audit entry as returned by the API
type AuditLogDetail struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	Username     string    `json:"username"`
	URLMappingID string    `json:"urlMappingId,omitempty"`
	ShortURL     string    `json:"shortUrl,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// audit records an action inside the caller's transaction
func (s *Server) audit(tx *gorm.DB, action, username string, mapping *models.URLMapping) error {
	entry := &models.AuditLog{Action: action, Username: username}
	if mapping != nil {
		entry.URLMappingID = mapping.ID
		entry.ShortURL = mapping.ShortURL
	}
	return tx.Create(entry).Error
}

func (s *Server) respondAuditLogs(c *gin.Context, query *gorm.DB) {
	var logs []models.AuditLog
	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		s.internalError(c, err, "Failed to list audit logs")
		return
	}

	details := make([]AuditLogDetail, len(logs))
	for i, l := range logs {
		details[i] = AuditLogDetail{
			ID:           l.ID,
			Action:       l.Action,
			Username:     l.Username,
			URLMappingID: l.URLMappingID,
			ShortURL:     l.ShortURL,
			Timestamp:    l.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, details)
}

// @Router /api/audit [get]
// @Security BearerAuth
// @Success 200 {array} AuditLogDetail
// @Failure 403 {object} map[string]interface{}
func (s *Server) listAuditLogs(c *gin.Context) {
	s.respondAuditLogs(c, s.db)
}

// @Router /api/audit/urls/{id} [get]
// @Security BearerAuth
// @Param id path string true "URL mapping ID"
// @Success 200 {array} AuditLogDetail
// @Failure 403 {object} map[string]interface{}
func (s *Server) listAuditLogsForURL(c *gin.Context) {
	s.respondAuditLogs(c, s.db.Where("url_mapping_id = ?", c.Param("id")))
}
