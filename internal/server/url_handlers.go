package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/razorquake/razorlinks/internal/assert"
	"github.com/razorquake/razorlinks/internal/models"
)

const (
	shortCodeLength   = 8
	shortCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeAttempts   = 5
	maxClicksRange    = 366 * 24 * time.Hour

	analyticsTimeLayout = "2006-01-02T15:04:05"

	defaultQRSize = 300
	minQRSize     = 100
	maxQRSize     = 1000
)

// ShortenRequest represents a request to shorten a URL
type ShortenRequest struct {
	OriginalURL string `json:"originalUrl" binding:"required,url,max=2048"`
}

// URLMappingDetail is a short link as returned by the API
type URLMappingDetail struct {
	ID          string    `json:"id"`
	OriginalURL string    `json:"originalUrl"`
	ShortURL    string    `json:"shortUrl"`
	ClickCount  int       `json:"clickCount"`
	CreatedDate time.Time `json:"createdDate"`
	Username    string    `json:"username"`
}

func newURLMappingDetail(m *models.URLMapping, username string) URLMappingDetail {
	return URLMappingDetail{
		ID:          m.ID,
		OriginalURL: m.OriginalURL,
		ShortURL:    m.ShortURL,
		ClickCount:  m.ClickCount,
		CreatedDate: m.CreatedAt,
		Username:    username,
	}
}

func generateShortCode() (string, error) {
	limit := big.NewInt(int64(len(shortCodeAlphabet)))
	code := make([]byte, shortCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code[i] = shortCodeAlphabet[n.Int64()]
	}
	assert.Length(string(code), shortCodeLength)
	return string(code), nil
}

// @Router /api/urls/shorten [post]
// @Security BearerAuth
// @Param body body ShortenRequest true "URL to shorten"
// @Success 200 {object} URLMappingDetail
func (s *Server) shortenURL(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body", "details": err.Error()})
		return
	}

	var mapping *models.URLMapping
	for attempt := 0; attempt < maxCodeAttempts && mapping == nil; attempt++ {
		code, err := generateShortCode()
		if err != nil {
			s.internalError(c, err, "Failed to generate short code")
			return
		}

		var taken int64
		if err := s.db.Model(&models.URLMapping{}).Where("short_url = ?", code).Count(&taken).Error; err != nil {
			s.internalError(c, err, "Failed to check short code")
			return
		}
		if taken > 0 {
			continue
		}

		candidate := &models.URLMapping{
			OriginalURL: req.OriginalURL,
			ShortURL:    code,
			UserID:      sessionData.UserID,
		}
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(candidate).Error; err != nil {
				return err
			}
			return s.audit(tx, models.ActionURLCreated, sessionData.Username, candidate)
		})
		if err != nil {
			s.internalError(c, err, "Failed to create short URL")
			return
		}
		mapping = candidate
	}
	if mapping == nil {
		s.internalError(c, errors.New("short code space exhausted"), "Failed to allocate short code")
		return
	}

	s.logger.Info().
		Str("user_id", sessionData.UserID).
		Str("short_url", mapping.ShortURL).
		Msg("Short URL created")

	c.JSON(http.StatusOK, newURLMappingDetail(mapping, sessionData.Username))
}

// @Router /api/urls/myurls [get]
// @Security BearerAuth
// @Success 200 {array} URLMappingDetail
func (s *Server) listMyURLs(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	var mappings []models.URLMapping
	if err := s.db.Where("user_id = ?", sessionData.UserID).Order("created_at DESC").Find(&mappings).Error; err != nil {
		s.internalError(c, err, "Failed to list URLs")
		return
	}

	details := make([]URLMappingDetail, len(mappings))
	for i := range mappings {
		details[i] = newURLMappingDetail(&mappings[i], sessionData.Username)
	}

	c.JSON(http.StatusOK, details)
}

// @Router /api/urls/{code} [delete]
// @Security BearerAuth
// @Param code path string true "Short code"
// @Success 200 {object} map[string]interface{}
func (s *Server) deleteURL(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	mapping, ok := s.findOwnMapping(c, sessionData.UserID)
	if !ok {
		return
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("url_mapping_id = ?", mapping.ID).Delete(&models.ClickEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(mapping).Error; err != nil {
			return err
		}
		return s.audit(tx, models.ActionURLDeleted, sessionData.Username, mapping)
	})
	if err != nil {
		s.internalError(c, err, "Failed to delete short URL")
		return
	}

	s.logger.Info().
		Str("user_id", sessionData.UserID).
		Str("short_url", mapping.ShortURL).
		Msg("Short URL deleted")

	c.JSON(http.StatusOK, gin.H{"message": "Short URL deleted"})
}

// @Summary Clicks per day
// @Description Clicks on the caller's links per UTC day in [startDate, endDate]
// @Router /api/urls/totalClicks [get]
// @Security BearerAuth
// @Param startDate query string true "YYYY-MM-DD"
// @Param endDate query string true "YYYY-MM-DD"
// @Success 200 {object} map[string]int64
func (s *Server) totalClicks(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	start, err := time.Parse(time.DateOnly, c.Query("startDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "startDate must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse(time.DateOnly, c.Query("endDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "endDate must be YYYY-MM-DD"})
		return
	}
	if end.Before(start) || end.Sub(start) > maxClicksRange {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid date range"})
		return
	}
	until := end.AddDate(0, 0, 1)

	totals, err := clicksPerDay(s.db.Joins("JOIN url_mappings ON url_mappings.id = click_events.url_mapping_id").
		Where("url_mappings.user_id = ?", sessionData.UserID), start, until)
	if err != nil {
		s.internalError(c, err, "Failed to load clicks")
		return
	}

	c.JSON(http.StatusOK, totals)
}

// clicksPerDay counts the click events of query in [from, until) per UTC day.
// Only the window is read from the database.
func clicksPerDay(query *gorm.DB, from, until time.Time) (map[string]int64, error) {
	var events []models.ClickEvent
	err := query.Model(&models.ClickEvent{}).
		Select("click_events.click_date").
		Where("click_events.click_date >= ? AND click_events.click_date < ?", from.UTC(), until.UTC()).
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	totals := map[string]int64{}
	for _, e := range events {
		totals[e.ClickDate.UTC().Format(time.DateOnly)]++
	}
	return totals, nil
}

// parseAnalyticsBound accepts YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS. A date-only
// end bound covers the whole day.
func parseAnalyticsBound(value string, end bool) (time.Time, error) {
	if t, err := time.Parse(analyticsTimeLayout, value); err == nil {
		if end {
			return t.Add(time.Second), nil
		}
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		return t.AddDate(0, 0, 1), nil
	}
	return t, nil
}

// ClickEventDetail is the click count of one day
type ClickEventDetail struct {
	ClickDate string `json:"clickDate"`
	Count     int64  `json:"count"`
}

// findOwnMapping loads one of the caller's mappings by short code and writes
// the error response when it cannot
func (s *Server) findOwnMapping(c *gin.Context, userID string) (*models.URLMapping, bool) {
	code := c.Param("code")
	if err := s.validator.Var(code, "shortcode"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid short code"})
		return nil, false
	}

	var mapping models.URLMapping
	if err := s.db.Where("short_url = ? AND user_id = ?", code, userID).First(&mapping).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Short URL not found"})
			return nil, false
		}
		s.internalError(c, err, "Failed to find short URL")
		return nil, false
	}
	return &mapping, true
}

// @Summary Clicks per day of one link
// @Router /api/urls/analytics/{code} [get]
// @Security BearerAuth
// @Param code path string true "Short code"
// @Param startDate query string true "YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"
// @Param endDate query string true "YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"
// @Success 200 {array} ClickEventDetail
// @Failure 404 {object} map[string]interface{}
func (s *Server) urlAnalytics(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	from, err := parseAnalyticsBound(c.Query("startDate"), false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "startDate must be YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"})
		return
	}
	until, err := parseAnalyticsBound(c.Query("endDate"), true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "endDate must be YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"})
		return
	}
	if !until.After(from) || until.Sub(from) > maxClicksRange+24*time.Hour {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid date range"})
		return
	}

	mapping, ok := s.findOwnMapping(c, sessionData.UserID)
	if !ok {
		return
	}

	totals, err := clicksPerDay(s.db.Where("click_events.url_mapping_id = ?", mapping.ID), from, until)
	if err != nil {
		s.internalError(c, err, "Failed to load clicks")
		return
	}

	days := make([]ClickEventDetail, 0, len(totals))
	for day, count := range totals {
		days = append(days, ClickEventDetail{ClickDate: day, Count: count})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].ClickDate < days[j].ClickDate })

	c.JSON(http.StatusOK, days)
}

// @Summary QR code of a short link
// @Router /api/urls/qr/{code} [get]
// @Security BearerAuth
// @Param code path string true "Short code"
// @Param size query int false "Width and height in pixels" default(300)
// @Produce png
// @Success 200 {file} binary
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
func (s *Server) urlQRCode(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("size must be between %d and %d", minQRSize, maxQRSize)})
			return
		}
		size = n
	}

	mapping, ok := s.findOwnMapping(c, sessionData.UserID)
	if !ok {
		return
	}

	png, err := qrcode.Encode(s.config.HTTP.PublicBaseURL+"/"+mapping.ShortURL, qrcode.Medium, size)
	if err != nil {
		s.internalError(c, err, "Failed to generate QR code")
		return
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

// @Summary Follow a short link
// @Router /{code} [get]
// @Param code path string true "Short code"
// @Success 302
// @Failure 404 {object} map[string]interface{}
func (s *Server) redirect(c *gin.Context) {
	code := c.Param("code")
	if err := s.validator.Var(code, "shortcode"); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Short URL not found"})
		return
	}

	var mapping models.URLMapping
	if err := s.db.Where("short_url = ?", code).First(&mapping).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Short URL not found"})
			return
		}
		s.internalError(c, err, "Failed to find short URL")
		return
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&mapping).UpdateColumn("click_count", gorm.Expr("click_count + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Create(&models.ClickEvent{URLMappingID: mapping.ID, ClickDate: s.now().UTC()}).Error
	})
	if err != nil {
		// The visitor still gets redirected
		s.logger.Error().Err(err).Str("short_url", code).Msg("Failed to record click")
	}

	c.Redirect(http.StatusFound, mapping.OriginalURL)
}
