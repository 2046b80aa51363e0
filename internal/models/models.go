package models

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Role names carried in the JWT roles claim
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// Audit actions
const (
	ActionURLCreated     = "URL_CREATED"
	ActionURLDeleted     = "URL_DELETED"
	ActionUserRegistered = "USER_REGISTERED"
	ActionUserVerified   = "USER_VERIFIED"
	ActionPasswordReset  = "PASSWORD_RESET"
	ActionRoleUpdated    = "ROLE_UPDATED"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Settings is a singleton row holding values generated on first start
type Settings struct {
	BaseModel
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // 64 hex chars
}

// User represents a local account
type User struct {
	BaseModel
	Username         string    `json:"username" gorm:"uniqueIndex;not null"`
	Email            string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash     string    `json:"-" gorm:"not null"`
	Roles            string    `json:"-" gorm:"not null;default:ROLE_USER"` // comma-separated
	Enabled          bool      `json:"enabled" gorm:"not null;default:false"`
	TwoFactorEnabled bool      `json:"two_factor_enabled" gorm:"not null;default:false"`
	TwoFactorSecret  string    `json:"-"` // base32, set by enable-2fa
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RoleList splits the stored roles
func (u *User) RoleList() []string {
	var roles []string
	for _, r := range strings.Split(u.Roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// IsAdmin reports whether the user holds ROLE_ADMIN
func (u *User) IsAdmin() bool {
	for _, r := range u.RoleList() {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// EmailVerificationToken is a single-use token mailed after registration
type EmailVerificationToken struct {
	BaseModel
	Token     string    `json:"-" gorm:"uniqueIndex;not null"`
	UserID    string    `json:"user_id" gorm:"not null;index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`

	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Expired reports whether the token can no longer be redeemed
func (t *EmailVerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// PasswordResetToken is a single-use token mailed by forgot-password
type PasswordResetToken struct {
	BaseModel
	Token     string     `json:"-" gorm:"uniqueIndex;not null"`
	UserID    string     `json:"user_id" gorm:"not null;index"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt    *time.Time `json:"used_at"`

	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Expired reports whether the token can no longer be redeemed
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Used reports whether the token was already redeemed
func (t *PasswordResetToken) Used() bool {
	return t.UsedAt != nil
}

// URLMapping maps a short code to its destination
type URLMapping struct {
	BaseModel
	OriginalURL string `json:"original_url" gorm:"type:text;not null"`
	ShortURL    string `json:"short_url" gorm:"uniqueIndex;type:varchar(16);not null"`
	ClickCount  int    `json:"click_count" gorm:"not null;default:0"`
	UserID      string `json:"user_id" gorm:"not null;index"`

	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// ClickEvent records one redirect through a short link
type ClickEvent struct {
	BaseModel
	URLMappingID string    `json:"url_mapping_id" gorm:"not null;index"`
	ClickDate    time.Time `json:"click_date" gorm:"not null;index"`

	URLMapping URLMapping `json:"-" gorm:"foreignKey:URLMappingID;constraint:OnDelete:CASCADE"`
}

// AuditLog records user-visible state changes. URL fields are kept as plain
// values so entries outlive the mapping they describe.
type AuditLog struct {
	BaseModel
	Action       string `json:"action" gorm:"not null;index"`
	Username     string `json:"username" gorm:"not null"`
	URLMappingID string `json:"url_mapping_id" gorm:"index"`
	ShortURL     string `json:"short_url"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	// Collect all models
	models := []interface{}{
		&Settings{}, &User{}, &EmailVerificationToken{}, &PasswordResetToken{}, &URLMapping{}, &ClickEvent{}, &AuditLog{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
