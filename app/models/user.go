package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User is the authentication identity of a subscriber.
type User struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Email              string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password           string         `gorm:"type:text" json:"-" validate:"required"`
	MustChangePassword bool           `gorm:"default:false" json:"must_change_password"`
	LastLoginAt        *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	Profile            *Profile       `gorm:"foreignKey:UserID" json:"profile,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// Profile holds the storefront data of a user: role, plan and contact details.
type Profile struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Name                  string    `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Phone                 string    `gorm:"type:varchar(32)" json:"phone" validate:"max=32"`
	Role                  string    `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	SubscriptionType      string    `gorm:"type:varchar(20)" json:"subscription_type" validate:"oneof=mini maxi premium"`
	Status                string    `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	SubscriptionRequestID string    `gorm:"type:varchar(36);default:''" json:"subscription_request_id"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func (p *Profile) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// NewSubscriber builds an active user with a profile for the given plan. The
// password is hashed and flagged for change on first login.
func NewSubscriber(email, name, phone, plan, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:              email,
		Password:           pw,
		MustChangePassword: true,
		Profile: &Profile{
			Name:             name,
			Phone:            phone,
			Role:             ROLE_USER,
			SubscriptionType: plan,
			Status:           STATUS_ACTIVE,
		},
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := u.Profile.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}

// IsActive reports whether the profile status is active
func (u *User) IsActive() bool {
	return u.Profile != nil && u.Profile.Status == STATUS_ACTIVE
}
