// Package accounts provisions subscriber accounts after a confirmed payment.
package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/app/repository"
)

// TemporaryPasswordLength is the length of generated passwords.
const TemporaryPasswordLength = 12

// Ambiguous characters (0/O, 1/l/I) are left out so the password can be read
// out over the phone.
const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ErrDuplicateAccount is returned when an account already exists for the email.
var ErrDuplicateAccount = errors.New("account already exists for this email")

// Registration is the input of RegisterWithTemporaryPassword.
type Registration struct {
	Email                 string `validate:"required,email,max=200"`
	Name                  string `validate:"required,min=2,max=150"`
	Phone                 string `validate:"max=32"`
	Plan                  string `validate:"required,oneof=mini maxi premium"`
	PaymentMethod         string `validate:"omitempty,oneof=monobank bank_transfer"`
	SubscriptionRequestID string `validate:"required"`
}

// RegistrationResult reports the outcome of a registration.
type RegistrationResult struct {
	Success           bool
	User              *models.User
	TemporaryPassword string
	Error             string
}

// Registrar creates the account and profile of a new subscriber.
type Registrar struct {
	users    repository.UserRepository
	validate *validator.Validate
	// generate is swapped in tests
	generate func(n int) (string, error)
}

// NewRegistrar creates a registrar writing through users.
func NewRegistrar(users repository.UserRepository) *Registrar {
	return &Registrar{
		users:    users,
		validate: validator.New(),
		generate: GenerateTemporaryPassword,
	}
}

// RegisterWithTemporaryPassword creates exactly one user and profile for the
// email with a generated password. ErrDuplicateAccount is returned when the
// email is taken, including when a concurrent registration wins the insert.
func (r *Registrar) RegisterWithTemporaryPassword(ctx context.Context, in Registration) (*RegistrationResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)

	if err := r.validate.Struct(in); err != nil {
		return failed(fmt.Errorf("invalid registration: %w", err))
	}

	existing, err := r.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil && existing != nil:
		return failed(ErrDuplicateAccount)
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return failed(fmt.Errorf("lookup account: %w", err))
	}

	password, err := r.generate(TemporaryPasswordLength)
	if err != nil {
		return failed(fmt.Errorf("generate password: %w", err))
	}

	user, err := models.NewSubscriber(in.Email, in.Name, in.Phone, in.Plan, password)
	if err != nil {
		return failed(fmt.Errorf("invalid registration: %w", err))
	}
	user.Profile.SubscriptionRequestID = in.SubscriptionRequestID

	if err := r.users.CreateWithProfile(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return failed(ErrDuplicateAccount)
		}
		return failed(fmt.Errorf("create account: %w", err))
	}

	log.Infof("[Accounts] created user %d for subscription request %s", user.ID, in.SubscriptionRequestID)
	return &RegistrationResult{
		Success:           true,
		User:              user,
		TemporaryPassword: password,
	}, nil
}

func failed(err error) (*RegistrationResult, error) {
	return &RegistrationResult{Success: false, Error: err.Error()}, err
}

// GenerateTemporaryPassword returns a random password of length n.
func GenerateTemporaryPassword(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("password length must be positive")
	}
	limit := big.NewInt(int64(len(passwordAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
