package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
)

type fakeUsers struct {
	mu        sync.Mutex
	byEmail   map[string]*models.User
	nextID    uint
	lookupErr error
	createErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: map[string]*models.User{}}
}

func (f *fakeUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (f *fakeUsers) CreateWithProfile(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return gorm.ErrDuplicatedKey
	}
	f.nextID++
	user.ID = f.nextID
	user.Profile.UserID = user.ID
	f.byEmail[user.Email] = user
	return nil
}

func validRegistration() Registration {
	return Registration{
		Email:                 "Olena@Example.com ",
		Name:                  "Olena Petrenko",
		Phone:                 "+380501234567",
		Plan:                  models.PLAN_MINI,
		PaymentMethod:         models.PAYMENT_METHOD_MONOBANK,
		SubscriptionRequestID: "req-1",
	}
}

func TestRegisterWithTemporaryPassword(t *testing.T) {
	users := newFakeUsers()
	r := NewRegistrar(users)

	res, err := r.RegisterWithTemporaryPassword(context.Background(), validRegistration())
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Len(t, res.TemporaryPassword, TemporaryPasswordLength)
	assert.Equal(t, "olena@example.com", res.User.Email)
	assert.True(t, res.User.MustChangePassword)
	assert.True(t, res.User.CheckPassword(res.TemporaryPassword))
	require.NotNil(t, res.User.Profile)
	assert.Equal(t, models.ROLE_USER, res.User.Profile.Role)
	assert.Equal(t, models.PLAN_MINI, res.User.Profile.SubscriptionType)
	assert.Equal(t, models.STATUS_ACTIVE, res.User.Profile.Status)
	assert.Equal(t, "req-1", res.User.Profile.SubscriptionRequestID)
}

func TestRegisterWithTemporaryPassword_Duplicate(t *testing.T) {
	users := newFakeUsers()
	r := NewRegistrar(users)

	_, err := r.RegisterWithTemporaryPassword(context.Background(), validRegistration())
	require.NoError(t, err)

	res, err := r.RegisterWithTemporaryPassword(context.Background(), validRegistration())
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestRegisterWithTemporaryPassword_ConcurrentInsertIsDuplicate(t *testing.T) {
	users := newFakeUsers()
	users.createErr = gorm.ErrDuplicatedKey
	r := NewRegistrar(users)

	_, err := r.RegisterWithTemporaryPassword(context.Background(), validRegistration())
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestRegisterWithTemporaryPassword_Errors(t *testing.T) {
	users := newFakeUsers()
	r := NewRegistrar(users)

	in := validRegistration()
	in.Plan = "gold"
	res, err := r.RegisterWithTemporaryPassword(context.Background(), in)
	require.Error(t, err)
	assert.False(t, res.Success)

	users.lookupErr = errors.New("connection reset")
	_, err = r.RegisterWithTemporaryPassword(context.Background(), validRegistration())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateAccount)

	users.lookupErr = nil
	r.generate = func(int) (string, error) { return "", errors.New("entropy") }
	_, err = r.RegisterWithTemporaryPassword(context.Background(), validRegistration())
	assert.Error(t, err)
}

func TestGenerateTemporaryPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		pw, err := GenerateTemporaryPassword(TemporaryPasswordLength)
		require.NoError(t, err)
		assert.Len(t, pw, TemporaryPasswordLength)
		for _, c := range pw {
			assert.True(t, strings.ContainsRune(passwordAlphabet, c))
		}
		seen[pw] = true
	}
	assert.Greater(t, len(seen), 45)

	_, err := GenerateTemporaryPassword(0)
	assert.Error(t, err)
}
