package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Store gives access to the repositories and runs work in a transaction.
type Store interface {
	Repositories() *Repositories
	// Transaction runs fn with repositories bound to one database transaction.
	// Returning an error from fn rolls the transaction back.
	Transaction(ctx context.Context, fn func(repos *Repositories) error) error
}

// Factory manages repository instances for one database handle
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// Repositories returns the repositories bound to the factory database handle
func (f *Factory) Repositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// Transaction implements Store
func (f *Factory) Transaction(ctx context.Context, fn func(repos *Repositories) error) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// DB returns the underlying database handle
func (f *Factory) DB() *gorm.DB {
	return f.db
}
