package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory hands out repositories over the process-wide DB handle. Components
// receive the factory (or individual repositories) through their constructors;
// there is no package-level instance.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a repository factory over an injected handle.
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// Repositories returns the singleton repository bundle for this factory.
func (f *Factory) Repositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}
