package repository

import (
	"gorm.io/gorm"

	"github.com/obafemi/settlecore/internal/pkg/database"
)

// UnitOfWork scopes repository operations to one transaction. Acquire via an
// Opener, defer Rollback, and Commit on the success path; Rollback after
// Commit is a no-op so the deferred call covers errors and panics.
type UnitOfWork interface {
	Repos() *Repositories
	Commit() error
	Rollback()
}

// Opener begins units of work. Services take this through their constructor
// instead of a raw DB handle so tests can substitute an in-memory store.
type Opener interface {
	Begin() (UnitOfWork, error)
}

type gormUnitOfWork struct {
	uow   *database.UnitOfWork
	repos *Repositories
}

func (u *gormUnitOfWork) Repos() *Repositories { return u.repos }
func (u *gormUnitOfWork) Commit() error        { return u.uow.Commit() }
func (u *gormUnitOfWork) Rollback()            { u.uow.Rollback() }

type gormOpener struct {
	db *gorm.DB
}

// NewOpener creates an Opener over the injected DB handle.
func NewOpener(db *gorm.DB) Opener {
	return &gormOpener{db: db}
}

func (o *gormOpener) Begin() (UnitOfWork, error) {
	uow, err := database.Begin(o.db)
	if err != nil {
		return nil, err
	}
	return &gormUnitOfWork{uow: uow, repos: NewRepositories(uow.DB())}, nil
}
