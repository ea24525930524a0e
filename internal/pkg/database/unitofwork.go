package database

import "gorm.io/gorm"

// UnitOfWork is a scoped database transaction. Acquire it with Begin, defer
// Rollback, and call Commit on the success path:
//
//	uow, err := database.Begin(db)
//	if err != nil { ... }
//	defer uow.Rollback()
//	// ... reads and writes via uow.DB() ...
//	return uow.Commit()
//
// Rollback after a successful Commit is a no-op, so the deferred call also
// covers error returns and panics without double-finishing the transaction.
type UnitOfWork struct {
	tx   *gorm.DB
	done bool
}

// Begin starts a transaction on the given handle.
func Begin(db *gorm.DB) (*UnitOfWork, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &UnitOfWork{tx: tx}, nil
}

// DB returns the transactional handle for reads and writes in this scope.
func (u *UnitOfWork) DB() *gorm.DB {
	return u.tx
}

// Commit finishes the transaction. Every write inside the scope becomes
// visible atomically or not at all.
func (u *UnitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Commit().Error
}

// Rollback aborts the transaction unless Commit already finished it.
func (u *UnitOfWork) Rollback() {
	if u.done {
		return
	}
	u.done = true
	u.tx.Rollback()
}
