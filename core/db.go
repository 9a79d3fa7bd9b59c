package core

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx so that repositories
	// can run either standalone or within an ongoing transaction.
	DBExecutor interface {
		sqlx.ExtContext
	}

	// Tx is an in-progress transaction; *sqlx.Tx satisfies it.
	Tx interface {
		DBExecutor

		Commit() error
		Rollback() error
	}

	DB interface {
		DBExecutor

		Begin(ctx context.Context) (Tx, error)
	}
)

// sqlxDB adapts *sqlx.DB to DB.
type sqlxDB struct {
	*sqlx.DB
}

func WrapDB(db *sqlx.DB) DB {
	return sqlxDB{DB: db}
}

func (db sqlxDB) Begin(ctx context.Context) (Tx, error) {
	return db.DB.BeginTxx(ctx, nil)
}

// Atomic runs fn within a single transaction; it commits on success and
// rolls back if fn returns an error or panics.
func Atomic(ctx context.Context, db DB, fn func(tx DBExecutor) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(rbErr, "rolling back transaction")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
