package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/grade"
)

var ErrNoCurrentSemester = errors.New("no current semester is set")

var _ grade.SemesterProvider = (*semesterRepository)(nil)

// semesterRepository resolves the current semester from the semesters table;
// exactly one row carries is_current at a time.
type semesterRepository struct {
	db core.DBExecutor
}

func NewSemesterRepository(db core.DBExecutor) *semesterRepository {
	return &semesterRepository{db: db}
}

func (repo semesterRepository) CurrentSemesterID(ctx context.Context) (string, error) {
	q, args, err := psql.
		Select("id").
		From("semesters").
		Where(sq.Eq{"is_current": true}).
		ToSql()
	if err != nil {
		return "", err
	}
	var id string
	if err = sqlx.GetContext(ctx, repo.db, &id, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNoCurrentSemester
		}
		return "", errors.Wrap(err, "getting current semester")
	}
	return id, nil
}
