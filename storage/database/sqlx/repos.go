package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/shule/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// executor picks the transaction passed by the caller, falling back to the
// repository's own handle.
func executor(db core.DBExecutor, exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return db
}

func exists(ctx context.Context, ex core.DBExecutor, query sq.SelectBuilder) (bool, error) {
	q, args, err := query.Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	if err = sqlx.GetContext(ctx, ex, &one, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
