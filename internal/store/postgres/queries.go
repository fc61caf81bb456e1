package postgres

import (
	"context"
	"database/sql"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// window is a resolved [offset, offset+limit) slice of a list, head first.
type window struct {
	offset int64
	limit  int64 // -1 = to the tail
	empty  bool
}

// resolveWindow turns list-style [start, stop] indices into OFFSET/LIMIT.
// The list length is only queried when an index is negative.
func resolveWindow(ctx context.Context, db executor, key string, start, stop int64) (window, error) {
	if start >= 0 && stop == -1 {
		return window{offset: start, limit: -1}, nil
	}
	if start >= 0 && stop >= 0 {
		if start > stop {
			return window{empty: true}, nil
		}
		return window{offset: start, limit: stop - start + 1}, nil
	}

	n, err := queryLen(ctx, db, key)
	if err != nil {
		return window{}, err
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	start = max(start, 0)
	stop = min(stop, n-1)
	if start > stop {
		return window{empty: true}, nil
	}
	return window{offset: start, limit: stop - start + 1}, nil
}

// limitArg maps the -1 sentinel to SQL NULL, which Postgres treats as
// LIMIT ALL.
func (w window) limitArg() any {
	if w.limit < 0 {
		return nil
	}
	return w.limit
}

func queryLen(ctx context.Context, db executor, key string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM log_entries WHERE log_key = $1`, key).Scan(&n)
	return n, err
}

func queryPush(ctx context.Context, db executor, key string, values []string) error {
	for _, v := range values {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO log_entries (log_key, value) VALUES ($1, $2)`, key, v); err != nil {
			return err
		}
	}
	return nil
}

func queryRange(ctx context.Context, db executor, key string, start, stop int64) ([]string, error) {
	w, err := resolveWindow(ctx, db, key, start, stop)
	if err != nil {
		return nil, err
	}
	if w.empty {
		return []string{}, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT value FROM log_entries
		WHERE log_key = $1
		ORDER BY id DESC
		OFFSET $2 LIMIT $3`,
		key, w.offset, w.limitArg(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vals := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, rows.Err()
}

func queryTrim(ctx context.Context, db executor, key string, start, stop int64) error {
	w, err := resolveWindow(ctx, db, key, start, stop)
	if err != nil {
		return err
	}
	if w.empty {
		_, err := db.ExecContext(ctx, `DELETE FROM log_entries WHERE log_key = $1`, key)
		return err
	}

	_, err = db.ExecContext(ctx, `
		DELETE FROM log_entries
		WHERE log_key = $1 AND id NOT IN (
			SELECT id FROM log_entries
			WHERE log_key = $1
			ORDER BY id DESC
			OFFSET $2 LIMIT $3
		)`,
		key, w.offset, w.limitArg(),
	)
	return err
}

func queryRemoveFirst(ctx context.Context, db executor, key, value string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM log_entries
		WHERE id = (
			SELECT id FROM log_entries
			WHERE log_key = $1 AND value = $2
			ORDER BY id DESC
			LIMIT 1
		)`,
		key, value,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func querySetAt(ctx context.Context, db executor, key string, index int64, value string) (bool, error) {
	if index < 0 {
		n, err := queryLen(ctx, db, key)
		if err != nil {
			return false, err
		}
		index += n
		if index < 0 {
			return false, nil
		}
	}

	res, err := db.ExecContext(ctx, `
		UPDATE log_entries SET value = $3
		WHERE id = (
			SELECT id FROM log_entries
			WHERE log_key = $1
			ORDER BY id DESC
			OFFSET $2 LIMIT 1
		)`,
		key, index, value,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
