package store

import "github.com/jmoiron/sqlx"

// sqlxIn expands a query's sole "(?)" slice placeholder into the right
// number of bind params, then rebinds it for the `?` positional style
// mattn/go-sqlite3 expects.
func sqlxIn(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.QUESTION, q), a, nil
}
