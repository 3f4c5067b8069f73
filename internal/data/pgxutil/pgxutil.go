// Package pgxutil bridges the shared database/sql pool to native pgx
// connections, so repositories get pgx's typed query interface without
// managing a second pool.
package pgxutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// WithConn checks a connection out of the pool, unwraps the pgx connection
// behind the stdlib driver, and runs fn with it. The connection goes back to
// the pool when fn returns.
func WithConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		// Close returns the connection to the pool; nothing to do on failure.
		_ = conn.Close()
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", dc)
		}
		return fn(std.Conn())
	})
}
