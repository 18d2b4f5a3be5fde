package relational

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapPgError translates PostgreSQL and driver failures onto the common
// taxonomy. Errors that are already classified pass through unchanged.
func mapPgError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		switch {
		case code == "42501", code == "28000", code == "28P01":
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
		case code == "53100", code == "53400":
			return fmt.Errorf("%w: %w", common.ErrQuotaExceeded, err)
		case strings.HasPrefix(code, "08"), code == "53300", code == "57P01",
			code == "57P02", code == "57P03", code == "40001", code == "40P01":
			return fmt.Errorf("%w: %w", common.ErrTransient, err)
		}
		return err
	}

	if common.Kind(err) != common.KindUnknown {
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", common.ErrTransient, err)
	}
	return err
}
