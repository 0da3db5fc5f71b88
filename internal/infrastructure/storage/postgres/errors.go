package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the stores react to.
const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
	codeUndefinedTable   = "42P01"
)

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// IsUniqueViolation reports a duplicate key error.
func IsUniqueViolation(err error) bool { return hasCode(err, codeUniqueViolation) }

// IsLockNotAvailable reports a NOWAIT lock that could not be acquired.
func IsLockNotAvailable(err error) bool { return hasCode(err, codeLockNotAvailable) }

// IsUndefinedTable reports a missing relation, including a dropped SEQUENCE.
func IsUndefinedTable(err error) bool { return hasCode(err, codeUndefinedTable) }
