package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/cloudstore/internal/errs"
)

// PostgreSQL SQLSTATE error codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrConnectionFailure   = "08006"
	pgErrConnectionException = "08000"
	pgErrInsufficientPriv    = "42501"
	pgErrInvalidPassword     = "28P01"
	pgErrStringTooLong       = "22001"
	pgErrQueryCanceled       = "57014"
)

// mapError converts a pgx error into a *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrConnectionFailure, pgErrConnectionException:
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		case pgErrInsufficientPriv, pgErrInvalidPassword:
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case pgErrStringTooLong:
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case pgErrQueryCanceled:
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}
		return errs.Wrap(errs.ErrKindOperationFailed, msg, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return errs.Wrap(errs.ErrKindUnknown, msg, err)
}
