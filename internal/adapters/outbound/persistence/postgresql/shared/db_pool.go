package shared

import (
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

const uniqueViolationCode = "23505"

func NewDatabasePool(databaseURL string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger.Info().Msg("database pool initialized")

	return db, nil
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == uniqueViolationCode
}

// IsNoRows reports whether a single-row query matched nothing.
func IsNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}
