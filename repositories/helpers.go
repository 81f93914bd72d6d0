package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLExecutor удовлетворяется как *sql.DB, так и *sql.Tx, чтобы сервисный слой
// мог выполнять вызовы репозиториев внутри собственной транзакции.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func checkAffectedRows(result sql.Result, zeroRowsError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return zeroRowsError // Возвращаем переданную ошибку
	}
	return nil
}
