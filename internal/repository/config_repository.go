package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	docvault_errors "docvault/pkg/errors"
)

type PostgresConfigRepository struct {
	db DBTX
}

func NewConfigRepository(db DBTX) ConfigRepository {
	return &PostgresConfigRepository{db: db}
}

func (r *PostgresConfigRepository) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT config_value FROM system_config WHERE config_key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", docvault_errors.ErrNotFound
		}
		return "", fmt.Errorf("select config %s: %w", key, err)
	}
	return value, nil
}

// GetValues returns the subset of keys present in system_config.
func (r *PostgresConfigRepository) GetValues(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := `SELECT config_key, config_value FROM system_config WHERE config_key IN (` +
		buildPlaceholders(1, len(keys)) + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select config: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
