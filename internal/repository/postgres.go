package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound indicates a cache miss for the requested endpoint/params pair.
var ErrNotFound = errors.New("no cached response for request")

// EnsureSchema creates the response cache table if it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS geoclient_cache (
			endpoint   TEXT        NOT NULL,
			params     TEXT        NOT NULL,
			response   JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (endpoint, params)
		);
	`

	_, err := r.db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}

	return nil
}

// GetResponse returns the stored result object for an endpoint and canonical
// query string, or ErrNotFound on a miss.
func (r *Repository) GetResponse(ctx context.Context, endpoint, paramsKey string) ([]byte, error) {
	query := `
		SELECT response
		FROM geoclient_cache
		WHERE endpoint = $1 AND params = $2;
	`

	var payload []byte
	err := r.db.QueryRow(ctx, query, endpoint, paramsKey).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cached response: %w", err)
	}

	r.log.DebugContext(ctx, "Cached response found", "endpoint", endpoint, "params", paramsKey)

	return payload, nil
}

// SaveResponse stores the result object for an endpoint and canonical query
// string, replacing an earlier entry for the same request.
func (r *Repository) SaveResponse(ctx context.Context, endpoint, paramsKey string, payload []byte) error {
	query := `
		INSERT INTO geoclient_cache (endpoint, params, response)
		VALUES ($1, $2, $3)
		ON CONFLICT (endpoint, params)
		DO UPDATE SET response = EXCLUDED.response, created_at = now();
	`

	_, err := r.db.Exec(ctx, query, endpoint, paramsKey, payload)
	if err != nil {
		return fmt.Errorf("failed to save cached response: %w", err)
	}

	return nil
}

// DeleteOlderThan removes cache entries older than the given age and reports
// how many were swept.
func (r *Repository) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	query := `
		DELETE FROM geoclient_cache
		WHERE created_at < now() - ($1 * interval '1 second');
	`

	tag, err := r.db.Exec(ctx, query, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache entries: %w", err)
	}

	return tag.RowsAffected(), nil
}
