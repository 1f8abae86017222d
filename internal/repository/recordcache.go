package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gothamgeo/geoclient/internal/geoclient"
)

// RecordCache adapts the repository to the batch runner's cache interface,
// marshaling result objects to and from their stored JSON form.
type RecordCache struct {
	repo Interface
	log  *slog.Logger
}

func NewRecordCache(repo Interface, log *slog.Logger) *RecordCache {
	return &RecordCache{repo: repo, log: log}
}

// GetRecord returns the cached result object for a request, with found=false
// on a miss.
func (c *RecordCache) GetRecord(
	ctx context.Context,
	endpoint geoclient.Endpoint,
	key string,
) (geoclient.Record, bool, error) {
	payload, err := c.repo.GetResponse(ctx, string(endpoint), key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rec, err := geoclient.DecodeRecord(payload)
	if err != nil {
		// A corrupt entry behaves like a miss so the row still gets looked up.
		c.log.WarnContext(ctx, "Discarding unreadable cache entry", "endpoint", string(endpoint), "error", err)
		return nil, false, nil
	}

	return rec, true, nil
}

// PutRecord stores the result object for a request.
func (c *RecordCache) PutRecord(
	ctx context.Context,
	endpoint geoclient.Endpoint,
	key string,
	rec geoclient.Record,
) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record for cache: %w", err)
	}

	return c.repo.SaveResponse(ctx, string(endpoint), key, payload)
}
