package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/roomgate/internal/docstore"
)

const (
	fieldData      = "data"
	fieldUpdatedAt = "updated_at"

	// maxMergeAttempts bounds optimistic retries when a merged key changes under us.
	maxMergeAttempts = 5
)

// key returns the Redis hash key for a document.
func key(ref docstore.Ref) string {
	return "doc:" + ref.Collection + ":" + ref.ID
}

// Store persists documents as Redis hashes holding the JSON body and update time.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client, now: time.Now}
}

// Open connects to Redis and checks the connection.
func Open(ctx context.Context, opts *redis.Options) (*Store, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client), nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get reads a document.
func (s *Store) Get(ctx context.Context, ref docstore.Ref) (*docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	vals, err := s.client.HGetAll(ctx, key(ref)).Result()
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", ref.Path(), err)
	}

	data, ok := vals[fieldData]
	if !ok {
		return docstore.Missing(ref), nil
	}

	var updatedAt time.Time
	if raw := vals[fieldUpdatedAt]; raw != "" {
		if updatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("parse updated_at of %s: %w", ref.Path(), err)
		}
	}

	return docstore.NewSnapshot(ref, []byte(data), updatedAt), nil
}

// Set writes a document. Merges read the current body inside a WATCH
// transaction and retry when another writer gets there first.
func (s *Store) Set(ctx context.Context, ref docstore.Ref, v any, opts ...docstore.SetOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	k := key(ref)
	write := func(tx *redis.Tx) error {
		var existing []byte
		cur, err := tx.HGet(ctx, k, fieldData).Bytes()
		switch {
		case err == nil:
			existing = cur
		case errors.Is(err, redis.Nil):
		default:
			return fmt.Errorf("read document %s: %w", ref.Path(), err)
		}

		data, err := docstore.Encode(existing, v, opts...)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, fieldData, data, fieldUpdatedAt, s.now().UTC().Format(time.RFC3339Nano))
			return nil
		})
		return err
	}

	for range maxMergeAttempts {
		err := s.client.Watch(ctx, write, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, docstore.ErrNotObject) || errors.Is(err, docstore.ErrInvalidRef) {
				return err
			}
			return fmt.Errorf("write document %s: %w", ref.Path(), err)
		}
		return nil
	}
	return fmt.Errorf("write document %s: too much contention", ref.Path())
}

var _ docstore.Store = (*Store)(nil)
