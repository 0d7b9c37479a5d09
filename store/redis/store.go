// Package redis stores identity records in Redis as BSON documents.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zeroing/jwtauth/identity"
)

// ErrUnavailable wraps any Redis transport failure.
var ErrUnavailable = errors.New("redis identity store unavailable")

// ErrConflict is returned when an optimistic update keeps losing to concurrent writers.
var ErrConflict = errors.New("redis identity store: concurrent update")

const maxTxRetries = 5

// Store persists identities under "<prefix>:identity:<username>".
type Store struct {
	redis  goredis.UniversalClient
	prefix string
}

// NewStore returns a Store over client. An empty prefix defaults to "jwtauth".
func NewStore(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "jwtauth"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(username string) string {
	return s.prefix + ":identity:" + username
}

// Save writes u, replacing any record with the same username.
func (s *Store) Save(ctx context.Context, u *identity.UserInfo) error {
	if u == nil || u.Username() == "" {
		return identity.ErrEmptyUsername
	}
	data, err := u.MarshalBSON()
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(u.Username()), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FindByUsername loads the record for username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*identity.UserInfo, error) {
	data, err := s.redis.Get(ctx, s.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return identity.DecodeBSON(data)
}

// MarkPasswordReset sets the record's last password reset to at.
func (s *Store) MarkPasswordReset(ctx context.Context, username string, at time.Time) error {
	return s.update(ctx, username, func(u *identity.UserInfo) *identity.UserInfo {
		return u.WithPasswordReset(at)
	})
}

// UpdateCredentialHash replaces only the stored password hash. Every other field, including
// the last password reset, is left as the store currently holds it.
func (s *Store) UpdateCredentialHash(ctx context.Context, username, hash string) error {
	return s.update(ctx, username, func(u *identity.UserInfo) *identity.UserInfo {
		return u.WithCredentialHash(hash)
	})
}

// update runs a read-modify-write of one record under WATCH, retrying when another writer
// touches the key first.
func (s *Store) update(ctx context.Context, username string, apply func(*identity.UserInfo) *identity.UserInfo) error {
	key := s.key(username)

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return identity.ErrNotFound
			}
			return err
		}
		u, err := identity.DecodeBSON(data)
		if err != nil {
			return err
		}
		next, err := apply(u).MarshalBSON()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, next, goredis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case errors.Is(err, identity.ErrNotFound):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return ErrConflict
}

// Delete removes the record for username. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, s.key(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping measures a round trip to Redis.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
