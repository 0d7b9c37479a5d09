// Package postgres stores identity records in a PostgreSQL table through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/zeroing/jwtauth/identity"
)

// Schema creates the identities table. Migrate applies it.
const Schema = `
create table if not exists identities (
	id                text        not null default '',
	username          text        primary key,
	password_hash     text        not null default '',
	roles             jsonb       not null default '[]'::jsonb,
	password_reset_at timestamptz null
)`

// Store is an identity store over a database/sql handle. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open connects with the "pgx" driver and applies pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Close closes the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for health checks and pool tuning.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies Schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// FindByUsername loads the record for username or returns identity.ErrNotFound.
func (s *Store) FindByUsername(ctx context.Context, username string) (*identity.UserInfo, error) {
	var (
		id, hash string
		rolesRaw []byte
		resetAt  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`select id, password_hash, roles, password_reset_at from identities where username=$1`,
		username,
	).Scan(&id, &hash, &rolesRaw, &resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var roles []string
	if len(rolesRaw) > 0 {
		if err := json.Unmarshal(rolesRaw, &roles); err != nil {
			return nil, fmt.Errorf("decode roles for %q: %w", username, err)
		}
	}
	p := identity.Params{ID: id, Username: username, CredentialHash: hash, Roles: roles}
	if resetAt.Valid {
		p.LastPasswordReset = resetAt.Time
	}
	return identity.New(p)
}

// Save upserts u by username. An existing password_reset_at is never moved backwards, so
// replacing a record cannot revive tokens an earlier reset revoked.
func (s *Store) Save(ctx context.Context, u *identity.UserInfo) error {
	if u == nil || u.Username() == "" {
		return identity.ErrEmptyUsername
	}
	roles := u.Roles()
	if roles == nil {
		roles = []string{}
	}
	rolesRaw, err := json.Marshal(roles)
	if err != nil {
		return err
	}
	var resetAt sql.NullTime
	if r := u.LastPasswordReset(); !r.IsZero() {
		resetAt = sql.NullTime{Time: r.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		insert into identities(id, username, password_hash, roles, password_reset_at)
		values ($1,$2,$3,$4,$5)
		on conflict (username) do update
		set id = excluded.id,
		    password_hash = excluded.password_hash,
		    roles = excluded.roles,
		    password_reset_at = greatest(identities.password_reset_at, excluded.password_reset_at)
	`, u.ID(), u.Username(), u.CredentialHash(), rolesRaw, resetAt)
	return err
}

// MarkPasswordReset sets password_reset_at for username.
func (s *Store) MarkPasswordReset(ctx context.Context, username string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set password_reset_at=$1 where username=$2`,
		at.UTC(), username,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// UpdateCredentialHash replaces only password_hash for username.
func (s *Store) UpdateCredentialHash(ctx context.Context, username, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set password_hash=$1 where username=$2`,
		hash, username,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// Delete removes the record for username. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `delete from identities where username=$1`, username)
	return err
}
