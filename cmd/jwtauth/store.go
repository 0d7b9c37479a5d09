package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zeroing/jwtauth"
	"github.com/zeroing/jwtauth/store/postgres"
	redisstore "github.com/zeroing/jwtauth/store/redis"
)

// identityStore is what every backend offers the CLI.
type identityStore interface {
	jwtauth.IdentityStore
	jwtauth.IdentityWriter
	jwtauth.PasswordResetRecorder
	Delete(ctx context.Context, username string) error
}

func (a *app) openStore() (identityStore, func(), error) {
	switch a.cfg.Store.Driver {
	case "redis":
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs: []string{a.cfg.Store.RedisAddr},
		})
		return redisstore.NewStore(client, a.cfg.Store.RedisPrefix), func() { _ = client.Close() }, nil
	case "postgres":
		s, err := postgres.Open(a.cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", a.cfg.Store.Driver)
	}
}

// withEngine builds an engine over the configured store, runs fn and closes both.
func (a *app) withEngine(fn func(*jwtauth.Engine) error) error {
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := jwtauth.New().
		WithConfig(a.cfg).
		WithStore(store).
		WithLogger(a.logger).
		WithAuditSink(jwtauth.FailuresOnly{Next: jwtauth.NewZapSink(a.logger)}).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	return fn(engine)
}
