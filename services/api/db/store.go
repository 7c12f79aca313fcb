package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps database access helpers. A Store without a pool is in degraded mode and
// answers every call with apperr.ErrStoreUnavailable.
type Store struct {
	pool *pgxpool.Pool
}

// ConnectOptions controls the startup connection attempts.
type ConnectOptions struct {
	URL        string
	Attempts   int
	RetryDelay time.Duration
}

// Degraded returns a Store that has no connection.
func Degraded() *Store {
	return &Store{}
}

// Connect opens the pool, retrying with a constant delay until the server answers a ping,
// then applies the schema. It returns apperr.ErrStoreUnavailable once attempts run out.
func Connect(ctx context.Context, opts ConnectOptions, log *logrus.Entry) (*Store, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	var pool *pgxpool.Pool
	attempt := 0
	op := func() error {
		attempt++
		p, err := pgxpool.New(ctx, opts.URL)
		if err != nil {
			// a malformed URL will not get better
			return backoff.Permanent(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.RetryDelay), uint64(opts.Attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.WithError(err).Warnf("database connection attempt %d/%d failed, retrying in %s", attempt, opts.Attempts, wait)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		log.WithError(err).Errorf("database unreachable after %d attempts", attempt)
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		log.WithError(err).Warn("could not apply schema, continuing with existing tables")
	}
	return s, nil
}

// Migrate creates the schema objects that do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return translate(err)
	}
	return nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Connected reports whether the store holds a pool.
func (s *Store) Connected() bool {
	return s.pool != nil
}

// Ping checks the connection and returns the server version.
func (s *Store) Ping(ctx context.Context) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	var version string
	if err := s.pool.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", translate(err)
	}
	return version, nil
}

func (s *Store) ready() error {
	if s == nil || s.pool == nil {
		return apperr.Unavailable(nil)
	}
	return nil
}
