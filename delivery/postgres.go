package delivery

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/tonkeeper/analytics/event"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const insertEventSQL = `
	INSERT INTO analytics_events
	(
	event_name,
	properties,
	user_id,
	session_id,
	event_time
	)
	VALUES ($1, $2::jsonb, $3, $4, $5)`

// PostgresOptions tunes the connection pool of a PostgresChannel.
type PostgresOptions struct {
	URI             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	LazyConnect     bool
	SkipMigrations  bool
}

// PostgresChannel writes each batch into analytics_events inside a single
// transaction, so a batch is stored whole or not at all.
type PostgresChannel struct {
	pool *pgxpool.Pool
}

// MigratePostgres applies the embedded schema migrations.
func MigratePostgres(postgresURI string) error {
	log := logrus.WithField("prefix", "MigratePostgres")
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, postgresURI)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warnf("failed to close migrator: %v %v", srcErr, dbErr)
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("DB is up to date")
		return nil
	} else if err != nil {
		return err
	}
	log.Info("DB updated successfully")
	return nil
}

// poolConfig creates a pgxpool.Config from the options.
// See https://pkg.go.dev/github.com/jackc/pgx/v4/pgxpool#ParseConfig
func poolConfig(opts PostgresOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(opts.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres URI: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	cfg.LazyConnect = opts.LazyConnect
	return cfg, nil
}

// NewPostgresChannel connects, migrates the schema and returns the channel.
func NewPostgresChannel(ctx context.Context, opts PostgresOptions) (*PostgresChannel, error) {
	cfg, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	if !opts.SkipMigrations {
		if err := MigratePostgres(opts.URI); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return &PostgresChannel{pool: pool}, nil
}

// Send inserts the batch in one transaction.
func (c *PostgresChannel) Send(ctx context.Context, batch event.Batch) (err error) {
	if len(batch) == 0 {
		return nil
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return transportError("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logrus.WithField("prefix", "PostgresChannel").Debugf("rollback failed: %v", rbErr)
			}
		}
	}()

	b := &pgx.Batch{}
	for _, e := range batch {
		b.Queue(insertEventSQL, insertArgs(e)...)
	}

	results := tx.SendBatch(ctx, b)
	for range batch {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			return transportError("failed to insert analytics event", execErr)
		}
	}
	if closeErr := results.Close(); closeErr != nil {
		return transportError("failed to insert analytics batch", closeErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return transportError("failed to commit analytics batch", commitErr)
	}
	return nil
}

func insertArgs(e event.Event) []interface{} {
	var userID *string
	if e.UserID() != "" {
		id := e.UserID()
		userID = &id
	}
	return []interface{}{
		e.Name(),
		string(e.RawProperties()),
		userID,
		e.SessionID(),
		e.Timestamp().UTC(),
	}
}

// HealthCheck pings the database.
func (c *PostgresChannel) HealthCheck(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close releases the pool.
func (c *PostgresChannel) Close() error {
	c.pool.Close()
	return nil
}
