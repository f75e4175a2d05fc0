package environment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"subtracker/internal/config"
	"subtracker/internal/infra/mailer"
	"subtracker/internal/infra/sqlite3"
	"subtracker/internal/storage"
)

// mailSender is satisfied by both the SMTP client and the logging mock.
type mailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type Clients struct {
	SQLiteDB *sqlite3.DB
	Mailer   mailSender
}

func newClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Clients, error) {
	sqliteDB, err := provideSQLiteDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := storage.New(sqliteDB.DB).Migrate(ctx); err != nil {
		_ = sqliteDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	sender, err := provideMailer(cfg, logger)
	if err != nil {
		_ = sqliteDB.Close()
		return nil, err
	}

	return &Clients{
		SQLiteDB: sqliteDB,
		Mailer:   sender,
	}, nil
}

func provideSQLiteDB(ctx context.Context, cfg config.Config) (*sqlite3.DB, error) {
	maxLifetimeStr := cfg.DB.MaxLifetime
	if maxLifetimeStr == "" {
		maxLifetimeStr = "5m"
	}
	maxLifetime, err := time.ParseDuration(maxLifetimeStr)
	if err != nil {
		return nil, err
	}

	opts := []sqlite3.Option{
		sqlite3.WithDSN(cfg.DB.Path),
		sqlite3.WithMaxOpenConns(cfg.DB.MaxOpenConns),
		sqlite3.WithMaxIdleConns(cfg.DB.MaxIdleConns),
		sqlite3.WithConnMaxLifetime(maxLifetime),
	}

	return sqlite3.New(ctx, opts...)
}

func provideMailer(cfg config.Config, logger *slog.Logger) (mailSender, error) {
	if cfg.SMTP.Mock {
		logger.Warn("SMTP mock mode enabled, reminder emails are only logged")
		return mailer.NewLogClient(logger), nil
	}

	tlsConfig, err := cfg.SMTP.TLSConfig()
	if err != nil {
		return nil, err
	}

	client, err := mailer.NewClient(cfg.SMTP.Host, cfg.SMTP.From, logger,
		mailer.WithPort(cfg.SMTP.Port),
		mailer.WithCredentials(cfg.SMTP.Username, cfg.SMTP.Password),
		mailer.WithTLSPolicy(cfg.SMTP.TLSPolicy),
		mailer.WithTLSConfig(tlsConfig),
		mailer.WithRate(cfg.SMTP.RateRPS),
	)
	if err != nil {
		return nil, fmt.Errorf("create SMTP client: %w", err)
	}
	return client, nil
}
