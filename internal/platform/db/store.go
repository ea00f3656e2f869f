package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/wellness/portal/internal/config"
)

// Store is an open connection to the configured backend. Exactly one of
// Pool or Mongo is set, according to Backend.
type Store struct {
	Backend string
	Pool    *pgxpool.Pool
	Mongo   *mongo.Client
	MongoDB *mongo.Database

	logger zerolog.Logger
}

// Open connects to the backend named by cfg.DatabaseURL.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Store, error) {
	backend, err := cfg.Backend()
	if err != nil {
		return nil, err
	}

	s := &Store{Backend: backend, logger: logger}
	switch backend {
	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBConnectTimeout)
		if err != nil {
			return nil, err
		}
		s.Pool = pool
	case config.BackendMongo:
		client, database, err := ConnectMongo(ctx, cfg.DatabaseURL, cfg.DatabaseName, uint64(cfg.DBMaxConns), cfg.DBConnectTimeout)
		if err != nil {
			return nil, err
		}
		s.Mongo = client
		s.MongoDB = database
	}

	logger.Info().Str("backend", backend).Str("database", cfg.DatabaseName).Msg("connected to database")
	return s, nil
}

// Ping checks the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	switch {
	case s.Pool != nil:
		return s.Pool.Ping(ctx)
	case s.Mongo != nil:
		return s.Mongo.Ping(ctx, readpref.Primary())
	}
	return errors.New("store is not open")
}

// Close releases the backend connection.
func (s *Store) Close(ctx context.Context) error {
	var err error
	switch {
	case s.Pool != nil:
		s.Pool.Close()
		s.Pool = nil
	case s.Mongo != nil:
		if derr := s.Mongo.Disconnect(ctx); derr != nil {
			err = fmt.Errorf("disconnect mongo: %w", derr)
		}
		s.Mongo = nil
		s.MongoDB = nil
	}
	s.logger.Info().Str("backend", s.Backend).Msg("database disconnected")
	return err
}
