package store

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	config "example.com/socialfeed/internal/init"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// timelineBucket is the single partition of posts_timeline.
const timelineBucket = 0

// SessionInterface is the part of *gocql.Session the store uses.
type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	NewBatch(batchType gocql.BatchType) *gocql.Batch
	ExecuteBatch(batch *gocql.Batch) error
	Close()
}

// Store keeps accounts, the follow graph, posts, sessions and activity in
// Cassandra.
type Store struct {
	Session SessionInterface
}

var _ StoreInterface = (*Store)(nil)

// NewCassandra prepares the keyspace and schema, then opens the main session.
func NewCassandra(cfg *config.Config) (*Store, error) {
	if err := bootstrapKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("keyspace bootstrap: %w", err)
	}
	if err := migrateSchema(cfg); err != nil {
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	// LWTs on usernames need a serial consistency; Quorum covers the rest
	cluster := newCluster(cfg, cfg.CassandraKeyspace)
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.Serial
	cluster.ConnectTimeout = cfg.CassandraTimeout
	if cfg.CassandraDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(cfg.CassandraDC))
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("open cassandra session: %w", err)
	}

	logg.Info("store", "Cassandra store ready")
	return &Store{Session: sess}, nil
}

func newCluster(cfg *config.Config, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = keyspace
	cluster.Timeout = cfg.CassandraTimeout
	if cfg.CassandraUsername != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}
	return cluster
}

// bootstrapKeyspace creates the application keyspace through the system
// keyspace, since migrations cannot run without it.
func bootstrapKeyspace(cfg *config.Config) error {
	sess, err := newCluster(cfg, "system").CreateSession()
	if err != nil {
		return fmt.Errorf("connect to system keyspace: %w", err)
	}
	defer sess.Close()

	stmt := fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`,
		cfg.CassandraKeyspace,
	)
	return sess.Query(stmt).Exec()
}

func migrateSchema(cfg *config.Config) error {
	dsn := url.URL{
		Scheme:   "cassandra",
		Host:     cfg.CassandraHost,
		Path:     "/" + cfg.CassandraKeyspace,
		RawQuery: "x-migrations-table=schema_migrations&x-multi-statement=true",
	}
	if cfg.CassandraUsername != "" {
		dsn.User = url.UserPassword(cfg.CassandraUsername, cfg.CassandraPassword)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(filepath.Clean(cfg.MigrationsPath)), dsn.String())
	if err != nil {
		return err
	}
	defer m.Close()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logg.Debug("store", "Schema is up to date")
	case err != nil:
		return err
	default:
		logg.Info("store", "Schema migrations applied")
	}
	return nil
}

// Close releases the Cassandra session.
func (s *Store) Close() {
	if s.Session == nil {
		return
	}
	s.Session.Close()
	logg.Info("store", "Cassandra session closed")
}
