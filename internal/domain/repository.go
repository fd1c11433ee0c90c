// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations. Transactions are immutable: upserting an
	// existing id is a no-op.
	UpsertTransactions(ctx context.Context, txs []*Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// QueryRecentByParty returns transactions sent or received by partyID
	// with since <= timestamp <= until, newest first.
	QueryRecentByParty(ctx context.Context, partyID string, since, until time.Time) ([]*Transaction, error)

	// Scorecards are append-only.
	UpsertScorecards(ctx context.Context, cards []*Scorecard) error
	ListScorecards(ctx context.Context, txID string) ([]*Scorecard, error)

	// Graph aggregates. Upserts are additive: the given values are
	// batch deltas added to whatever is stored under the same key.
	// UpsertGraph writes nodes and edges atomically.
	UpsertNodes(ctx context.Context, nodes []*Node) error
	UpsertEdges(ctx context.Context, edges []*Edge) error
	UpsertGraph(ctx context.Context, nodes []*Node, edges []*Edge) error
	GetNode(ctx context.Context, partyID string) (*Node, error)
	GetEdge(ctx context.Context, fromParty, toParty string) (*Edge, error)
	ListEdgesFrom(ctx context.Context, partyID string) ([]*Edge, error)

	// Party profiles
	SaveProfile(ctx context.Context, profile *PartyProfile) error
	GetProfile(ctx context.Context, partyID string) (*PartyProfile, error)

	// Rule catalog definitions
	SaveRuleDefinition(ctx context.Context, def *RuleDefinition) error
	ListRuleDefinitions(ctx context.Context) ([]*RuleDefinition, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "memory"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
