package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/model"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const topologySchema = `
	CREATE TABLE IF NOT EXISTS region_groups (
		group_type  TEXT NOT NULL,
		group_id    INTEGER NOT NULL,
		database    TEXT NOT NULL,
		consistency TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (group_type, group_id)
	);

	CREATE TABLE IF NOT EXISTS region_replicas (
		group_type   TEXT NOT NULL,
		group_id     INTEGER NOT NULL,
		data_node_id INTEGER NOT NULL,
		added_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (group_type, group_id, data_node_id),
		FOREIGN KEY (group_type, group_id)
			REFERENCES region_groups (group_type, group_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_region_groups_database ON region_groups(database);
	CREATE INDEX IF NOT EXISTS idx_region_replicas_data_node ON region_replicas(data_node_id);
`

const selectRegionGroups = `
	SELECT g.group_type, g.group_id, g.database, g.consistency, g.created_at,
		COALESCE(
			array_agg(r.data_node_id ORDER BY r.data_node_id) FILTER (WHERE r.data_node_id IS NOT NULL),
			'{}'
		)
	FROM region_groups g
	LEFT JOIN region_replicas r ON r.group_type = g.group_type AND r.group_id = g.group_id
`

// PostgresTopologyStore implements TopologyStore for PostgreSQL
type PostgresTopologyStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// PostgresOptions are the connection settings of the topology store
type PostgresOptions struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
}

// NewPostgresTopologyStore connects to PostgreSQL and creates the topology tables
func NewPostgresTopologyStore(ctx context.Context, opts PostgresOptions, logger *zap.Logger) (*PostgresTopologyStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		opts.Host, opts.Port, opts.Database, opts.User, opts.Password, opts.MaxConnections, opts.MinConnections,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if opts.ConnMaxLifetime > 0 {
		config.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresTopologyStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Topology store connected",
		zap.String("host", opts.Host),
		zap.Int("port", opts.Port),
		zap.String("database", opts.Database))

	return s, nil
}

func (s *PostgresTopologyStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, topologySchema)
	return err
}

// ListRegionGroups retrieves every region group with its replicas
func (s *PostgresTopologyStore) ListRegionGroups(ctx context.Context) ([]*model.RegionGroup, error) {
	query := selectRegionGroups + `
		GROUP BY g.group_type, g.group_id
		ORDER BY g.group_type, g.group_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list region groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*model.RegionGroup, 0)
	for rows.Next() {
		group, err := scanRegionGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// GetRegionGroup retrieves one region group
func (s *PostgresTopologyStore) GetRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) (*model.RegionGroup, error) {
	query := selectRegionGroups + `
		WHERE g.group_type = $1 AND g.group_id = $2
		GROUP BY g.group_type, g.group_id
	`

	group, err := scanRegionGroup(s.pool.QueryRow(ctx, query, string(groupID.Type), groupID.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get region group: %w", err)
	}
	return group, nil
}

// CreateRegionGroup inserts a region group and its replicas in one transaction
func (s *PostgresTopologyStore) CreateRegionGroup(ctx context.Context, group *model.RegionGroup) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	createdAt := group.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO region_groups (group_type, group_id, database, consistency, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, string(group.GroupID.Type), group.GroupID.ID, group.Database, group.Consistency.String(), createdAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert region group: %w", err)
	}

	batch := &pgx.Batch{}
	for _, nodeID := range group.DataNodeIDs {
		batch.Queue(`
			INSERT INTO region_replicas (group_type, group_id, data_node_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, string(group.GroupID.Type), group.GroupID.ID, nodeID)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert replicas: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteRegionGroup deletes a region group; replicas cascade
func (s *PostgresTopologyStore) DeleteRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) error {
	query := `DELETE FROM region_groups WHERE group_type = $1 AND group_id = $2`
	result, err := s.pool.Exec(ctx, query, string(groupID.Type), groupID.ID)
	if err != nil {
		return fmt.Errorf("failed to delete region group: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AddReplica records a replica of the group on dataNodeID
func (s *PostgresTopologyStore) AddReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error {
	query := `
		INSERT INTO region_replicas (group_type, group_id, data_node_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query, string(groupID.Type), groupID.ID, dataNodeID)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to add replica: %w", err)
	}
	return nil
}

// RemoveReplica deletes the replica of the group on dataNodeID; absent replicas are ignored
func (s *PostgresTopologyStore) RemoveReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error {
	query := `DELETE FROM region_replicas WHERE group_type = $1 AND group_id = $2 AND data_node_id = $3`
	if _, err := s.pool.Exec(ctx, query, string(groupID.Type), groupID.ID, dataNodeID); err != nil {
		return fmt.Errorf("failed to remove replica: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresTopologyStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresTopologyStore) Close() {
	s.pool.Close()
}

func scanRegionGroup(row pgx.Row) (*model.RegionGroup, error) {
	var (
		groupType   string
		consistency string
		group       model.RegionGroup
	)
	if err := row.Scan(
		&groupType,
		&group.GroupID.ID,
		&group.Database,
		&consistency,
		&group.CreatedAt,
		&group.DataNodeIDs,
	); err != nil {
		return nil, err
	}

	group.GroupID.Type = model.ConsensusGroupType(groupType)
	c, err := model.ParseConsistencyModel(consistency)
	if err != nil {
		return nil, fmt.Errorf("region group %s: %w", group.GroupID, err)
	}
	group.Consistency = c
	return &group, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
