// Package sqldriver implements storage.Driver on database/sql. The sqlite and
// postgres packages open the connection and pick the Dialect; everything else
// is shared.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/capsule/pkg/merkle"
	"github.com/papercomputeco/capsule/pkg/storage"
)

// Dialect captures the differences between SQL backends.
type Dialect int

const (
	// SQLite uses "?" placeholders.
	SQLite Dialect = iota

	// Postgres uses "$n" placeholders.
	Postgres
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	hash TEXT PRIMARY KEY,
	parent_hash TEXT,
	bucket TEXT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent_hash ON nodes(parent_hash);
CREATE INDEX IF NOT EXISTS idx_nodes_created_at ON nodes(created_at);
`

const nodeColumns = `hash, parent_hash, bucket, created_at`

// Driver implements storage.Driver over a *sql.DB.
type Driver struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db and creates the schema if needed. The Driver owns db and
// closes it on Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	d := &Driver{db: db, dialect: dialect}
	if err := d.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

// DB exposes the underlying connection pool.
func (d *Driver) DB() *sql.DB {
	return d.db
}

func (d *Driver) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites "?" placeholders for the dialect.
func (d *Driver) rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Put stores a node. Returns true if the node was newly inserted.
func (d *Driver) Put(ctx context.Context, node *merkle.Node) (bool, error) {
	if node == nil {
		return false, storage.ErrNilNode
	}

	bucket, err := json.Marshal(node.Bucket)
	if err != nil {
		return false, fmt.Errorf("failed to marshal bucket: %w", err)
	}

	// Idempotent insert - deduplication via content-addressing
	query := d.rebind(`INSERT INTO nodes (` + nodeColumns + `) VALUES (?, ?, ?, ?) ON CONFLICT (hash) DO NOTHING`)
	res, err := d.db.ExecContext(ctx, query,
		node.Hash,
		nullString(node.ParentHash),
		string(bucket),
		node.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert node: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// Get retrieves a node by its hash.
func (d *Driver) Get(ctx context.Context, hash string) (*merkle.Node, error) {
	query := d.rebind(`SELECT ` + nodeColumns + ` FROM nodes WHERE hash = ?`)
	node, err := scanNode(d.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Hash: hash}
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Has checks if a node exists by its hash.
func (d *Driver) Has(ctx context.Context, hash string) (bool, error) {
	query := d.rebind(`SELECT 1 FROM nodes WHERE hash = ? LIMIT 1`)

	var exists int
	err := d.db.QueryRowContext(ctx, query, hash).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// GetByParent retrieves all nodes that have the given parent hash.
func (d *Driver) GetByParent(ctx context.Context, parentHash *string) ([]*merkle.Node, error) {
	if parentHash == nil {
		return d.query(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE parent_hash IS NULL ORDER BY created_at, hash`)
	}
	return d.query(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE parent_hash = ? ORDER BY created_at, hash`, *parentHash)
}

// List returns all nodes in the store, oldest first.
func (d *Driver) List(ctx context.Context) ([]*merkle.Node, error) {
	return d.query(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY created_at, hash`)
}

// Roots returns all root nodes.
func (d *Driver) Roots(ctx context.Context) ([]*merkle.Node, error) {
	return d.GetByParent(ctx, nil)
}

// Leaves returns all nodes that no other node names as parent.
func (d *Driver) Leaves(ctx context.Context) ([]*merkle.Node, error) {
	return d.query(ctx, `
		SELECT n.hash, n.parent_hash, n.bucket, n.created_at
		FROM nodes n
		LEFT JOIN nodes c ON c.parent_hash = n.hash
		WHERE c.hash IS NULL
		ORDER BY n.created_at, n.hash`)
}

// Ancestry returns the path from a node back to its root (node first, root last).
func (d *Driver) Ancestry(ctx context.Context, hash string) ([]*merkle.Node, error) {
	return storage.Ancestry(ctx, d, hash)
}

// Depth returns the depth of a node (0 for roots).
func (d *Driver) Depth(ctx context.Context, hash string) (int, error) {
	return storage.Depth(ctx, d, hash)
}

// Close closes the database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) query(ctx context.Context, query string, args ...any) ([]*merkle.Node, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*merkle.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return nodes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (*merkle.Node, error) {
	var (
		node       merkle.Node
		parentHash sql.NullString
		bucket     string
		createdAt  int64
	)

	if err := s.Scan(&node.Hash, &parentHash, &bucket, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	if parentHash.Valid {
		node.ParentHash = &parentHash.String
	}
	if err := json.Unmarshal([]byte(bucket), &node.Bucket); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bucket: %w", err)
	}
	node.CreatedAt = time.Unix(0, createdAt).UTC()

	return &node, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ storage.Driver = (*Driver)(nil)
