// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"
)

// Postgres stores each tenant in its own schema and each collection as a
// JSONB table inside it. Pooled handles are dedicated *sql.Conn values
// taken from one *sql.DB.
type Postgres struct {
	DB *sql.DB

	// ensured caches namespaces already created by this process.
	ensured sync.Map
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Create(ctx context.Context) (Conn, error) {
	conn, err := p.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &postgresConn{owner: p, conn: conn}, nil
}

func (p *Postgres) Destroy(c Conn) error {
	return c.Close(context.Background())
}

func (p *Postgres) Close() error {
	return p.DB.Close()
}

type postgresConn struct {
	owner *Postgres
	conn  *sql.Conn
}

func schemaName(tenant string) string {
	return "t_" + tenant
}

func tableName(tenant, coll string) string {
	return pq.QuoteIdentifier(schemaName(tenant)) + "." + pq.QuoteIdentifier(coll)
}

// ensureTable creates the tenant schema and collection table if not exists
func (c *postgresConn) ensureTable(ctx context.Context, tenant, coll string) error {
	key := tenant + "\x00" + coll
	if _, ok := c.owner.ensured.Load(key); ok {
		return nil
	}

	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(schemaName(tenant))),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, tableName(tenant, coll)),
	}
	for _, stmt := range stmts {
		if _, err := c.conn.ExecContext(ctx, stmt); err != nil && !isConcurrentCreate(err) {
			return fmt.Errorf("failed to create namespace: %w", err)
		}
	}

	c.owner.ensured.Store(key, struct{}{})
	return nil
}

// isConcurrentCreate reports the errors two racing IF NOT EXISTS
// statements can still produce.
func isConcurrentCreate(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "23505", "42P06", "42P07":
		return true
	}
	return false
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

func (c *postgresConn) Find(ctx context.Context, tenant, coll string, filter Document, skip, limit int64) ([]Document, error) {
	if filter == nil {
		filter = Document{}
	}
	f, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, doc
		FROM %s
		WHERE doc @> $1::jsonb
		ORDER BY id DESC
		OFFSET $2
		LIMIT $3
	`, tableName(tenant, coll))

	rows, err := c.conn.QueryContext(ctx, query, string(f), skip, limit)
	if err != nil {
		if isUndefinedTable(err) {
			// tenants and collections are created by their first insert
			return []Document{}, nil
		}
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		var d Document
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode document %d: %w", id, err)
		}
		if d == nil {
			d = Document{}
		}
		d["_id"] = id
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return docs, nil
}

func (c *postgresConn) Insert(ctx context.Context, tenant, coll string, doc Document) (any, error) {
	if err := c.ensureTable(ctx, tenant, coll); err != nil {
		return nil, err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	var id int64
	query := fmt.Sprintf(`INSERT INTO %s (doc) VALUES ($1::jsonb) RETURNING id`, tableName(tenant, coll))
	if err := c.conn.QueryRowContext(ctx, query, string(body)).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	return id, nil
}

func (c *postgresConn) Close(context.Context) error {
	return c.conn.Close()
}
